package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tabmarket/backend/internal/market"
	"github.com/tabmarket/backend/internal/models"
	"github.com/tabmarket/backend/internal/money"
	"github.com/tabmarket/backend/internal/services"
)

const maxBodyBytes = 1_048_576

type MarketHandler struct {
	market    *market.Marketplace
	validator *services.ValidationHelper
}

func NewMarketHandler(m *market.Marketplace) *MarketHandler {
	return &MarketHandler{
		market:    m,
		validator: services.NewValidationHelper(),
	}
}

// Routes registers the marketplace endpoints on r.
func (h *MarketHandler) Routes(r chi.Router) {
	r.Post("/accounts", h.OpenAccount)
	r.Get("/accounts/{accountId}/balance", h.Balance)
	r.Post("/accounts/{accountId}/deposit", h.Deposit)

	r.Post("/assets", h.IssueAsset)
	r.Get("/assets/{assetId}/owner", h.Owner)

	r.Post("/listings", h.CreateListing)
	r.Get("/listings", h.ListListings)
	r.Get("/listings/{listingId}", h.GetListing)
	r.Patch("/listings/{listingId}", h.UpdateListing)
	r.Post("/listings/{listingId}/cancel", h.CancelListing)
	r.Post("/listings/{listingId}/purchase", h.Purchase)

	r.Get("/audit", h.AuditTrail)
}

type accountResponse struct {
	AccountID      string `json:"account_id"`
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
}

type listingResponse struct {
	ID           string     `json:"id"`
	AssetID      string     `json:"asset_id"`
	SellerID     string     `json:"seller_id"`
	Price        int64      `json:"price"`
	PriceDisplay string     `json:"price_display"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

type auditResponse struct {
	Seq          int64     `json:"seq"`
	ListingID    string    `json:"listing_id"`
	AssetID      string    `json:"asset_id"`
	SellerID     string    `json:"seller_id"`
	BuyerID      string    `json:"buyer_id"`
	Price        int64     `json:"price"`
	PriceDisplay string    `json:"price_display"`
	CreatedAt    time.Time `json:"created_at"`
}

func toListingResponse(l models.Listing) listingResponse {
	return listingResponse{
		ID:           l.ID,
		AssetID:      l.AssetID,
		SellerID:     l.SellerID,
		Price:        l.Price,
		PriceDisplay: money.Format(l.Price),
		Status:       string(l.Status),
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
		ExpiresAt:    l.ExpiresAt,
	}
}

func toListingResponses(ls []models.Listing) []listingResponse {
	out := make([]listingResponse, 0, len(ls))
	for _, l := range ls {
		out = append(out, toListingResponse(l))
	}
	return out
}

func toAuditResponse(r models.AuditRecord) auditResponse {
	return auditResponse{
		Seq:          r.Seq,
		ListingID:    r.ListingID,
		AssetID:      r.AssetID,
		SellerID:     r.SellerID,
		BuyerID:      r.BuyerID,
		Price:        r.Price,
		PriceDisplay: money.Format(r.Price),
		CreatedAt:    r.CreatedAt,
	}
}

func toAccountResponse(id string, balance int64) accountResponse {
	return accountResponse{AccountID: id, Balance: balance, BalanceDisplay: money.Format(balance)}
}

// OpenAccount provisions a new account
// @Summary Open Account
// @Description Open an account with an optional opening balance in minor units or as a decimal string
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body object{account_id=string,balance=int64,balance_decimal=string} true "Account opening request"
// @Success 201 {object} accountResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /accounts [post]
func (h *MarketHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID      string `json:"account_id" validate:"required,max=128"`
		Balance        *int64 `json:"balance,omitempty" validate:"omitempty,gte=0"`
		BalanceDecimal string `json:"balance_decimal,omitempty"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	balance, err := amount(req.Balance, req.BalanceDecimal, false)
	if err != nil {
		services.SendMarketError(w, err)
		return
	}

	acct, err := h.market.OpenAccount(r.Context(), req.AccountID, balance)
	if err != nil {
		services.SendMarketError(w, err)
		return
	}
	services.SendJSON(w, http.StatusCreated, toAccountResponse(acct.ID, acct.Balance))
}

// Balance returns an account balance
// @Summary Account Balance
// @Tags Accounts
// @Produce json
// @Param accountId path string true "Account ID"
// @Success 200 {object} accountResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{accountId}/balance [get]
func (h *MarketHandler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	balance, err := h.market.Balance(accountID)
	if err != nil {
		services.SendMarketError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, toAccountResponse(accountID, balance))
}

// Deposit credits an existing account
// @Summary Deposit Funds
// @Tags Accounts
// @Accept json
// @Produce json
// @Param accountId path string true "Account ID"
// @Param request body object{amount=int64,amount_decimal=string} true "Deposit request"
// @Success 200 {object} accountResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{accountId}/deposit [post]
func (h *MarketHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount        *int64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
		AmountDecimal string `json:"amount_decimal,omitempty"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	amt, err := amount(req.Amount, req.AmountDecimal, true)
	if err != nil {
		services.SendMarketError(w, err)
		return
	}

	acct, err := h.market.Deposit(r.Context(), chi.URLParam(r, "accountId"), amt)
	if err != nil {
		services.SendMarketError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, toAccountResponse(acct.ID, acct.Balance))
}

// IssueAsset records the first owner of an asset
// @Summary Issue Asset
// @Tags Assets
// @Accept json
// @Produce json
// @Param request body object{asset_id=string,owner_id=string} true "Asset issuance request"
// @Success 201 {object} object{asset_id=string,owner_id=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /assets [post]
func (h *MarketHandler) IssueAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetID string `json:"asset_id" validate:"required,max=128"`
		OwnerID string `json:"owner_id" validate:"required,max=128"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	asset, err := h.market.IssueAsset(r.Context(), req.AssetID, req.OwnerID)
	if err != nil {
		services.SendMarketError(w, err)
		return
	}
	services.SendJSON(w, http.StatusCreated, map[string]string{
		"asset_id": asset.ID,
		"owner_id": asset.OwnerID,
	})
}

// @Summary Asset Owner
// @Tags Assets
// @Produce json
// @Param assetId path string true "Asset ID"
// @Success 200 {object} object{asset_id=string,owner_id=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /assets/{assetId}/owner [get]
func (h *MarketHandler) Owner(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetId")
	owner, err := h.market.Owner(assetID)
	if err != nil {
		services.SendMarketError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, map[string]string{
		"asset_id": assetID,
		"owner_id": owner,
	})
}

// CreateListing offers an asset for sale. The price is given either in
// minor units or as a decimal string.
// @Summary Create Listing
// @Description List an owned asset at a fixed price with an optional expiry
// @Tags Listings
// @Accept json
// @Produce json
// @Param request body object{asset_id=string,seller_id=string,price=int64,price_decimal=string,expires_at=string} true "Listing request"
// @Success 201 {object} listingResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /listings [post]
func (h *MarketHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetID      string     `json:"asset_id" validate:"required,max=128"`
		SellerID     string     `json:"seller_id" validate:"required,max=128"`
		Price        *int64     `json:"price,omitempty"`
		PriceDecimal string     `json:"price_decimal,omitempty"`
		ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	price, err := amount(req.Price, req.PriceDecimal, true)
	if err != nil {
		services.SendMarketError(w, err)
		return
	}

	listing, err := h.market.CreateListing(r.Context(), req.AssetID, req.SellerID, price, req.ExpiresAt)
	if err != nil {
		services.SendMarketError(w, err)
		return
	}
	services.SendJSON(w, http.StatusCreated, toListingResponse(listing))
}

// ListListings returns active listings, or every listing of one seller when
// the seller query parameter is set.
// @Summary List Listings
// @Tags Listings
// @Produce json
// @Param seller query string false "Seller account ID"
// @Success 200 {object} object{listings=[]listingResponse,count=int}
// @Router /listings [get]
func (h *MarketHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	var listings []models.Listing
	if seller := r.URL.Query().Get("seller"); seller != "" {
		listings = h.market.ListingsBySeller(seller)
	} else {
		listings = h.market.ActiveListings()
	}
	services.SendJSON(w, http.StatusOK, map[string]any{
		"listings": toListingResponses(listings),
		"count":    len(listings),
	})
}

// @Summary Get Listing
// @Tags Listings
// @Produce json
// @Param listingId path string true "Listing ID"
// @Success 200 {object} listingResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /listings/{listingId} [get]
func (h *MarketHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.market.GetListing(chi.URLParam(r, "listingId"))
	if err != nil {
		services.SendMarketError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, toListingResponse(listing))
}

// UpdateListing changes the price or expiry of an active listing, or moves
// it to cancelled or expired
// @Summary Update Listing
// @Tags Listings
// @Accept json
// @Produce json
// @Param listingId path string true "Listing ID"
// @Param request body object{price=int64,price_decimal=string,expires_at=string,status=string} true "Listing patch"
// @Success 200 {object} listingResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /listings/{listingId} [patch]
func (h *MarketHandler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price        *int64     `json:"price,omitempty"`
		PriceDecimal string     `json:"price_decimal,omitempty"`
		ExpiresAt    *time.Time `json:"expires_at,omitempty"`
		Status       *string    `json:"status,omitempty" validate:"omitempty,oneof=active sold cancelled expired"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	var patch market.ListingPatch
	if req.Price != nil || req.PriceDecimal != "" {
		price, err := amount(req.Price, req.PriceDecimal, true)
		if err != nil {
			services.SendMarketError(w, err)
			return
		}
		patch.Price = &price
	}
	patch.ExpiresAt = req.ExpiresAt
	if req.Status != nil {
		status := models.ListingStatus(*req.Status)
		patch.Status = &status
	}

	listing, err := h.market.UpdateListing(r.Context(), chi.URLParam(r, "listingId"), patch)
	if err != nil {
		services.SendMarketError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, toListingResponse(listing))
}

// @Summary Cancel Listing
// @Tags Listings
// @Produce json
// @Param listingId path string true "Listing ID"
// @Success 200 {object} listingResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /listings/{listingId}/cancel [post]
func (h *MarketHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.market.CancelListing(r.Context(), chi.URLParam(r, "listingId"))
	if err != nil {
		services.SendMarketError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, toListingResponse(listing))
}

// Purchase buys a listing for buyer_id and returns the audit record.
// @Summary Purchase Listing
// @Description Debit the buyer, credit the seller, transfer the asset and mark the listing sold as one unit
// @Tags Listings
// @Accept json
// @Produce json
// @Param listingId path string true "Listing ID"
// @Param request body object{buyer_id=string} true "Purchase request"
// @Success 200 {object} object{success=bool,record=auditResponse}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /listings/{listingId}/purchase [post]
func (h *MarketHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuyerID string `json:"buyer_id" validate:"required,max=128"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.market.Purchase(r.Context(), chi.URLParam(r, "listingId"), req.BuyerID)
	if err != nil {
		services.SendMarketError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"record":  toAuditResponse(rec),
	})
}

// AuditTrail filters audit records by listing_id, buyer_id, seller_id and
// an RFC 3339 [from, to) window.
// @Summary Audit Trail
// @Tags Audit
// @Produce json
// @Param listing_id query string false "Listing ID"
// @Param buyer_id query string false "Buyer account ID"
// @Param seller_id query string false "Seller account ID"
// @Param from query string false "Inclusive lower bound (RFC 3339)"
// @Param to query string false "Exclusive upper bound (RFC 3339)"
// @Success 200 {object} object{records=[]auditResponse,count=int}
// @Failure 400 {object} services.ErrorResponse
// @Router /audit [get]
func (h *MarketHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.AuditFilter{
		ListingID: q.Get("listing_id"),
		BuyerID:   q.Get("buyer_id"),
		SellerID:  q.Get("seller_id"),
	}

	var err error
	if f.From, err = parseTime(q.Get("from")); err != nil {
		services.SendErrorResponse(w, "Invalid 'from' time, expected RFC 3339", http.StatusBadRequest, nil)
		return
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		services.SendErrorResponse(w, "Invalid 'to' time, expected RFC 3339", http.StatusBadRequest, nil)
		return
	}

	records := h.market.AuditTrail(f)
	out := make([]auditResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toAuditResponse(rec))
	}
	services.SendJSON(w, http.StatusOK, map[string]any{
		"records": out,
		"count":   len(out),
	})
}

// decode reads a single JSON object into dst and validates it. It writes the
// error response and returns false on failure.
func (h *MarketHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := h.validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

var errAmountFields = errors.New("give exactly one of the minor-unit and decimal amount fields")

// amount resolves an amount sent either as minor units or as a decimal
// string. Range checks are left to the marketplace.
func amount(minor *int64, decimal string, required bool) (int64, error) {
	switch {
	case minor != nil && decimal != "":
		return 0, fmt.Errorf("%w: %s", money.ErrInvalidAmount, errAmountFields)
	case minor != nil:
		return *minor, nil
	case decimal != "":
		return money.Parse(decimal)
	case required:
		return 0, fmt.Errorf("%w: %s", money.ErrInvalidAmount, errAmountFields)
	default:
		return 0, nil
	}
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
