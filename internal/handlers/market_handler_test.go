package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabmarket/backend/internal/clock"
	"github.com/tabmarket/backend/internal/market"
	"github.com/tabmarket/backend/internal/services"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*market.Marketplace, http.Handler) {
	t.Helper()
	m := market.New(
		market.WithClock(clock.NewManual(testNow)),
		market.WithListingIDs(func() string { return "listing-1" }),
	)
	r := chi.NewRouter()
	r.Route("/api/v1", NewMarketHandler(m).Routes)
	return m, r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// seed opens S (0) and B (50) and issues A1 to S through the API.
func seed(t *testing.T, h http.Handler) {
	t.Helper()
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/api/v1/accounts", `{"account_id":"S"}`).Code)
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/api/v1/accounts", `{"account_id":"B","balance_decimal":"0.50"}`).Code)
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/api/v1/assets", `{"asset_id":"A1","owner_id":"S"}`).Code)
}

func TestMarketHandler_PurchaseFlow(t *testing.T) {
	_, h := newTestServer(t)
	seed(t, h)

	w := do(t, h, "POST", "/api/v1/listings", `{"asset_id":"A1","seller_id":"S","price":20}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	listing := decodeBody[listingResponse](t, w)
	assert.Equal(t, "listing-1", listing.ID)
	assert.Equal(t, "active", listing.Status)
	assert.Equal(t, "0.20", listing.PriceDisplay)

	w = do(t, h, "POST", "/api/v1/listings/listing-1/purchase", `{"buyer_id":"B"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[struct {
		Success bool          `json:"success"`
		Record  auditResponse `json:"record"`
	}](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(1), resp.Record.Seq)
	assert.Equal(t, "B", resp.Record.BuyerID)
	assert.Equal(t, int64(20), resp.Record.Price)

	balance := decodeBody[accountResponse](t, do(t, h, "GET", "/api/v1/accounts/B/balance", ""))
	assert.Equal(t, int64(30), balance.Balance)
	assert.Equal(t, "0.30", balance.BalanceDisplay)

	owner := decodeBody[map[string]string](t, do(t, h, "GET", "/api/v1/assets/A1/owner", ""))
	assert.Equal(t, "B", owner["owner_id"])

	got := decodeBody[listingResponse](t, do(t, h, "GET", "/api/v1/listings/listing-1", ""))
	assert.Equal(t, "sold", got.Status)

	w = do(t, h, "POST", "/api/v1/listings/listing-1/purchase", `{"buyer_id":"B"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, services.CodeListingNotFound, decodeBody[services.ErrorResponse](t, w).Code)

	audit := decodeBody[struct {
		Records []auditResponse `json:"records"`
		Count   int             `json:"count"`
	}](t, do(t, h, "GET", "/api/v1/audit?buyer_id=B", ""))
	assert.Equal(t, 1, audit.Count)
	assert.Equal(t, "listing-1", audit.Records[0].ListingID)
}

func TestMarketHandler_PurchaseErrors(t *testing.T) {
	tests := []struct {
		name   string
		price  string
		buyer  string
		status int
		code   string
	}{
		{"self purchase", `20`, "S", http.StatusConflict, services.CodeSelfPurchase},
		{"insufficient funds", `80`, "B", http.StatusConflict, services.CodeInsufficientFunds},
		{"unknown buyer", `20`, "X", http.StatusNotFound, services.CodePartyNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, h := newTestServer(t)
			seed(t, h)
			require.Equal(t, http.StatusCreated, do(t, h, "POST", "/api/v1/listings", `{"asset_id":"A1","seller_id":"S","price":`+tt.price+`}`).Code)

			w := do(t, h, "POST", "/api/v1/listings/listing-1/purchase", `{"buyer_id":"`+tt.buyer+`"}`)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeBody[services.ErrorResponse](t, w).Code)

			balance, err := m.Balance("B")
			require.NoError(t, err)
			assert.Equal(t, int64(50), balance)
			owner, err := m.Owner("A1")
			require.NoError(t, err)
			assert.Equal(t, "S", owner)
		})
	}
}

func TestMarketHandler_CreateListingValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing seller", `{"asset_id":"A1","price":20}`, http.StatusBadRequest, services.CodeValidationFailed},
		{"unknown field", `{"asset_id":"A1","seller_id":"S","price":20,"discount":5}`, http.StatusBadRequest, services.CodeInvalidRequest},
		{"two objects", `{"asset_id":"A1","seller_id":"S","price":20}{}`, http.StatusBadRequest, services.CodeInvalidRequest},
		{"zero price", `{"asset_id":"A1","seller_id":"S","price":0}`, http.StatusBadRequest, services.CodeInvalidPrice},
		{"no price", `{"asset_id":"A1","seller_id":"S"}`, http.StatusBadRequest, services.CodeInvalidAmount},
		{"both prices", `{"asset_id":"A1","seller_id":"S","price":20,"price_decimal":"0.20"}`, http.StatusBadRequest, services.CodeInvalidAmount},
		{"too many decimals", `{"asset_id":"A1","seller_id":"S","price_decimal":"0.205"}`, http.StatusBadRequest, services.CodeInvalidAmount},
		{"past expiry", `{"asset_id":"A1","seller_id":"S","price":20,"expires_at":"2026-02-01T00:00:00Z"}`, http.StatusBadRequest, services.CodeInvalidExpiry},
		{"not the owner", `{"asset_id":"A1","seller_id":"B","price":20}`, http.StatusConflict, services.CodeAssetNotOwnedBySeller},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newTestServer(t)
			seed(t, h)

			w := do(t, h, "POST", "/api/v1/listings", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decodeBody[services.ErrorResponse](t, w).Code)
		})
	}

	t.Run("decimal price", func(t *testing.T) {
		_, h := newTestServer(t)
		seed(t, h)

		w := do(t, h, "POST", "/api/v1/listings", `{"asset_id":"A1","seller_id":"S","price_decimal":"0.25"}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, int64(25), decodeBody[listingResponse](t, w).Price)
	})
}

func TestMarketHandler_ListingLifecycle(t *testing.T) {
	_, h := newTestServer(t)
	seed(t, h)
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/api/v1/listings", `{"asset_id":"A1","seller_id":"S","price":20}`).Code)

	w := do(t, h, "PATCH", "/api/v1/listings/listing-1", `{"price":35,"expires_at":"2026-03-02T09:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeBody[listingResponse](t, w)
	assert.Equal(t, int64(35), updated.Price)
	require.NotNil(t, updated.ExpiresAt)

	w = do(t, h, "PATCH", "/api/v1/listings/listing-1", `{"status":"sold"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, services.CodeInvalidTransition, decodeBody[services.ErrorResponse](t, w).Code)

	w = do(t, h, "PATCH", "/api/v1/listings/listing-1", `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	active := decodeBody[struct {
		Count int `json:"count"`
	}](t, do(t, h, "GET", "/api/v1/listings", ""))
	assert.Equal(t, 1, active.Count)

	w = do(t, h, "POST", "/api/v1/listings/listing-1/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decodeBody[listingResponse](t, w).Status)

	w = do(t, h, "POST", "/api/v1/listings/listing-1/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	active = decodeBody[struct {
		Count int `json:"count"`
	}](t, do(t, h, "GET", "/api/v1/listings", ""))
	assert.Equal(t, 0, active.Count)

	bySeller := decodeBody[struct {
		Listings []listingResponse `json:"listings"`
		Count    int               `json:"count"`
	}](t, do(t, h, "GET", "/api/v1/listings?seller=S", ""))
	assert.Equal(t, 1, bySeller.Count)
	assert.Equal(t, "cancelled", bySeller.Listings[0].Status)

	w = do(t, h, "GET", "/api/v1/listings/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarketHandler_Accounts(t *testing.T) {
	_, h := newTestServer(t)
	seed(t, h)

	w := do(t, h, "POST", "/api/v1/accounts", `{"account_id":"S"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, services.CodeAccountExists, decodeBody[services.ErrorResponse](t, w).Code)

	w = do(t, h, "POST", "/api/v1/accounts/B/deposit", `{"amount_decimal":"1.00"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(150), decodeBody[accountResponse](t, w).Balance)

	w = do(t, h, "POST", "/api/v1/accounts/B/deposit", `{"amount":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, "POST", "/api/v1/accounts/X/deposit", `{"amount":10}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, "GET", "/api/v1/accounts/X/balance", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, "POST", "/api/v1/assets", `{"asset_id":"A1","owner_id":"B"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, services.CodeAssetExists, decodeBody[services.ErrorResponse](t, w).Code)

	w = do(t, h, "GET", "/api/v1/assets/A9/owner", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarketHandler_AuditQuery(t *testing.T) {
	_, h := newTestServer(t)
	seed(t, h)
	require.Equal(t, http.StatusCreated, do(t, h, "POST", "/api/v1/listings", `{"asset_id":"A1","seller_id":"S","price":20}`).Code)
	require.Equal(t, http.StatusOK, do(t, h, "POST", "/api/v1/listings/listing-1/purchase", `{"buyer_id":"B"}`).Code)

	type auditList struct {
		Count int `json:"count"`
	}

	assert.Equal(t, 1, decodeBody[auditList](t, do(t, h, "GET", "/api/v1/audit?seller_id=S&from=2026-03-01T09:00:00Z", "")).Count)
	assert.Equal(t, 0, decodeBody[auditList](t, do(t, h, "GET", "/api/v1/audit?to=2026-03-01T09:00:00Z", "")).Count)
	assert.Equal(t, 0, decodeBody[auditList](t, do(t, h, "GET", "/api/v1/audit?listing_id=other", "")).Count)

	w := do(t, h, "GET", "/api/v1/audit?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
