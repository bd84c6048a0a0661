package services

import (
	"errors"
	"net/http"

	"github.com/tabmarket/backend/internal/market"
	"github.com/tabmarket/backend/internal/money"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeInvalidAmount         = "INVALID_AMOUNT"
	CodeInvalidPrice          = "INVALID_PRICE"
	CodeInvalidExpiry         = "INVALID_EXPIRY"
	CodeNotFound              = "NOT_FOUND"
	CodeListingNotFound       = "LISTING_NOT_FOUND"
	CodePartyNotFound         = "PARTY_NOT_FOUND"
	CodeSelfPurchase          = "SELF_PURCHASE"
	CodeAlreadyOwned          = "ALREADY_OWNED"
	CodeInsufficientFunds     = "INSUFFICIENT_FUNDS"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeAssetNotOwnedBySeller = "ASSET_NOT_OWNED_BY_SELLER"
	CodeAccountExists         = "ACCOUNT_EXISTS"
	CodeAssetExists           = "ASSET_EXISTS"
	CodeBalanceOverflow       = "BALANCE_OVERFLOW"
	CodeTransactionFailed     = "TRANSACTION_FAILED"
)

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	// TransactionFailed first: a journal failure is joined with the
	// sentinel of the operation that was rolled back.
	{market.ErrTransactionFailed, http.StatusInternalServerError, CodeTransactionFailed},
	{market.ErrListingNotFound, http.StatusNotFound, CodeListingNotFound},
	{market.ErrPartyNotFound, http.StatusNotFound, CodePartyNotFound},
	{market.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{market.ErrSelfPurchase, http.StatusConflict, CodeSelfPurchase},
	{market.ErrAlreadyOwned, http.StatusConflict, CodeAlreadyOwned},
	{market.ErrInsufficientFunds, http.StatusConflict, CodeInsufficientFunds},
	{market.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
	{market.ErrAssetNotOwnedBySeller, http.StatusConflict, CodeAssetNotOwnedBySeller},
	{market.ErrAccountExists, http.StatusConflict, CodeAccountExists},
	{market.ErrAssetExists, http.StatusConflict, CodeAssetExists},
	{market.ErrBalanceOverflow, http.StatusConflict, CodeBalanceOverflow},
	{market.ErrInvalidPrice, http.StatusBadRequest, CodeInvalidPrice},
	{market.ErrInvalidExpiry, http.StatusBadRequest, CodeInvalidExpiry},
	{market.ErrInvalidAmount, http.StatusBadRequest, CodeInvalidAmount},
	{money.ErrInvalidAmount, http.StatusBadRequest, CodeInvalidAmount},
}

// ClassifyError returns the HTTP status and error code for err.
func ClassifyError(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, CodeTransactionFailed
}
