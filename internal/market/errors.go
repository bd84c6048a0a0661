package market

import "errors"

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrAccountExists         = errors.New("account already exists")
	ErrNotFound              = errors.New("not found")
	ErrAssetExists           = errors.New("asset already issued")
	ErrOwnershipMismatch     = errors.New("ownership mismatch")
	ErrInvalidPrice          = errors.New("invalid price")
	ErrInvalidExpiry         = errors.New("invalid expiry")
	ErrAssetNotOwnedBySeller = errors.New("asset not owned by seller")
	ErrInvalidTransition     = errors.New("invalid listing transition")
	ErrListingNotFound       = errors.New("listing not found or not purchasable")
	ErrPartyNotFound         = errors.New("party not found")
	ErrSelfPurchase          = errors.New("buyer is the seller")
	ErrAlreadyOwned          = errors.New("buyer already owns asset")
	ErrTransactionFailed     = errors.New("transaction failed")
	ErrBalanceOverflow       = errors.New("balance overflow")
	ErrSequenceOutOfOrder    = errors.New("audit sequence out of order")
	ErrDuplicateListingID    = errors.New("listing id already in use")
)
