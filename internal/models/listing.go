package models

import (
	"time"
)

type ListingStatus string

// Listing statuses. Every status other than active is terminal.
const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusCancelled ListingStatus = "cancelled"
	ListingStatusExpired   ListingStatus = "expired"
)

// Terminal reports whether no further transition is allowed out of s.
func (s ListingStatus) Terminal() bool {
	return s != ListingStatusActive
}

// Valid reports whether s is one of the known statuses.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusActive, ListingStatusSold, ListingStatusCancelled, ListingStatusExpired:
		return true
	}
	return false
}

// Listing is a fixed-price offer to sell one asset.
type Listing struct {
	ID        string        `json:"id" db:"id"`
	AssetID   string        `json:"asset_id" db:"asset_id"`
	SellerID  string        `json:"seller_id" db:"seller_id"`
	Price     int64         `json:"price" db:"price"` // in cents
	Status    ListingStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty" db:"expires_at"`
}

// Expired reports whether the listing's expiry has passed at now.
func (l Listing) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// Purchasable reports whether the listing can be bought at now.
func (l Listing) Purchasable(now time.Time) bool {
	return l.Status == ListingStatusActive && !l.Expired(now)
}

// Effective returns the listing as observed at now: an active listing whose
// expiry has passed reads as expired even before a sweep has stored it.
func (l Listing) Effective(now time.Time) Listing {
	if l.Status == ListingStatusActive && l.Expired(now) {
		l.Status = ListingStatusExpired
	}
	return l
}
