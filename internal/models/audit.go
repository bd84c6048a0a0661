package models

import "time"

// AuditRecord documents one completed purchase. Records are immutable once appended.
type AuditRecord struct {
	Seq       int64     `json:"seq" db:"seq"`
	ListingID string    `json:"listing_id" db:"listing_id"`
	AssetID   string    `json:"asset_id" db:"asset_id"`
	SellerID  string    `json:"seller_id" db:"seller_id"`
	BuyerID   string    `json:"buyer_id" db:"buyer_id"`
	Price     int64     `json:"price" db:"price"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AuditFilter selects audit records. Zero-valued fields match everything;
// From is inclusive and To is exclusive.
type AuditFilter struct {
	ListingID string
	BuyerID   string
	SellerID  string
	From      time.Time
	To        time.Time
}

// Match reports whether r satisfies every set field of f.
func (f AuditFilter) Match(r AuditRecord) bool {
	if f.ListingID != "" && r.ListingID != f.ListingID {
		return false
	}
	if f.BuyerID != "" && r.BuyerID != f.BuyerID {
		return false
	}
	if f.SellerID != "" && r.SellerID != f.SellerID {
		return false
	}
	if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.CreatedAt.Before(f.To) {
		return false
	}
	return true
}
