package models

import (
	"time"
)

// PurchaseEvent is published once a purchase has committed.
type PurchaseEvent struct {
	EventID    string    `json:"event_id"`
	Seq        int64     `json:"seq"`
	ListingID  string    `json:"listing_id"`
	AssetID    string    `json:"asset_id"`
	SellerID   string    `json:"seller_id"`
	BuyerID    string    `json:"buyer_id"`
	Price      int64     `json:"price"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewPurchaseEvent builds the event describing a committed audit record.
func NewPurchaseEvent(r AuditRecord) PurchaseEvent {
	return PurchaseEvent{
		EventID:    "purchase-" + r.ListingID,
		Seq:        r.Seq,
		ListingID:  r.ListingID,
		AssetID:    r.AssetID,
		SellerID:   r.SellerID,
		BuyerID:    r.BuyerID,
		Price:      r.Price,
		OccurredAt: r.CreatedAt,
	}
}
