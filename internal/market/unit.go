package market

import (
	"github.com/tabmarket/backend/internal/models"
)

// unit collects the mutations of one operation together with the steps
// that put every touched entity back to its prior state.
type unit struct {
	m       *Marketplace
	changes ChangeSet
	undo    []func()
}

func (m *Marketplace) begin() *unit {
	return &unit{m: m}
}

func (u *unit) touchAccount(accountID string) {
	prev, err := u.m.ledger.Account(accountID)
	if err != nil {
		u.undo = append(u.undo, func() { u.m.ledger.restore(accountID, nil) })
		return
	}
	u.undo = append(u.undo, func() { u.m.ledger.restore(accountID, &prev) })
}

func (u *unit) touchAsset(assetID string) {
	prev, _ := u.m.registry.asset(assetID)
	u.undo = append(u.undo, func() { u.m.registry.restore(assetID, prev) })
}

func (u *unit) touchListing(listingID string) {
	prev, _ := u.m.listings.lookup(listingID)
	u.undo = append(u.undo, func() { u.m.listings.restore(listingID, prev) })
}

func (u *unit) account(a models.Account) {
	u.changes.Accounts = append(u.changes.Accounts, a)
}

func (u *unit) asset(a models.Asset) {
	u.changes.Assets = append(u.changes.Assets, a)
}

func (u *unit) listing(l models.Listing) {
	u.changes.Listings = append(u.changes.Listings, l)
}

func (u *unit) audit(r models.AuditRecord) {
	u.undo = append(u.undo, func() { u.m.audit.truncate(r.Seq) })
	u.changes.Audit = append(u.changes.Audit, r)
}

// rollback runs the undo steps newest first.
func (u *unit) rollback() {
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
	u.undo = nil
}
