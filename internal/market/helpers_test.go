package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tabmarket/backend/internal/models"
)

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// memJournal records commits and can be told to fail.
type memJournal struct {
	mu      sync.Mutex
	state   ChangeSet
	commits []ChangeSet
	fail    error
}

func (j *memJournal) Load(context.Context) (ChangeSet, error) {
	return j.state, nil
}

func (j *memJournal) Commit(_ context.Context, changes ChangeSet) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail != nil {
		return j.fail
	}
	j.commits = append(j.commits, changes)
	return nil
}

func (j *memJournal) failWith(err error) {
	j.mu.Lock()
	j.fail = err
	j.mu.Unlock()
}

var errDiskFull = errors.New("disk full")

func auditRecord(listingID, sellerID, buyerID string, at time.Time) models.AuditRecord {
	return models.AuditRecord{
		ListingID: listingID,
		AssetID:   "asset-" + listingID,
		SellerID:  sellerID,
		BuyerID:   buyerID,
		Price:     10,
		CreatedAt: at,
	}
}

func auditFilter(listingID, buyerID, sellerID string, from, to time.Time) models.AuditFilter {
	return models.AuditFilter{ListingID: listingID, BuyerID: buyerID, SellerID: sellerID, From: from, To: to}
}

// state captures everything a failed purchase must leave untouched.
type state struct {
	buyer, seller int64
	owner         string
	status        models.ListingStatus
	audit         int
}

func capture(t interface{ Helper() }, m *Marketplace, listingID, buyerID, sellerID, assetID string) state {
	t.Helper()
	buyer, _ := m.Balance(buyerID)
	seller, _ := m.Balance(sellerID)
	owner, _ := m.Owner(assetID)
	var status models.ListingStatus
	if l, err := m.GetListing(listingID); err == nil {
		status = l.Status
	}
	return state{buyer: buyer, seller: seller, owner: owner, status: status, audit: len(m.AuditTrail(models.AuditFilter{}))}
}
