package market

import (
	"context"

	"github.com/tabmarket/backend/internal/models"
)

// ChangeSet lists the entity records written by one committed operation.
// Load returns the whole persisted state in the same shape.
type ChangeSet struct {
	Accounts []models.Account
	Assets   []models.Asset
	Listings []models.Listing
	Audit    []models.AuditRecord
}

func (c ChangeSet) Empty() bool {
	return len(c.Accounts) == 0 && len(c.Assets) == 0 && len(c.Listings) == 0 && len(c.Audit) == 0
}

// Journal persists marketplace state across restarts. Commit must apply the
// change set entirely or not at all.
type Journal interface {
	Load(ctx context.Context) (ChangeSet, error)
	Commit(ctx context.Context, changes ChangeSet) error
}

// Publisher announces committed purchases to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event models.PurchaseEvent) error
}

type nopJournal struct{}

func (nopJournal) Load(context.Context) (ChangeSet, error) { return ChangeSet{}, nil }

func (nopJournal) Commit(context.Context, ChangeSet) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.PurchaseEvent) error { return nil }
