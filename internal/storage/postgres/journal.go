package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/lib/pq"
	"github.com/tabmarket/backend/internal/market"
	"github.com/tabmarket/backend/internal/models"
)

// ErrConflict is returned when a commit collides with a row written by
// another process, such as a duplicate audit sequence number.
var ErrConflict = errors.New("journal conflict")

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id         TEXT PRIMARY KEY,
	balance    BIGINT NOT NULL CHECK (balance >= 0),
	version    INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS assets (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL REFERENCES accounts (id),
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS listings (
	id         TEXT PRIMARY KEY,
	asset_id   TEXT NOT NULL REFERENCES assets (id),
	seller_id  TEXT NOT NULL REFERENCES accounts (id),
	price      BIGINT NOT NULL CHECK (price > 0),
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS audit_records (
	seq        BIGINT PRIMARY KEY,
	listing_id TEXT NOT NULL REFERENCES listings (id),
	asset_id   TEXT NOT NULL,
	seller_id  TEXT NOT NULL,
	buyer_id   TEXT NOT NULL,
	price      BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`

// Journal persists marketplace change sets to Postgres. Each Commit runs in
// a single SQL transaction.
type Journal struct {
	db *sql.DB
}

func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Migrate creates the journal tables if they do not exist.
func (j *Journal) Migrate(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

func (j *Journal) Commit(ctx context.Context, changes market.ChangeSet) error {
	if changes.Empty() {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range changes.Accounts {
		if err := upsertAccount(ctx, tx, a); err != nil {
			return classify(err)
		}
	}
	for _, a := range changes.Assets {
		if err := upsertAsset(ctx, tx, a); err != nil {
			return classify(err)
		}
	}
	for _, l := range changes.Listings {
		if err := upsertListing(ctx, tx, l); err != nil {
			return classify(err)
		}
	}
	for _, r := range changes.Audit {
		if err := insertAuditRecord(ctx, tx, r); err != nil {
			return classify(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func (j *Journal) Load(ctx context.Context) (market.ChangeSet, error) {
	var state market.ChangeSet
	var err error

	if state.Accounts, err = j.loadAccounts(ctx); err != nil {
		return market.ChangeSet{}, fmt.Errorf("load accounts: %w", err)
	}
	if state.Assets, err = j.loadAssets(ctx); err != nil {
		return market.ChangeSet{}, fmt.Errorf("load assets: %w", err)
	}
	if state.Listings, err = j.loadListings(ctx); err != nil {
		return market.ChangeSet{}, fmt.Errorf("load listings: %w", err)
	}
	if state.Audit, err = j.loadAudit(ctx); err != nil {
		return market.ChangeSet{}, fmt.Errorf("load audit records: %w", err)
	}

	log.Printf("[JOURNAL] Loaded %d accounts, %d assets, %d listings, %d audit records",
		len(state.Accounts), len(state.Assets), len(state.Listings), len(state.Audit))
	return state, nil
}

func upsertAccount(ctx context.Context, tx *sql.Tx, a models.Account) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, balance, version, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET balance = EXCLUDED.balance, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`,
		a.ID, a.Balance, a.Version, a.UpdatedAt)
	return err
}

func upsertAsset(ctx context.Context, tx *sql.Tx, a models.Asset) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO assets (id, owner_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id, updated_at = EXCLUDED.updated_at`,
		a.ID, a.OwnerID, a.UpdatedAt)
	return err
}

func upsertListing(ctx context.Context, tx *sql.Tx, l models.Listing) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO listings (id, asset_id, seller_id, price, status, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET price = EXCLUDED.price, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at`,
		l.ID, l.AssetID, l.SellerID, l.Price, string(l.Status), l.CreatedAt, l.UpdatedAt, nullTime(l))
	return err
}

func insertAuditRecord(ctx context.Context, tx *sql.Tx, r models.AuditRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_records (seq, listing_id, asset_id, seller_id, buyer_id, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.Seq, r.ListingID, r.AssetID, r.SellerID, r.BuyerID, r.Price, r.CreatedAt)
	return err
}

func (j *Journal) loadAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT id, balance, version, updated_at FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Balance, &a.Version, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (j *Journal) loadAssets(ctx context.Context) ([]models.Asset, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT id, owner_id, updated_at FROM assets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (j *Journal) loadListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, asset_id, seller_id, price, status, created_at, updated_at, expires_at
		FROM listings ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Listing
	for rows.Next() {
		var (
			l       models.Listing
			status  string
			expires sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.AssetID, &l.SellerID, &l.Price, &status, &l.CreatedAt, &l.UpdatedAt, &expires); err != nil {
			return nil, err
		}
		l.Status = models.ListingStatus(status)
		if !l.Status.Valid() {
			return nil, fmt.Errorf("listing %s has unknown status %q", l.ID, status)
		}
		if expires.Valid {
			t := expires.Time
			l.ExpiresAt = &t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (j *Journal) loadAudit(ctx context.Context) ([]models.AuditRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, listing_id, asset_id, seller_id, buyer_id, price, created_at
		FROM audit_records ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var r models.AuditRecord
		if err := rows.Scan(&r.Seq, &r.ListingID, &r.AssetID, &r.SellerID, &r.BuyerID, &r.Price, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullTime(l models.Listing) sql.NullTime {
	if l.ExpiresAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *l.ExpiresAt, Valid: true}
}

// classify maps Postgres constraint violations to ErrConflict.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "23503", "23514":
			return fmt.Errorf("%w: %s (%s)", ErrConflict, pqErr.Message, pqErr.Code)
		}
	}
	return err
}

var _ market.Journal = (*Journal)(nil)
