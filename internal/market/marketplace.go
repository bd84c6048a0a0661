package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tabmarket/backend/internal/clock"
	"github.com/tabmarket/backend/internal/models"
)

// Marketplace coordinates the ledger, the asset registry, the listing store
// and the audit log. Every write runs under one exclusive lock and is either
// applied and journalled in full or rolled back, so readers never see a
// partially applied operation.
type Marketplace struct {
	mu        sync.RWMutex
	ledger    *Ledger
	registry  *Registry
	listings  *ListingStore
	audit     *AuditLog
	journal   Journal
	publisher Publisher
	clock     clock.Clock
}

type Option func(*Marketplace)

func WithClock(c clock.Clock) Option {
	return func(m *Marketplace) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithJournal persists every committed change set through j.
func WithJournal(j Journal) Option {
	return func(m *Marketplace) {
		if j != nil {
			m.journal = j
		}
	}
}

// WithPublisher announces committed purchases through p.
func WithPublisher(p Publisher) Option {
	return func(m *Marketplace) {
		if p != nil {
			m.publisher = p
		}
	}
}

// WithListingIDs overrides how new listing ids are generated.
func WithListingIDs(next func() string) Option {
	return func(m *Marketplace) {
		if next != nil {
			m.listings.newID = next
		}
	}
}

func New(opts ...Option) *Marketplace {
	m := &Marketplace{
		ledger:    NewLedger(),
		registry:  NewRegistry(),
		listings:  NewListingStore(),
		audit:     NewAuditLog(),
		journal:   nopJournal{},
		publisher: nopPublisher{},
		clock:     clock.System{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load restores state from the journal. It is meant to run once, before the
// marketplace serves requests.
func (m *Marketplace) Load(ctx context.Context) error {
	state, err := m.journal.Load(ctx)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range state.Accounts {
		m.ledger.restore(state.Accounts[i].ID, &state.Accounts[i])
	}
	for i := range state.Assets {
		m.registry.restore(state.Assets[i].ID, &state.Assets[i])
	}
	for i := range state.Listings {
		m.listings.restore(state.Listings[i].ID, &state.Listings[i])
	}
	if err := m.audit.load(state.Audit); err != nil {
		return fmt.Errorf("load journal: %w", err)
	}

	log.Printf("[MARKET] Restored %d accounts, %d assets, %d listings, %d audit records",
		len(state.Accounts), len(state.Assets), len(state.Listings), len(state.Audit))
	return nil
}

// Purchase buys a listing for buyerID. Preconditions are checked in order
// and the first failure is returned without touching any state. Once they
// pass, the buyer is debited, the seller credited, the asset transferred,
// the listing marked sold and one audit record appended, all as one unit.
func (m *Marketplace) Purchase(ctx context.Context, listingID, buyerID string) (models.AuditRecord, error) {
	m.mu.Lock()
	rec, err := m.purchaseLocked(ctx, listingID, buyerID)
	m.mu.Unlock()
	if err != nil {
		return models.AuditRecord{}, err
	}

	m.audit.publish(rec)
	// The purchase is committed; a cancelled request must not drop its event.
	if err := m.publisher.Publish(context.WithoutCancel(ctx), models.NewPurchaseEvent(rec)); err != nil {
		log.Printf("[EVENTS] Failed to publish purchase of listing %s: %v", rec.ListingID, err)
	}
	return rec, nil
}

func (m *Marketplace) purchaseLocked(ctx context.Context, listingID, buyerID string) (models.AuditRecord, error) {
	now := m.clock.Now()

	listing, ok := m.listings.lookup(listingID)
	if !ok {
		return models.AuditRecord{}, fmt.Errorf("%w: %s", ErrListingNotFound, listingID)
	}
	if !listing.Purchasable(now) {
		return models.AuditRecord{}, fmt.Errorf("%w: %s is %s", ErrListingNotFound, listingID, listing.Effective(now).Status)
	}
	if !m.ledger.Exists(buyerID) {
		return models.AuditRecord{}, fmt.Errorf("%w: buyer %s", ErrPartyNotFound, buyerID)
	}
	if !m.ledger.Exists(listing.SellerID) {
		return models.AuditRecord{}, fmt.Errorf("%w: seller %s", ErrPartyNotFound, listing.SellerID)
	}
	if buyerID == listing.SellerID {
		return models.AuditRecord{}, fmt.Errorf("%w: %s", ErrSelfPurchase, buyerID)
	}
	if owner, err := m.registry.Owner(listing.AssetID); err == nil && owner == buyerID {
		return models.AuditRecord{}, fmt.Errorf("%w: %s owns %s", ErrAlreadyOwned, buyerID, listing.AssetID)
	}
	balance, err := m.ledger.Balance(buyerID)
	if err != nil {
		return models.AuditRecord{}, fmt.Errorf("%w: buyer %s", ErrPartyNotFound, buyerID)
	}
	if balance < listing.Price {
		return models.AuditRecord{}, fmt.Errorf("%w: buyer %s has %d, price is %d", ErrInsufficientFunds, buyerID, balance, listing.Price)
	}

	u := m.begin()
	rec, err := m.applyPurchase(ctx, u, *listing, buyerID, now)
	if err != nil {
		u.rollback()
		log.Printf("[MARKET] Purchase of listing %s by %s rolled back: %v", listingID, buyerID, err)
		return models.AuditRecord{}, fmt.Errorf("%w: listing %s", ErrTransactionFailed, listingID)
	}
	return rec, nil
}

func (m *Marketplace) applyPurchase(ctx context.Context, u *unit, listing models.Listing, buyerID string, now time.Time) (models.AuditRecord, error) {
	u.touchAccount(buyerID)
	buyer, err := m.ledger.Debit(buyerID, listing.Price, now)
	if err != nil {
		return models.AuditRecord{}, fmt.Errorf("debit buyer: %w", err)
	}
	u.account(buyer)

	u.touchAccount(listing.SellerID)
	seller, err := m.ledger.Credit(listing.SellerID, listing.Price, now)
	if err != nil {
		return models.AuditRecord{}, fmt.Errorf("credit seller: %w", err)
	}
	u.account(seller)

	u.touchAsset(listing.AssetID)
	asset, err := m.registry.Transfer(listing.AssetID, listing.SellerID, buyerID, now)
	if err != nil {
		return models.AuditRecord{}, fmt.Errorf("transfer asset: %w", err)
	}
	u.asset(asset)

	u.touchListing(listing.ID)
	sold, err := m.listings.MarkSold(listing.ID, now)
	if err != nil {
		return models.AuditRecord{}, fmt.Errorf("mark sold: %w", err)
	}
	u.listing(sold)

	rec := m.audit.Append(models.AuditRecord{
		ListingID: listing.ID,
		AssetID:   listing.AssetID,
		SellerID:  listing.SellerID,
		BuyerID:   buyerID,
		Price:     listing.Price,
		CreatedAt: now,
	})
	u.audit(rec)

	if err := m.journal.Commit(ctx, u.changes); err != nil {
		return models.AuditRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// CreateListing offers an asset owned by sellerID at a fixed price.
func (m *Marketplace) CreateListing(ctx context.Context, assetID, sellerID string, price int64, expiresAt *time.Time) (models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if price <= 0 {
		return models.Listing{}, fmt.Errorf("%w: %d", ErrInvalidPrice, price)
	}
	if !m.ledger.Exists(sellerID) {
		return models.Listing{}, fmt.Errorf("%w: seller %s", ErrPartyNotFound, sellerID)
	}
	owner, err := m.registry.Owner(assetID)
	if err != nil || owner != sellerID {
		return models.Listing{}, fmt.Errorf("%w: %s does not own %s", ErrAssetNotOwnedBySeller, sellerID, assetID)
	}

	listing, err := m.listings.Create(assetID, sellerID, price, expiresAt, now)
	if err != nil {
		return models.Listing{}, err
	}

	u := m.begin()
	u.undo = append(u.undo, func() { m.listings.restore(listing.ID, nil) })
	u.listing(listing)
	if err := m.commit(ctx, u); err != nil {
		return models.Listing{}, err
	}

	log.Printf("[MARKET] Listing %s created: asset=%s seller=%s price=%d", listing.ID, assetID, sellerID, price)
	return listing, nil
}

// UpdateListing edits the price or expiry of an active listing, or moves it
// to cancelled or expired.
func (m *Marketplace) UpdateListing(ctx context.Context, listingID string, patch ListingPatch) (models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.begin()
	u.touchListing(listingID)
	listing, err := m.listings.Update(listingID, patch, m.clock.Now())
	if err != nil {
		return models.Listing{}, err
	}
	u.listing(listing)
	if err := m.commit(ctx, u); err != nil {
		return models.Listing{}, err
	}
	return listing, nil
}

func (m *Marketplace) CancelListing(ctx context.Context, listingID string) (models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.begin()
	u.touchListing(listingID)
	listing, err := m.listings.Cancel(listingID, m.clock.Now())
	if err != nil {
		return models.Listing{}, err
	}
	u.listing(listing)
	if err := m.commit(ctx, u); err != nil {
		return models.Listing{}, err
	}

	log.Printf("[MARKET] Listing %s cancelled", listingID)
	return listing, nil
}

func (m *Marketplace) GetListing(listingID string) (models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listings.Get(listingID, m.clock.Now())
}

// ActiveListings returns listings that are active and unexpired.
func (m *Marketplace) ActiveListings() []models.Listing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listings.Active(m.clock.Now())
}

func (m *Marketplace) ListingsBySeller(sellerID string) []models.Listing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listings.BySeller(sellerID, m.clock.Now())
}

// SweepExpired stores the expired status for every active listing whose
// expiry has passed and returns how many were changed.
func (m *Marketplace) SweepExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	u := m.begin()
	for _, id := range m.listings.DueForExpiry(now) {
		u.touchListing(id)
		if listing, ok := m.listings.Expire(id, now); ok {
			u.listing(listing)
		}
	}
	if u.changes.Empty() {
		return 0, nil
	}
	if err := m.commit(ctx, u); err != nil {
		return 0, err
	}
	return len(u.changes.Listings), nil
}

// OpenAccount provisions an account with an opening balance.
func (m *Marketplace) OpenAccount(ctx context.Context, accountID string, balance int64) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, err := m.ledger.Open(accountID, balance, m.clock.Now())
	if err != nil {
		return models.Account{}, err
	}

	u := m.begin()
	u.undo = append(u.undo, func() { m.ledger.restore(accountID, nil) })
	u.account(acct)
	if err := m.commit(ctx, u); err != nil {
		return models.Account{}, err
	}
	return acct, nil
}

// Deposit credits an existing account.
func (m *Marketplace) Deposit(ctx context.Context, accountID string, amount int64) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ledger.Exists(accountID) {
		return models.Account{}, fmt.Errorf("%w: %s", ErrPartyNotFound, accountID)
	}

	u := m.begin()
	u.touchAccount(accountID)
	acct, err := m.ledger.Credit(accountID, amount, m.clock.Now())
	if err != nil {
		return models.Account{}, err
	}
	u.account(acct)
	if err := m.commit(ctx, u); err != nil {
		return models.Account{}, err
	}
	return acct, nil
}

func (m *Marketplace) Balance(accountID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.Balance(accountID)
}

// IssueAsset records the first owner of an asset.
func (m *Marketplace) IssueAsset(ctx context.Context, assetID, ownerID string) (models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ledger.Exists(ownerID) {
		return models.Asset{}, fmt.Errorf("%w: %s", ErrPartyNotFound, ownerID)
	}
	asset, err := m.registry.Issue(assetID, ownerID, m.clock.Now())
	if err != nil {
		return models.Asset{}, err
	}

	u := m.begin()
	u.undo = append(u.undo, func() { m.registry.restore(assetID, nil) })
	u.asset(asset)
	if err := m.commit(ctx, u); err != nil {
		return models.Asset{}, err
	}
	return asset, nil
}

func (m *Marketplace) Owner(assetID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.Owner(assetID)
}

// AuditTrail returns the audit records matching f in append order.
func (m *Marketplace) AuditTrail(f models.AuditFilter) []models.AuditRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.audit.Query(f)
}

func (m *Marketplace) commit(ctx context.Context, u *unit) error {
	if err := m.journal.Commit(ctx, u.changes); err != nil {
		u.rollback()
		log.Printf("[JOURNAL] Commit failed, change rolled back: %v", err)
		return errors.Join(ErrTransactionFailed, err)
	}
	return nil
}
