package market

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tabmarket/backend/internal/models"
)

// ListingPatch carries the optional fields of a listing update.
type ListingPatch struct {
	Price     *int64
	ExpiresAt *time.Time
	Status    *models.ListingStatus
}

// ListingStore owns listing records and enforces the lifecycle
// active -> {sold, cancelled, expired}. Listings are never deleted.
type ListingStore struct {
	mu       sync.RWMutex
	listings map[string]*models.Listing
	order    []string
	newID    func() string
}

func NewListingStore() *ListingStore {
	return &ListingStore{
		listings: make(map[string]*models.Listing),
		newID:    uuid.NewString,
	}
}

// Create stores a new active listing. Seller ownership of the asset is the
// caller's concern.
func (s *ListingStore) Create(assetID, sellerID string, price int64, expiresAt *time.Time, now time.Time) (models.Listing, error) {
	if price <= 0 {
		return models.Listing{}, fmt.Errorf("%w: %d", ErrInvalidPrice, price)
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return models.Listing{}, fmt.Errorf("%w: %s is not in the future", ErrInvalidExpiry, expiresAt.Format(time.RFC3339))
	}

	l := &models.Listing{
		ID:        s.newID(),
		AssetID:   assetID,
		SellerID:  sellerID,
		Price:     price,
		Status:    models.ListingStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: copyTime(expiresAt),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.listings[l.ID]; exists {
		return models.Listing{}, fmt.Errorf("%w: %s", ErrDuplicateListingID, l.ID)
	}
	s.listings[l.ID] = l
	s.order = append(s.order, l.ID)
	return cloneListing(l), nil
}

// Get returns the listing as observed at now.
func (s *ListingStore) Get(listingID string, now time.Time) (models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[listingID]
	if !ok {
		return models.Listing{}, fmt.Errorf("%w: listing %s", ErrNotFound, listingID)
	}
	return cloneListing(l).Effective(now), nil
}

// Update edits price and expiry, or moves the listing to cancelled or
// expired. Only active listings may be updated.
func (s *ListingStore) Update(listingID string, patch ListingPatch, now time.Time) (models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.activeLocked(listingID, now)
	if err != nil {
		return models.Listing{}, err
	}
	if patch.Price != nil && *patch.Price <= 0 {
		return models.Listing{}, fmt.Errorf("%w: %d", ErrInvalidPrice, *patch.Price)
	}
	if patch.ExpiresAt != nil && !patch.ExpiresAt.After(now) {
		return models.Listing{}, fmt.Errorf("%w: %s is not in the future", ErrInvalidExpiry, patch.ExpiresAt.Format(time.RFC3339))
	}
	if patch.Status != nil {
		switch *patch.Status {
		case models.ListingStatusCancelled, models.ListingStatusExpired:
		default:
			return models.Listing{}, fmt.Errorf("%w: cannot set status %q on listing %s", ErrInvalidTransition, *patch.Status, listingID)
		}
	}

	if patch.Price != nil {
		l.Price = *patch.Price
	}
	if patch.ExpiresAt != nil {
		l.ExpiresAt = copyTime(patch.ExpiresAt)
	}
	if patch.Status != nil {
		l.Status = *patch.Status
	}
	l.UpdatedAt = now
	return cloneListing(l), nil
}

func (s *ListingStore) Cancel(listingID string, now time.Time) (models.Listing, error) {
	return s.transition(listingID, models.ListingStatusCancelled, now)
}

func (s *ListingStore) MarkSold(listingID string, now time.Time) (models.Listing, error) {
	return s.transition(listingID, models.ListingStatusSold, now)
}

// Expire stores the expired status for an active listing whose expiry has
// passed. It returns false when there was nothing to do.
func (s *ListingStore) Expire(listingID string, now time.Time) (models.Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[listingID]
	if !ok || l.Status != models.ListingStatusActive || !l.Expired(now) {
		return models.Listing{}, false
	}
	l.Status = models.ListingStatusExpired
	l.UpdatedAt = now
	return cloneListing(l), true
}

// Active returns every listing purchasable at now, oldest first.
func (s *ListingStore) Active(now time.Time) []models.Listing {
	return s.filter(func(l *models.Listing) bool { return l.Purchasable(now) }, now)
}

func (s *ListingStore) BySeller(sellerID string, now time.Time) []models.Listing {
	return s.filter(func(l *models.Listing) bool { return l.SellerID == sellerID }, now)
}

// DueForExpiry returns the ids of active listings whose expiry has passed.
func (s *ListingStore) DueForExpiry(now time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, id := range s.order {
		l := s.listings[id]
		if l.Status == models.ListingStatusActive && l.Expired(now) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Snapshot returns the stored records without applying lazy expiry.
func (s *ListingStore) Snapshot() []models.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Listing, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneListing(s.listings[id]))
	}
	return out
}

func (s *ListingStore) transition(listingID string, to models.ListingStatus, now time.Time) (models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.activeLocked(listingID, now)
	if err != nil {
		return models.Listing{}, err
	}
	l.Status = to
	l.UpdatedAt = now
	return cloneListing(l), nil
}

// activeLocked returns the stored listing if it is active and unexpired.
func (s *ListingStore) activeLocked(listingID string, now time.Time) (*models.Listing, error) {
	l, ok := s.listings[listingID]
	if !ok {
		return nil, fmt.Errorf("%w: listing %s", ErrNotFound, listingID)
	}
	if effective := l.Effective(now).Status; effective != models.ListingStatusActive {
		return nil, fmt.Errorf("%w: listing %s is %s", ErrInvalidTransition, listingID, effective)
	}
	return l, nil
}

func (s *ListingStore) filter(keep func(*models.Listing) bool, now time.Time) []models.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Listing{}
	for _, id := range s.order {
		l := s.listings[id]
		if keep(l) {
			out = append(out, cloneListing(l).Effective(now))
		}
	}
	return out
}

func (s *ListingStore) lookup(listingID string) (*models.Listing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[listingID]
	if !ok {
		return nil, false
	}
	cp := cloneListing(l)
	return &cp, true
}

// restore puts back a previously read listing, or removes a listing that
// did not exist before when prev is nil.
func (s *ListingStore) restore(listingID string, prev *models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev == nil {
		if _, ok := s.listings[listingID]; ok {
			delete(s.listings, listingID)
			for i, id := range s.order {
				if id == listingID {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		}
		return
	}
	l := cloneListing(prev)
	if _, ok := s.listings[listingID]; !ok {
		s.order = append(s.order, listingID)
	}
	s.listings[listingID] = &l
}

func cloneListing(l *models.Listing) models.Listing {
	cp := *l
	cp.ExpiresAt = copyTime(l.ExpiresAt)
	return cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
