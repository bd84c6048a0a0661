package market

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tabmarket/backend/internal/models"
)

// Registry binds every issued asset to exactly one owner.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]*models.Asset
}

func NewRegistry() *Registry {
	return &Registry{assets: make(map[string]*models.Asset)}
}

// Issue records the first owner of an asset.
func (r *Registry) Issue(assetID, ownerID string, now time.Time) (models.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[assetID]; exists {
		return models.Asset{}, fmt.Errorf("%w: %s", ErrAssetExists, assetID)
	}
	asset := &models.Asset{ID: assetID, OwnerID: ownerID, UpdatedAt: now}
	r.assets[assetID] = asset
	return *asset, nil
}

func (r *Registry) Owner(assetID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, ok := r.assets[assetID]
	if !ok {
		return "", fmt.Errorf("%w: asset %s", ErrNotFound, assetID)
	}
	return asset.OwnerID, nil
}

// Transfer rebinds the asset to `to`. The caller asserts the current owner
// as `from`; a stale assertion fails with ErrOwnershipMismatch.
func (r *Registry) Transfer(assetID, from, to string, now time.Time) (models.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, ok := r.assets[assetID]
	if !ok {
		return models.Asset{}, fmt.Errorf("%w: asset %s", ErrNotFound, assetID)
	}
	if asset.OwnerID != from {
		return models.Asset{}, fmt.Errorf("%w: asset %s is owned by %s, not %s", ErrOwnershipMismatch, assetID, asset.OwnerID, from)
	}
	asset.OwnerID = to
	asset.UpdatedAt = now
	return *asset, nil
}

func (r *Registry) Snapshot() []models.Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) asset(assetID string) (*models.Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[assetID]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

func (r *Registry) restore(assetID string, prev *models.Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev == nil {
		delete(r.assets, assetID)
		return
	}
	a := *prev
	r.assets[assetID] = &a
}
