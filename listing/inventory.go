package listing

import (
	"context"
	"sort"
	"sync"
)

// Inventory is one seller's local view of their active listings. It runs
// optimistically ahead of the store: Remove hides a listing immediately, and
// Reload replaces the view with whatever the store actually holds, so an
// optimistic hide is never treated as ground truth.
type Inventory struct {
	ownerID string
	store   Store

	mu    sync.RWMutex
	items map[string]Listing
}

func NewInventory(ownerID string, store Store) *Inventory {
	return &Inventory{
		ownerID: ownerID,
		store:   store,
		items:   make(map[string]Listing),
	}
}

func (v *Inventory) OwnerID() string { return v.ownerID }

func (v *Inventory) Store() Store { return v.store }

// Active returns the current view, newest first.
func (v *Inventory) Active() []Listing {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Listing, 0, len(v.items))
	for _, l := range v.items {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Contains reports whether a listing is still in the active view.
func (v *Inventory) Contains(listingID string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.items[listingID]
	return ok
}

// Remove optimistically hides a listing. Removing an unknown id is a no-op.
func (v *Inventory) Remove(listingID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.items, listingID)
}

// Reload replaces the view with the authoritative listing set. A listing whose
// delete silently failed reappears here and is retried on the next pass.
func (v *Inventory) Reload(ctx context.Context) error {
	listings, err := v.store.ForOwner(ctx, v.ownerID)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = make(map[string]Listing, len(listings))
	for _, l := range listings {
		v.items[l.ID] = l
	}
	return nil
}
