package reconcile

import (
	"sort"
	"sync"

	"farmdeal/deal"
)

// Snapshot is one client's local cache of deal records. It is kept
// optimistically ahead of the store and corrected after every remote
// operation. When two views of the same deal collide, the one with the latest
// UpdatedAt wins; client write order never does.
type Snapshot struct {
	mu    sync.RWMutex
	deals map[string]deal.Deal
}

func NewSnapshot() *Snapshot {
	return &Snapshot{deals: make(map[string]deal.Deal)}
}

// Get returns the cached deal, if any.
func (s *Snapshot) Get(dealID string) (deal.Deal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deals[dealID]
	return d, ok
}

// Apply merges one deal into the cache under latest-updatedAt-wins. A stale
// optimistic patch racing a fresher reload loses silently.
func (s *Snapshot) Apply(d deal.Deal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.deals[d.ID]; ok && prev.UpdatedAt.After(d.UpdatedAt) {
		return
	}
	s.deals[d.ID] = d
}

// ReplaceAll swaps the cache for the authoritative record set. Optimistic
// state not present in the store is discarded.
func (s *Snapshot) ReplaceAll(deals []deal.Deal) {
	next := make(map[string]deal.Deal, len(deals))
	for _, d := range deals {
		next[d.ID] = d
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals = next
}

// All returns the cached deals ordered by UpdatedAt descending.
func (s *Snapshot) All() []deal.Deal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]deal.Deal, 0, len(s.deals))
	for _, d := range s.deals {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Len returns the number of cached deals.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.deals)
}
