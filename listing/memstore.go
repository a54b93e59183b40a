package listing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process Store used by the demo server and tests.
type MemoryStore struct {
	mu       sync.Mutex
	listings map[string]Listing
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings: make(map[string]Listing),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(_ context.Context, params CreateParams) (Listing, error) {
	if params.OwnerID == "" || params.Name == "" {
		return Listing{}, fmt.Errorf("%w: owner and name required", ErrValidation)
	}
	if params.Quantity <= 0 || params.Rate <= 0 {
		return Listing{}, fmt.Errorf("%w: quantity and rate must be positive", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	l := Listing{
		ID:        uuid.NewString(),
		OwnerID:   params.OwnerID,
		Name:      params.Name,
		Image:     params.Image,
		Rate:      params.Rate,
		Quantity:  params.Quantity,
		Unit:      params.Unit,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.listings[l.ID] = l
	return l, nil
}

func (s *MemoryStore) Get(_ context.Context, listingID string) (Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[listingID]
	if !ok {
		return Listing{}, fmt.Errorf("%w: %s", ErrNotFound, listingID)
	}
	return l, nil
}

func (s *MemoryStore) ForOwner(_ context.Context, ownerID string) ([]Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Listing, 0, 8)
	for _, l := range s.listings {
		if l.OwnerID == ownerID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, listingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[listingID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, listingID)
	}
	delete(s.listings, listingID)
	return nil
}
