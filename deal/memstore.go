package deal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by the demo server and by tests. It
// applies the same transition functions as the Postgres store, serialized
// under one mutex, which makes last-write-wins on UpdatedAt the only conflict
// resolution between two racing clients.
type MemoryStore struct {
	mu    sync.Mutex
	deals map[string]Deal
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deals: make(map[string]Deal),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the store clock. Intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryStore) Create(_ context.Context, params CreateParams) (Deal, error) {
	if params.ListingID == "" || params.SellerID == "" || params.BuyerID == "" {
		return Deal{}, fmt.Errorf("%w: listing, seller and buyer ids required", ErrValidationFailed)
	}
	if params.Quantity <= 0 || params.Price <= 0 {
		return Deal{}, fmt.Errorf("%w: quantity and price must be positive", ErrValidationFailed)
	}
	kind := params.Kind
	if kind == "" {
		kind = KindRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	d := Deal{
		ID:            uuid.NewString(),
		ListingID:     params.ListingID,
		ListingName:   params.ListingName,
		SellerID:      params.SellerID,
		SellerName:    params.SellerName,
		BuyerID:       params.BuyerID,
		BuyerName:     params.BuyerName,
		BuyerPhone:    params.BuyerPhone,
		BuyerLocation: params.BuyerLocation,
		Unit:          params.Unit,
		Quantity:      params.Quantity,
		Price:         params.Price,
		Kind:          kind,
		Status:        StatusPending,
		SellerSeen:    false,
		// The buyer just authored the opening offer.
		BuyerSeen: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.deals[d.ID] = d
	return d, nil
}

func (s *MemoryStore) Get(_ context.Context, dealID string) (Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[dealID]
	if !ok {
		return Deal{}, fmt.Errorf("%w: %s", ErrNotFound, dealID)
	}
	return d, nil
}

func (s *MemoryStore) ForActor(_ context.Context, actorID string, role Role) ([]Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Deal, 0, 8)
	for _, d := range s.deals {
		if role == RoleSeller && d.SellerID == actorID {
			out = append(out, d)
		} else if role == RoleBuyer && d.BuyerID == actorID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, dealID string, status Status, actorID string) (Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deals[dealID]
	if !ok {
		return Deal{}, fmt.Errorf("%w: %s", ErrNotFound, dealID)
	}

	var (
		next Deal
		err  error
	)
	switch status {
	case StatusAccepted:
		next, err = Accept(d, actorID, s.now())
	case StatusRejected:
		next, err = Reject(d, actorID, s.now())
	default:
		return Deal{}, fmt.Errorf("%w: cannot transition to %q", ErrPreconditionFailed, status)
	}
	if err != nil {
		return Deal{}, err
	}
	s.deals[dealID] = next
	return next, nil
}

func (s *MemoryStore) UpdateOffer(_ context.Context, dealID string, quantity, price float64, actorID string) (Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deals[dealID]
	if !ok {
		return Deal{}, fmt.Errorf("%w: %s", ErrNotFound, dealID)
	}
	next, err := Counter(d, actorID, quantity, price, s.now())
	if err != nil {
		return Deal{}, err
	}
	s.deals[dealID] = next
	return next, nil
}

func (s *MemoryStore) SetSeen(_ context.Context, dealID, actorID string, seen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deals[dealID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, dealID)
	}
	role, participant := d.RoleOf(actorID)
	if !participant {
		return fmt.Errorf("%w: actor %s is not a participant of deal %s", ErrPreconditionFailed, actorID, dealID)
	}
	if role == RoleSeller {
		d.SellerSeen = seen
	} else {
		d.BuyerSeen = seen
	}
	d.UpdatedAt = clampTime(s.now(), d.UpdatedAt)
	s.deals[dealID] = d
	return nil
}
