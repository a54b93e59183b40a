package deal

import "context"

// Store is the authoritative remote collection of deal records. Both actors'
// clients read it at will; writes are per-record, eventually consistent, and
// carry no cross-record transaction guarantees. Every write is validated
// against the transition rules in machine.go, so a stale client gets
// ErrPreconditionFailed instead of corrupting a terminal deal.
type Store interface {
	// Create opens a new pending deal. The store assigns ID and timestamps.
	Create(ctx context.Context, params CreateParams) (Deal, error)

	// Get returns one deal by id, or ErrNotFound.
	Get(ctx context.Context, dealID string) (Deal, error)

	// ForActor returns every deal where the actor plays the given role,
	// ordered by UpdatedAt descending.
	ForActor(ctx context.Context, actorID string, role Role) ([]Deal, error)

	// UpdateStatus applies Accept or Reject on behalf of the actor and returns
	// the persisted deal.
	UpdateStatus(ctx context.Context, dealID string, status Status, actorID string) (Deal, error)

	// UpdateOffer applies a counter-offer on behalf of the actor and returns
	// the persisted deal.
	UpdateOffer(ctx context.Context, dealID string, quantity, price float64, actorID string) (Deal, error)

	// SetSeen sets the actor's own seen flag.
	SetSeen(ctx context.Context, dealID, actorID string, seen bool) error
}
