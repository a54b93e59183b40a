// Package notify derives the unseen-deal badge from the client's deal
// snapshot and pushes seen flags back to the store. Counts are computed purely
// from the deal set — there is no separate counter record to drift out of
// sync with whatever deals the client most recently loaded.
package notify

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"farmdeal/deal"
	"farmdeal/logging"
	"farmdeal/reconcile"
)

// markAllConcurrency bounds the fan-out of bulk seen writes.
const markAllConcurrency = 4

// Tracker exposes unseen counts and mark-seen operations for one actor's
// snapshot. Reload re-pulls the authoritative deal set into the snapshot and
// is supplied by the owning session.
type Tracker struct {
	store  deal.Store
	snap   *reconcile.Snapshot
	reload func(ctx context.Context) error
	log    logging.Logger

	// serializes optimistic flip + revert on single mark-seen calls
	mu sync.Mutex
}

func NewTracker(store deal.Store, snap *reconcile.Snapshot, reload func(ctx context.Context) error, log logging.Logger) *Tracker {
	if log == nil {
		log = logging.Nop()
	}
	return &Tracker{store: store, snap: snap, reload: reload, log: log}
}

// UnseenCount returns the number of pending deals the actor has not seen.
func (t *Tracker) UnseenCount(actorID string) int {
	return len(t.ListUnseen(actorID))
}

// ListUnseen returns the actor's unseen pending deals, most recent activity
// first.
func (t *Tracker) ListUnseen(actorID string) []deal.Deal {
	// Snapshot.All is already UpdatedAt-descending.
	out := make([]deal.Deal, 0, 4)
	for _, d := range t.snap.All() {
		if d.Status != deal.StatusPending {
			continue
		}
		role, ok := d.RoleOf(actorID)
		if !ok {
			continue
		}
		if !d.SeenBy(role) {
			out = append(out, d)
		}
	}
	return out
}

// MarkSeen flips the actor's seen flag on one deal: optimistic local flip,
// remote write, and on failure the local flag is reverted and the error
// surfaced.
func (t *Tracker) MarkSeen(ctx context.Context, dealID, actorID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	before, ok := t.snap.Get(dealID)
	if !ok {
		return fmt.Errorf("%w: %s", deal.ErrNotFound, dealID)
	}
	role, participant := before.RoleOf(actorID)
	if !participant {
		return fmt.Errorf("%w: actor %s is not a participant of deal %s", deal.ErrPreconditionFailed, actorID, dealID)
	}

	patched := before
	if role == deal.RoleSeller {
		patched.SellerSeen = true
	} else {
		patched.BuyerSeen = true
	}
	t.snap.Apply(patched)

	if err := t.store.SetSeen(ctx, dealID, actorID, true); err != nil {
		// Revert the optimistic flip so the badge does not lie.
		t.snap.Apply(before)
		return fmt.Errorf("notify: mark seen: %w", err)
	}
	return nil
}

// MarkAllSeen applies MarkSeen to every currently-unseen deal for the actor.
// Writes are independent and not atomic: individual failures are logged and
// swallowed, and the unconditional reload afterwards leaves the snapshot
// reflecting exactly what persisted.
func (t *Tracker) MarkAllSeen(ctx context.Context, actorID string) error {
	unseen := t.ListUnseen(actorID)
	if len(unseen) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(markAllConcurrency)
	for _, d := range unseen {
		d := d
		g.Go(func() error {
			if err := t.store.SetSeen(gctx, d.ID, actorID, true); err != nil {
				t.log.Warn(gctx, "bulk mark seen failed for deal", "deal_id", d.ID, "err", err)
				return nil // partial failure is expected; the reload settles it
			}
			role, _ := d.RoleOf(actorID)
			patched := d
			if role == deal.RoleSeller {
				patched.SellerSeen = true
			} else {
				patched.BuyerSeen = true
			}
			t.snap.Apply(patched)
			return nil
		})
	}
	_ = g.Wait()

	if err := t.reload(ctx); err != nil {
		return fmt.Errorf("notify: reload after bulk mark seen: %w", err)
	}
	return nil
}
