// Package client assembles the negotiation engine for one signed-in actor:
// a deal snapshot kept optimistically ahead of the store, the reconciliation
// pipeline every command runs through, unseen tracking, and — for sellers —
// the cleanup coordinator that retires sold listings.
package client

import (
	"context"
	"fmt"
	"time"

	"farmdeal/cleanup"
	"farmdeal/deal"
	"farmdeal/listing"
	"farmdeal/logging"
	"farmdeal/notify"
	"farmdeal/reconcile"
)

// Session is one actor's client. Two independently-running sessions never
// share memory; all coordination goes through the stores. The actor identity
// is fixed at construction and threaded explicitly into every command.
type Session struct {
	actorID string
	role    deal.Role

	deals    deal.Store
	snapshot *reconcile.Snapshot
	runner   *reconcile.Runner
	tracker  *notify.Tracker
	cleaner  *cleanup.Coordinator
	inv      *listing.Inventory
	log      logging.Logger
	now      func() time.Time
}

// NewSellerSession builds a session for a seller. The inventory is the
// seller's active-listings view; the cleanup coordinator runs on every
// refresh.
func NewSellerSession(actorID string, deals deal.Store, listings listing.Store, log logging.Logger) *Session {
	s := newSession(actorID, deal.RoleSeller, deals, log)
	s.inv = listing.NewInventory(actorID, listings)
	s.cleaner = cleanup.NewCoordinator(actorID, s.snapshot, s.inv, s.log)
	return s
}

// NewBuyerSession builds a session for a buyer. Buyers have no inventory to
// clean up; their listing access is read-only.
func NewBuyerSession(actorID string, deals deal.Store, log logging.Logger) *Session {
	return newSession(actorID, deal.RoleBuyer, deals, log)
}

func newSession(actorID string, role deal.Role, deals deal.Store, log logging.Logger) *Session {
	if log == nil {
		log = logging.Nop()
	}
	s := &Session{
		actorID:  actorID,
		role:     role,
		deals:    deals,
		snapshot: reconcile.NewSnapshot(),
		runner:   reconcile.NewRunner(log),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.tracker = notify.NewTracker(deals, s.snapshot, s.Refresh, log)
	return s
}

func (s *Session) ActorID() string { return s.actorID }

// Deals returns the current local view, most recent activity first.
func (s *Session) Deals() []deal.Deal { return s.snapshot.All() }

// Tracker exposes the unseen badge operations.
func (s *Session) Tracker() *notify.Tracker { return s.tracker }

// Inventory returns the seller's active-listings view, nil for buyers.
func (s *Session) Inventory() *listing.Inventory { return s.inv }

// Refresh re-pulls the authoritative deal set and, on seller sessions, runs a
// cleanup pass over the fresh snapshot. This is the convergence point: every
// command ends here, and the app calls it again on focus.
func (s *Session) Refresh(ctx context.Context) error {
	deals, err := s.deals.ForActor(ctx, s.actorID, s.role)
	if err != nil {
		return fmt.Errorf("client: refresh deals: %w", err)
	}
	s.snapshot.ReplaceAll(deals)

	if s.cleaner != nil {
		if err := s.cleaner.Sweep(ctx); err != nil {
			return fmt.Errorf("client: cleanup sweep: %w", err)
		}
	}
	return nil
}

// Open creates a new deal against a listing (buyer sessions only) and
// refreshes so the snapshot includes the store-assigned record.
func (s *Session) Open(ctx context.Context, l listing.Listing, kind deal.Kind, quantity, price float64, buyerName, buyerPhone, buyerLocation string) (deal.Deal, error) {
	if s.role != deal.RoleBuyer {
		return deal.Deal{}, fmt.Errorf("%w: only a buyer opens deals", deal.ErrPreconditionFailed)
	}
	d, err := s.deals.Create(ctx, deal.CreateParams{
		ListingID:     l.ID,
		ListingName:   l.Name,
		SellerID:      l.OwnerID,
		BuyerID:       s.actorID,
		BuyerName:     buyerName,
		BuyerPhone:    buyerPhone,
		BuyerLocation: buyerLocation,
		Kind:          kind,
		Unit:          l.Unit,
		Quantity:      quantity,
		Price:         price,
	})
	if err != nil {
		return deal.Deal{}, fmt.Errorf("client: open deal: %w", err)
	}
	if err := s.Refresh(ctx); err != nil {
		return d, err
	}
	return d, nil
}

// Accept runs the accept command through the reconciliation pipeline.
func (s *Session) Accept(ctx context.Context, dealID string) error {
	return s.transition(ctx, dealID, deal.StatusAccepted)
}

// Reject runs the reject command through the reconciliation pipeline.
func (s *Session) Reject(ctx context.Context, dealID string) error {
	return s.transition(ctx, dealID, deal.StatusRejected)
}

func (s *Session) transition(ctx context.Context, dealID string, status deal.Status) error {
	cached, ok := s.snapshot.Get(dealID)
	if !ok {
		return fmt.Errorf("%w: %s", deal.ErrNotFound, dealID)
	}

	// Validate against the cached record first: an obviously illegal command
	// (terminal deal, wrong actor) fails fast with no write and no patch.
	var (
		patched deal.Deal
		err     error
	)
	if status == deal.StatusAccepted {
		patched, err = deal.Accept(cached, s.actorID, s.now())
	} else {
		patched, err = deal.Reject(cached, s.actorID, s.now())
	}
	if err != nil {
		return err
	}

	return s.runner.Do(ctx, reconcile.Op{
		Name:  string(status),
		Patch: func() { s.snapshot.Apply(patched) },
		Write: func(ctx context.Context) error {
			_, werr := s.deals.UpdateStatus(ctx, dealID, status, s.actorID)
			return werr
		},
		Reload: s.Refresh,
	})
}

// Counter proposes new terms through the reconciliation pipeline.
func (s *Session) Counter(ctx context.Context, dealID string, quantity, price float64) error {
	cached, ok := s.snapshot.Get(dealID)
	if !ok {
		return fmt.Errorf("%w: %s", deal.ErrNotFound, dealID)
	}
	patched, err := deal.Counter(cached, s.actorID, quantity, price, s.now())
	if err != nil {
		return err
	}

	return s.runner.Do(ctx, reconcile.Op{
		Name:  "counter",
		Patch: func() { s.snapshot.Apply(patched) },
		Write: func(ctx context.Context) error {
			_, werr := s.deals.UpdateOffer(ctx, dealID, quantity, price, s.actorID)
			return werr
		},
		Reload: s.Refresh,
	})
}

// MarkSeen acknowledges one deal.
func (s *Session) MarkSeen(ctx context.Context, dealID string) error {
	return s.tracker.MarkSeen(ctx, dealID, s.actorID)
}

// MarkAllSeen acknowledges every unseen deal.
func (s *Session) MarkAllSeen(ctx context.Context) error {
	return s.tracker.MarkAllSeen(ctx, s.actorID)
}

// UnseenCount is the badge value for this actor.
func (s *Session) UnseenCount() int {
	return s.tracker.UnseenCount(s.actorID)
}
