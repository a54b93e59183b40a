package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"farmdeal/deal"
	"farmdeal/reconcile"
)

// flakyStore wraps a real store and fails SetSeen for chosen deal ids.
type flakyStore struct {
	deal.Store
	mu       sync.Mutex
	failSeen map[string]int // deal id -> remaining failures
}

func (f *flakyStore) SetSeen(ctx context.Context, dealID, actorID string, seen bool) error {
	f.mu.Lock()
	if n, ok := f.failSeen[dealID]; ok && n > 0 {
		f.failSeen[dealID] = n - 1
		f.mu.Unlock()
		return fmt.Errorf("%w: injected failure", deal.ErrStoreUnavailable)
	}
	f.mu.Unlock()
	return f.Store.SetSeen(ctx, dealID, actorID, seen)
}

type fixture struct {
	store   *flakyStore
	snap    *reconcile.Snapshot
	tracker *Tracker
}

func newFixture(t *testing.T, sellerUnseen int) (*fixture, []deal.Deal) {
	t.Helper()
	mem := deal.NewMemoryStore()
	ctx := context.Background()

	deals := make([]deal.Deal, 0, sellerUnseen)
	for i := 0; i < sellerUnseen; i++ {
		d, err := mem.Create(ctx, deal.CreateParams{
			ListingID:   fmt.Sprintf("l%d", i),
			ListingName: "Tomatoes",
			SellerID:    "farmer-1",
			BuyerID:     fmt.Sprintf("trader-%d", i),
			Unit:        "kg",
			Quantity:    100,
			Price:       40,
		})
		if err != nil {
			t.Fatalf("seed deal: %v", err)
		}
		deals = append(deals, d)
	}

	store := &flakyStore{Store: mem, failSeen: map[string]int{}}
	snap := reconcile.NewSnapshot()
	reload := func(ctx context.Context) error {
		all, err := store.ForActor(ctx, "farmer-1", deal.RoleSeller)
		if err != nil {
			return err
		}
		snap.ReplaceAll(all)
		return nil
	}
	if err := reload(ctx); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	return &fixture{store: store, snap: snap, tracker: NewTracker(store, snap, reload, nil)}, deals
}

func TestUnseenCount_DerivedFromSnapshot(t *testing.T) {
	f, _ := newFixture(t, 3)
	if got := f.tracker.UnseenCount("farmer-1"); got != 3 {
		t.Fatalf("expected 3 unseen, got %d", got)
	}
	// The buyers authored the offers, so nothing is unseen on their side.
	if got := f.tracker.UnseenCount("trader-0"); got != 0 {
		t.Fatalf("expected 0 unseen for buyer, got %d", got)
	}
}

func TestMarkSeen_OptimisticAndPersisted(t *testing.T) {
	f, deals := newFixture(t, 1)
	ctx := context.Background()

	if err := f.tracker.MarkSeen(ctx, deals[0].ID, "farmer-1"); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if got := f.tracker.UnseenCount("farmer-1"); got != 0 {
		t.Fatalf("expected 0 unseen after mark seen, got %d", got)
	}
	stored, err := f.store.Get(ctx, deals[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.SellerSeen {
		t.Fatal("expected seen flag persisted")
	}

	// Second call is a no-op with the same outcome.
	if err := f.tracker.MarkSeen(ctx, deals[0].ID, "farmer-1"); err != nil {
		t.Fatalf("repeat mark seen: %v", err)
	}
	if got := f.tracker.UnseenCount("farmer-1"); got != 0 {
		t.Fatalf("expected 0 unseen after repeat, got %d", got)
	}
}

func TestMarkSeen_RevertsOnWriteFailure(t *testing.T) {
	f, deals := newFixture(t, 1)
	f.store.failSeen[deals[0].ID] = 1

	err := f.tracker.MarkSeen(context.Background(), deals[0].ID, "farmer-1")
	if !errors.Is(err, deal.ErrStoreUnavailable) {
		t.Fatalf("expected surfaced store failure, got %v", err)
	}
	if got := f.tracker.UnseenCount("farmer-1"); got != 1 {
		t.Fatalf("expected optimistic flip reverted, unseen=%d", got)
	}
}

func TestMarkAllSeen_PartialFailure(t *testing.T) {
	f, deals := newFixture(t, 3)
	// One of the three writes fails; the other two persist.
	f.store.failSeen[deals[1].ID] = 1

	if err := f.tracker.MarkAllSeen(context.Background(), "farmer-1"); err != nil {
		t.Fatalf("mark all seen: %v", err)
	}

	// After the automatic reload the badge reflects exactly what persisted.
	if got := f.tracker.UnseenCount("farmer-1"); got != 1 {
		t.Fatalf("expected 1 unseen after partial failure, got %d", got)
	}
	remaining := f.tracker.ListUnseen("farmer-1")
	if len(remaining) != 1 || remaining[0].ID != deals[1].ID {
		t.Fatalf("expected the failed deal to remain unseen, got %+v", remaining)
	}
}

func TestMarkAllSeen_Empty(t *testing.T) {
	f, _ := newFixture(t, 0)
	if err := f.tracker.MarkAllSeen(context.Background(), "farmer-1"); err != nil {
		t.Fatalf("mark all seen on empty set: %v", err)
	}
}

func TestListUnseen_SkipsTerminalDeals(t *testing.T) {
	f, deals := newFixture(t, 2)
	ctx := context.Background()

	if _, err := f.store.UpdateStatus(ctx, deals[0].ID, deal.StatusRejected, "farmer-1"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	all, err := f.store.ForActor(ctx, "farmer-1", deal.RoleSeller)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	f.snap.ReplaceAll(all)

	if got := f.tracker.UnseenCount("farmer-1"); got != 1 {
		t.Fatalf("rejected deal must leave the unseen view, got %d", got)
	}
}
