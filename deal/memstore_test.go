package deal

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedMemDeal(t *testing.T, store *MemoryStore) Deal {
	t.Helper()
	d, err := store.Create(context.Background(), CreateParams{
		ListingID:   "l1",
		ListingName: "Tomatoes",
		SellerID:    "farmer-1",
		SellerName:  "Asha",
		BuyerID:     "trader-1",
		BuyerName:   "Ravi",
		Kind:        KindRequest,
		Unit:        "kg",
		Quantity:    500,
		Price:       40,
	})
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}
	return d
}

func TestMemoryStore_CreateDefaults(t *testing.T) {
	store := NewMemoryStore()
	d := seedMemDeal(t, store)

	if d.ID == "" {
		t.Fatal("expected store-assigned id")
	}
	if d.Status != StatusPending {
		t.Fatalf("expected pending, got %s", d.Status)
	}
	if d.SellerSeen {
		t.Fatal("a fresh deal must be unseen by the seller")
	}
	if !d.BuyerSeen {
		t.Fatal("the buyer authored the opening offer and has seen it")
	}
}

func TestMemoryStore_CreateRejectsBadTerms(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Create(context.Background(), CreateParams{
		ListingID: "l1", SellerID: "s", BuyerID: "b", Quantity: 0, Price: 40,
	})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestMemoryStore_NegotiationLoop(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	d := seedMemDeal(t, store)

	// Buyer counters; the seller must see fresh terms.
	d1, err := store.UpdateOffer(ctx, d.ID, 450, 38, "trader-1")
	if err != nil {
		t.Fatalf("buyer counter: %v", err)
	}
	if d1.SellerSeen {
		t.Fatal("seller seen flag must be cleared by buyer counter")
	}
	if d1.Quantity != 450 || d1.Price != 38 {
		t.Fatalf("expected 450/38, got %v/%v", d1.Quantity, d1.Price)
	}

	// Seller counters back.
	d2, err := store.UpdateOffer(ctx, d.ID, 480, 39, "farmer-1")
	if err != nil {
		t.Fatalf("seller counter: %v", err)
	}
	if d2.BuyerSeen {
		t.Fatal("buyer seen flag must be cleared by seller counter")
	}

	// Buyer accepts the final terms.
	final, err := store.UpdateStatus(ctx, d.ID, StatusAccepted, "trader-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if final.Status != StatusAccepted || final.Quantity != 480 || final.Price != 39 {
		t.Fatalf("expected accepted 480/39, got %s %v/%v", final.Status, final.Quantity, final.Price)
	}

	// Terminal is absorbing across every command.
	if _, err := store.UpdateStatus(ctx, d.ID, StatusRejected, "farmer-1"); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("reject after accept: expected precondition failure, got %v", err)
	}
	if _, err := store.UpdateOffer(ctx, d.ID, 1, 1, "trader-1"); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("counter after accept: expected precondition failure, got %v", err)
	}
}

func TestMemoryStore_ForActorOrdering(t *testing.T) {
	ctx := context.Background()
	tick := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	})

	first := seedMemDeal(t, store)
	second := seedMemDeal(t, store)

	// Touch the older deal so it surfaces first.
	if _, err := store.UpdateOffer(ctx, first.ID, 300, 35, "trader-1"); err != nil {
		t.Fatalf("counter: %v", err)
	}

	deals, err := store.ForActor(ctx, "farmer-1", RoleSeller)
	if err != nil {
		t.Fatalf("for actor: %v", err)
	}
	if len(deals) != 2 {
		t.Fatalf("expected 2 deals, got %d", len(deals))
	}
	if deals[0].ID != first.ID || deals[1].ID != second.ID {
		t.Fatalf("expected most recently updated first, got %s then %s", deals[0].ID, deals[1].ID)
	}
}

func TestMemoryStore_SetSeen(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	d := seedMemDeal(t, store)

	if err := store.SetSeen(ctx, d.ID, "farmer-1", true); err != nil {
		t.Fatalf("set seen: %v", err)
	}
	got, err := store.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.SellerSeen {
		t.Fatal("expected seller seen flag persisted")
	}
	if err := store.SetSeen(ctx, d.ID, "stranger", true); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("set seen by stranger: expected precondition failure, got %v", err)
	}
	if err := store.SetSeen(ctx, "missing", "farmer-1", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("set seen on missing deal: expected not found, got %v", err)
	}
}
