package deal

import (
	"errors"
	"testing"
	"time"
)

func pendingDeal() Deal {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return Deal{
		ID:          "d1",
		ListingID:   "l1",
		ListingName: "Tomatoes",
		SellerID:    "farmer-1",
		SellerName:  "Asha",
		BuyerID:     "trader-1",
		BuyerName:   "Ravi",
		Unit:        "kg",
		Quantity:    500,
		Price:       40,
		Kind:        KindRequest,
		Status:      StatusPending,
		SellerSeen:  false,
		BuyerSeen:   true,
		CreatedAt:   base,
		UpdatedAt:   base,
	}
}

func TestAccept_FreezesTerms(t *testing.T) {
	d := pendingDeal()
	now := d.UpdatedAt.Add(time.Minute)

	next, err := Accept(d, "farmer-1", now)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if next.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %s", next.Status)
	}
	if next.Quantity != d.Quantity || next.Price != d.Price {
		t.Fatalf("accept must not change terms: %v/%v", next.Quantity, next.Price)
	}
	if !next.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt refreshed to %v, got %v", now, next.UpdatedAt)
	}
}

func TestAccept_EitherParticipant(t *testing.T) {
	for _, actor := range []string{"farmer-1", "trader-1"} {
		if _, err := Accept(pendingDeal(), actor, time.Now()); err != nil {
			t.Errorf("accept by %s: %v", actor, err)
		}
	}
}

func TestCommands_NonParticipant(t *testing.T) {
	d := pendingDeal()
	now := time.Now()

	if _, err := Accept(d, "stranger", now); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("accept by stranger: expected precondition failure, got %v", err)
	}
	if _, err := Reject(d, "stranger", now); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("reject by stranger: expected precondition failure, got %v", err)
	}
	if _, err := Counter(d, "stranger", 100, 10, now); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("counter by stranger: expected precondition failure, got %v", err)
	}
	if _, err := MarkSeen(d, "stranger", now); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("mark seen by stranger: expected precondition failure, got %v", err)
	}
}

func TestTerminal_IsAbsorbing(t *testing.T) {
	now := time.Now()
	for _, terminal := range []Status{StatusAccepted, StatusRejected} {
		d := pendingDeal()
		d.Status = terminal

		if _, err := Accept(d, "farmer-1", now); !errors.Is(err, ErrPreconditionFailed) {
			t.Errorf("accept on %s deal: expected precondition failure, got %v", terminal, err)
		}
		if _, err := Reject(d, "trader-1", now); !errors.Is(err, ErrPreconditionFailed) {
			t.Errorf("reject on %s deal: expected precondition failure, got %v", terminal, err)
		}
		if _, err := Counter(d, "trader-1", 450, 38, now); !errors.Is(err, ErrPreconditionFailed) {
			t.Errorf("counter on %s deal: expected precondition failure, got %v", terminal, err)
		}
	}
}

func TestMarkSeen_LegalOnTerminalDeal(t *testing.T) {
	d := pendingDeal()
	d.Status = StatusRejected

	next, err := MarkSeen(d, "farmer-1", time.Now())
	if err != nil {
		t.Fatalf("mark seen on rejected deal: %v", err)
	}
	if !next.SellerSeen {
		t.Fatal("expected seller seen flag set")
	}
	if next.Status != StatusRejected {
		t.Fatalf("mark seen must not change status, got %s", next.Status)
	}
}

func TestCounter_Validation(t *testing.T) {
	cases := []struct {
		name     string
		quantity float64
		price    float64
	}{
		{"zero quantity", 0, 38},
		{"negative quantity", -5, 38},
		{"zero price", 450, 0},
		{"negative price", 450, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := pendingDeal()
			_, err := Counter(d, "trader-1", tc.quantity, tc.price, time.Now())
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("expected validation failure, got %v", err)
			}
		})
	}
}

func TestCounter_ClearsOtherPartySeenFlag(t *testing.T) {
	d := pendingDeal()
	d.SellerSeen = true
	d.BuyerSeen = true

	next, err := Counter(d, "trader-1", 450, 38, d.UpdatedAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("buyer counter: %v", err)
	}
	if next.SellerSeen {
		t.Fatal("buyer counter must clear seller seen flag")
	}
	if !next.BuyerSeen {
		t.Fatal("buyer counter must not touch buyer seen flag")
	}
	if next.Quantity != 450 || next.Price != 38 {
		t.Fatalf("expected terms 450/38, got %v/%v", next.Quantity, next.Price)
	}

	// And the mirror image for a seller counter.
	next2, err := Counter(next, "farmer-1", 480, 39, next.UpdatedAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("seller counter: %v", err)
	}
	if next2.BuyerSeen {
		t.Fatal("seller counter must clear buyer seen flag")
	}
	if next2.SellerSeen {
		t.Fatal("seller counter must not set seller seen flag")
	}
}

func TestMarkSeen_Idempotent(t *testing.T) {
	d := pendingDeal()
	now := d.UpdatedAt.Add(time.Minute)

	once, err := MarkSeen(d, "farmer-1", now)
	if err != nil {
		t.Fatalf("first mark seen: %v", err)
	}
	twice, err := MarkSeen(once, "farmer-1", now)
	if err != nil {
		t.Fatalf("second mark seen: %v", err)
	}
	if once != twice {
		t.Fatalf("mark seen not idempotent:\n once=%+v\ntwice=%+v", once, twice)
	}
}

func TestUpdatedAt_NeverMovesBackwards(t *testing.T) {
	d := pendingDeal()
	stale := d.UpdatedAt.Add(-time.Hour)

	next, err := Counter(d, "trader-1", 450, 38, stale)
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if next.UpdatedAt.Before(d.UpdatedAt) {
		t.Fatalf("updatedAt moved backwards: %v < %v", next.UpdatedAt, d.UpdatedAt)
	}
}
