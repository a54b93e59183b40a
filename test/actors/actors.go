package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"farmdeal/deal"
	"farmdeal/listing"
)

// The actors hammer the domain stores the way real clients would, so the
// guarded-update paths and classification logic get exercised under
// contention. Domain errors are expected outcomes here: a stale accept or a
// counter on an already-closed deal is exactly the race we want to provoke.

// tolerable reports whether an error is an expected casualty of contention or
// injected chaos rather than a harness bug.
func tolerable(err error) bool {
	return err == nil ||
		errors.Is(err, deal.ErrPreconditionFailed) ||
		errors.Is(err, deal.ErrValidationFailed) ||
		errors.Is(err, deal.ErrNotFound) ||
		errors.Is(err, deal.ErrStoreUnavailable) ||
		errors.Is(err, listing.ErrNotFound) ||
		errors.Is(err, listing.ErrStoreUnavailable)
}

// Opener opens fresh deals against the seed listing as the buyer.
func Opener(ctx context.Context, deals deal.Store, l listing.Listing, buyerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		kind := deal.KindRequest
		if rand.Intn(2) == 0 {
			kind = deal.KindNegotiation
		}
		_, err := deals.Create(ctx, deal.CreateParams{
			ListingID:   l.ID,
			ListingName: l.Name,
			SellerID:    l.OwnerID,
			SellerName:  "Stress Farmer",
			BuyerID:     buyerID,
			BuyerName:   "Stress Trader",
			BuyerPhone:  "00000",
			Unit:        l.Unit,
			Quantity:    float64(1 + rand.Intn(100)),
			Price:       float64(1 + rand.Intn(50)),
			Kind:        kind,
		})
		if !tolerable(err) {
			return fmt.Errorf("opener create: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Counterer picks a pending deal for the actor and proposes new terms.
func Counterer(ctx context.Context, deals deal.Store, actorID string, role deal.Role, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if d, ok := pickPending(ctx, deals, actorID, role); ok {
			_, err := deals.UpdateOffer(ctx, d.ID, float64(1+rand.Intn(100)), float64(1+rand.Intn(50)), actorID)
			if !tolerable(err) {
				return fmt.Errorf("counterer update offer: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Closer accepts or rejects pending deals as the seller, racing the counterers.
func Closer(ctx context.Context, deals deal.Store, sellerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if d, ok := pickPending(ctx, deals, sellerID, deal.RoleSeller); ok {
			status := deal.StatusAccepted
			if rand.Intn(3) == 0 {
				status = deal.StatusRejected
			}
			_, err := deals.UpdateStatus(ctx, d.ID, status, sellerID)
			if !tolerable(err) {
				return fmt.Errorf("closer update status: %w", err)
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}

// SeenMarker marks unseen deals seen, idempotently, on both live and closed deals.
func SeenMarker(ctx context.Context, deals deal.Store, actorID string, role deal.Role, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		list, err := deals.ForActor(ctx, actorID, role)
		if !tolerable(err) {
			return fmt.Errorf("seen marker list: %w", err)
		}
		for _, d := range list {
			if d.SeenBy(role) {
				continue
			}
			if err := deals.SetSeen(ctx, d.ID, actorID, true); !tolerable(err) {
				return fmt.Errorf("seen marker set: %w", err)
			}
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// Reaper deletes listings behind accepted deals. Repeated deletes of the same
// listing must be harmless.
func Reaper(ctx context.Context, deals deal.Store, listings listing.Store, sellerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		list, err := deals.ForActor(ctx, sellerID, deal.RoleSeller)
		if !tolerable(err) {
			return fmt.Errorf("reaper list: %w", err)
		}
		for _, d := range list {
			if d.Status != deal.StatusAccepted {
				continue
			}
			if err := listings.Delete(ctx, d.ListingID); !tolerable(err) {
				return fmt.Errorf("reaper delete: %w", err)
			}
		}
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}

func pickPending(ctx context.Context, deals deal.Store, actorID string, role deal.Role) (deal.Deal, bool) {
	list, err := deals.ForActor(ctx, actorID, role)
	if err != nil || len(list) == 0 {
		return deal.Deal{}, false
	}
	pending := list[:0:0]
	for _, d := range list {
		if d.Status == deal.StatusPending {
			pending = append(pending, d)
		}
	}
	if len(pending) == 0 {
		return deal.Deal{}, false
	}
	return pending[rand.Intn(len(pending))], true
}
