package deal

import (
	"fmt"
	"time"
)

// The transition functions below are the whole negotiation protocol. They are
// pure: given a deal and an actor-initiated command they return the next deal
// value or an error, and never touch storage. Store implementations and the
// client session both funnel through them so the precondition rules cannot
// drift between the optimistic and the authoritative path.

// Accept moves a pending deal to accepted. The last proposed terms become the
// agreed terms; nothing changes besides status and timestamp.
func Accept(d Deal, actorID string, now time.Time) (Deal, error) {
	if err := checkCommand(d, actorID); err != nil {
		return Deal{}, err
	}
	d.Status = StatusAccepted
	d.UpdatedAt = clampTime(now, d.UpdatedAt)
	return d, nil
}

// Reject moves a pending deal to rejected. Either participant may reject.
func Reject(d Deal, actorID string, now time.Time) (Deal, error) {
	if err := checkCommand(d, actorID); err != nil {
		return Deal{}, err
	}
	d.Status = StatusRejected
	d.UpdatedAt = clampTime(now, d.UpdatedAt)
	return d, nil
}

// Counter overwrites the offer terms on a pending deal and clears the other
// party's seen flag so the new terms surface as a fresh notification. The
// proposer's own flag is left alone.
func Counter(d Deal, actorID string, quantity, price float64, now time.Time) (Deal, error) {
	if err := checkCommand(d, actorID); err != nil {
		return Deal{}, err
	}
	if quantity <= 0 {
		return Deal{}, fmt.Errorf("%w: quantity must be positive, got %v", ErrValidationFailed, quantity)
	}
	if price <= 0 {
		return Deal{}, fmt.Errorf("%w: price must be positive, got %v", ErrValidationFailed, price)
	}

	role, _ := d.RoleOf(actorID)
	d.Quantity = quantity
	d.Price = price
	if role == RoleBuyer {
		d.SellerSeen = false
	} else {
		d.BuyerSeen = false
	}
	d.UpdatedAt = clampTime(now, d.UpdatedAt)
	return d, nil
}

// MarkSeen sets the acting actor's seen flag. Legal from any state, including
// terminal ones; never changes status or terms.
func MarkSeen(d Deal, actorID string, now time.Time) (Deal, error) {
	role, ok := d.RoleOf(actorID)
	if !ok {
		return Deal{}, fmt.Errorf("%w: actor %s is not a participant of deal %s", ErrPreconditionFailed, actorID, d.ID)
	}
	if role == RoleSeller {
		d.SellerSeen = true
	} else {
		d.BuyerSeen = true
	}
	d.UpdatedAt = clampTime(now, d.UpdatedAt)
	return d, nil
}

func checkCommand(d Deal, actorID string) error {
	if _, ok := d.RoleOf(actorID); !ok {
		return fmt.Errorf("%w: actor %s is not a participant of deal %s", ErrPreconditionFailed, actorID, d.ID)
	}
	if d.Terminal() {
		return fmt.Errorf("%w: deal %s is already %s", ErrPreconditionFailed, d.ID, d.Status)
	}
	return nil
}

// clampTime keeps UpdatedAt monotonically non-decreasing even when the caller
// supplies a clock that lags the last persisted write.
func clampTime(now, prev time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}
