package deal

import "errors"

var (
	// ErrPreconditionFailed signals an illegal transition: the deal is already
	// terminal, or the actor is not a participant. Callers must reload and
	// re-render rather than retry.
	ErrPreconditionFailed = errors.New("deal: precondition failed")
	// ErrValidationFailed signals a counter-offer with non-positive terms.
	ErrValidationFailed = errors.New("deal: validation failed")
	// ErrNotFound is returned for a stale reference to a deleted deal.
	ErrNotFound = errors.New("deal: not found")
	// ErrStoreUnavailable wraps transient network/store failures. These may be
	// compensated by the next reconciliation pass.
	ErrStoreUnavailable = errors.New("deal: store unavailable")
)

// IsTransient reports whether err is a store failure that the next
// reconciliation pass is expected to heal. Precondition and validation
// failures are never transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
