// Package cleanup removes a seller's listing once a deal over it is accepted.
// The buyer's client may be the one that observes or causes the accepted
// transition, but only the seller holds delete rights on its own listing, so
// cleanup is a reactive coordinator: it runs on the seller's client against
// every refreshed deal snapshot, never as a direct call from the accepting
// actor.
package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"farmdeal/deal"
	"farmdeal/listing"
	"farmdeal/logging"
	"farmdeal/reconcile"
)

const (
	deleteAttempts = 3
	deleteBackoff  = 200 * time.Millisecond
)

// Coordinator sweeps the deal snapshot for accepted deals owned by the local
// seller and retires the referenced listings.
type Coordinator struct {
	sellerID string
	snap     *reconcile.Snapshot
	inv      *listing.Inventory
	log      logging.Logger
}

func NewCoordinator(sellerID string, snap *reconcile.Snapshot, inv *listing.Inventory, log logging.Logger) *Coordinator {
	if log == nil {
		log = logging.Nop()
	}
	return &Coordinator{sellerID: sellerID, snap: snap, inv: inv, log: log}
}

// Sweep runs one cleanup pass. For each accepted deal of the local seller it
// hides the listing optimistically, attempts a best-effort store delete, and
// finishes with an unconditional inventory reload. Delete failures are logged
// and swallowed: the optimistic hide already achieved the user-visible goal,
// and the next pass retries implicitly. The reload error is the only one
// returned, since without it the view would silently stay stale.
func (c *Coordinator) Sweep(ctx context.Context) error {
	for _, d := range c.snap.All() {
		if d.Status != deal.StatusAccepted || d.SellerID != c.sellerID {
			continue
		}
		if !c.inv.Contains(d.ListingID) {
			continue // already retired on an earlier pass
		}

		c.inv.Remove(d.ListingID)

		if err := c.deleteListing(ctx, d.ListingID); err != nil {
			c.log.Warn(ctx, "listing delete failed, will retry next pass",
				"listing_id", d.ListingID, "deal_id", d.ID, "err", err)
		} else {
			c.log.Info(ctx, "sold listing retired", "listing_id", d.ListingID, "deal_id", d.ID)
		}
	}

	return c.inv.Reload(ctx)
}

// deleteListing retries transient failures a few times before giving up on
// this pass. An already-gone listing counts as success: some other pass or the
// owner got there first.
func (c *Coordinator) deleteListing(ctx context.Context, listingID string) error {
	backoff := retry.WithMaxRetries(deleteAttempts-1, retry.NewConstant(deleteBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.inv.Store().Delete(ctx, listingID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, listing.ErrNotFound):
			return nil
		case errors.Is(err, listing.ErrStoreUnavailable):
			return retry.RetryableError(err)
		default:
			return err
		}
	})
}
