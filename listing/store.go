package listing

import "context"

// Store is the authoritative listing collection. Only the owner writes its own
// listings; the buyer's client never calls Delete — asymmetric permissions are
// why cleanup after an accepted deal runs on the seller's client.
type Store interface {
	Create(ctx context.Context, params CreateParams) (Listing, error)
	Get(ctx context.Context, listingID string) (Listing, error)
	ForOwner(ctx context.Context, ownerID string) ([]Listing, error)
	// Delete removes the listing and its stored image reference. Deleting an
	// already-absent listing returns ErrNotFound.
	Delete(ctx context.Context, listingID string) error
}
