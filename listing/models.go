package listing

import (
	"errors"
	"time"
)

// Listing is a seller-owned sellable quantity. It never references deals; the
// relation is discovered by querying deals on ListingID.
type Listing struct {
	ID       string
	OwnerID  string
	Name     string
	Image    string
	Rate     float64
	Quantity float64
	Unit     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateParams enumerates the fields a seller supplies when publishing a listing.
type CreateParams struct {
	OwnerID  string
	Name     string
	Image    string
	Rate     float64
	Quantity float64
	Unit     string
}

var (
	ErrNotFound = errors.New("listing: not found")
	// ErrStoreUnavailable wraps transient failures; a delete that hits one is
	// retried implicitly on the next cleanup pass.
	ErrStoreUnavailable = errors.New("listing: store unavailable")
	ErrValidation       = errors.New("listing: invalid fields")
)
