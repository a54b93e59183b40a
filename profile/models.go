package profile

import "time"

// Profile captures the subset of actor data exposed via the public API layer.
// It is the contact card shown to the counterparty once a deal exists.
type Profile struct {
	ID        string
	FullName  string
	Phone     string
	Location  string
	Role      string
	CreatedAt time.Time
}
