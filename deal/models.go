package deal

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Kind labels how the buyer opened the deal. It is advisory only and has no
// effect on transition rules.
type Kind string

const (
	KindRequest     Kind = "request"
	KindNegotiation Kind = "negotiation"
)

// Role identifies which side of a deal an actor is on.
type Role string

const (
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
)

// Deal is a negotiation over one listing between exactly two actors. Terms
// (Quantity/Price) always refer to the most recent proposal; once the deal is
// accepted they are the agreed terms.
type Deal struct {
	ID string

	ListingID   string
	ListingName string

	SellerID   string
	SellerName string

	BuyerID       string
	BuyerName     string
	BuyerPhone    string
	BuyerLocation string

	Unit     string
	Quantity float64
	Price    float64

	Kind   Kind
	Status Status

	SellerSeen bool
	BuyerSeen  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleOf reports which side of the deal the actor is on. The second return is
// false for non-participants.
func (d Deal) RoleOf(actorID string) (Role, bool) {
	switch actorID {
	case "":
		return "", false
	case d.SellerID:
		return RoleSeller, true
	case d.BuyerID:
		return RoleBuyer, true
	}
	return "", false
}

// Terminal reports whether the deal has reached an absorbing state.
func (d Deal) Terminal() bool {
	return d.Status == StatusAccepted || d.Status == StatusRejected
}

// SeenBy returns the seen flag for the given side.
func (d Deal) SeenBy(role Role) bool {
	if role == RoleSeller {
		return d.SellerSeen
	}
	return d.BuyerSeen
}

// CreateParams enumerates the fields a buyer supplies when opening a deal.
// Seller and listing identity come from the listing being targeted; names and
// phone are denormalized onto the record so clients can render a deal without
// extra lookups.
type CreateParams struct {
	ListingID   string
	ListingName string

	SellerID   string
	SellerName string

	BuyerID       string
	BuyerName     string
	BuyerPhone    string
	BuyerLocation string

	Kind     Kind
	Unit     string
	Quantity float64
	Price    float64
}
