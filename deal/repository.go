package deal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dealColumns = `
id, listing_id, listing_name, seller_id, seller_name,
buyer_id, buyer_name, buyer_phone, buyer_location,
unit, quantity, price, kind, status::text,
seller_seen, buyer_seen, created_at, updated_at`

// PGStore is the Postgres-backed Store. Transition preconditions are encoded
// in guarded UPDATE statements so a stale client's write lands as zero rows
// instead of clobbering a terminal deal; the schema triggers in migrations/
// back this up at the database level.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Create(ctx context.Context, params CreateParams) (Deal, error) {
	if params.ListingID == "" || params.SellerID == "" || params.BuyerID == "" {
		return Deal{}, fmt.Errorf("%w: listing, seller and buyer ids required", ErrValidationFailed)
	}
	if params.Quantity <= 0 || params.Price <= 0 {
		return Deal{}, fmt.Errorf("%w: quantity and price must be positive", ErrValidationFailed)
	}
	kind := params.Kind
	if kind == "" {
		kind = KindRequest
	}

	const insertSQL = `
INSERT INTO deals (
    listing_id, listing_name, seller_id, seller_name,
    buyer_id, buyer_name, buyer_phone, buyer_location,
    unit, quantity, price, kind, status, seller_seen, buyer_seen
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,'pending',false,true)
RETURNING ` + dealColumns

	row := s.pool.QueryRow(ctx, insertSQL,
		params.ListingID, params.ListingName, params.SellerID, params.SellerName,
		params.BuyerID, params.BuyerName, params.BuyerPhone, params.BuyerLocation,
		params.Unit, params.Quantity, params.Price, string(kind),
	)
	d, err := scanDeal(row)
	if err != nil {
		return Deal{}, fmt.Errorf("%w: insert deal: %v", ErrStoreUnavailable, err)
	}
	return d, nil
}

func (s *PGStore) Get(ctx context.Context, dealID string) (Deal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id=$1`, dealID)
	d, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, fmt.Errorf("%w: %s", ErrNotFound, dealID)
		}
		return Deal{}, fmt.Errorf("%w: get deal: %v", ErrStoreUnavailable, err)
	}
	return d, nil
}

func (s *PGStore) ForActor(ctx context.Context, actorID string, role Role) ([]Deal, error) {
	column := "buyer_id"
	if role == RoleSeller {
		column = "seller_id"
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE `+column+`=$1 ORDER BY updated_at DESC`, actorID)
	if err != nil {
		return nil, fmt.Errorf("%w: list deals: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	deals := make([]Deal, 0, 8)
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan deal: %v", ErrStoreUnavailable, err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate deals: %v", ErrStoreUnavailable, err)
	}
	return deals, nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, dealID string, status Status, actorID string) (Deal, error) {
	if status != StatusAccepted && status != StatusRejected {
		return Deal{}, fmt.Errorf("%w: cannot transition to %q", ErrPreconditionFailed, status)
	}

	// The WHERE clause carries the full precondition: pending only, and the
	// actor must sit on one side of the deal. Zero rows means the command was
	// stale; classify() works out which error to report.
	const updateSQL = `
UPDATE deals
SET status = $1::deal_status,
    updated_at = GREATEST(now(), updated_at)
WHERE id = $2
  AND status = 'pending'
  AND (seller_id = $3 OR buyer_id = $3)
RETURNING ` + dealColumns

	row := s.pool.QueryRow(ctx, updateSQL, string(status), dealID, actorID)
	d, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, s.classify(ctx, dealID, actorID)
		}
		return Deal{}, fmt.Errorf("%w: update status: %v", ErrStoreUnavailable, err)
	}
	return d, nil
}

func (s *PGStore) UpdateOffer(ctx context.Context, dealID string, quantity, price float64, actorID string) (Deal, error) {
	if quantity <= 0 {
		return Deal{}, fmt.Errorf("%w: quantity must be positive, got %v", ErrValidationFailed, quantity)
	}
	if price <= 0 {
		return Deal{}, fmt.Errorf("%w: price must be positive, got %v", ErrValidationFailed, price)
	}

	// A counter clears the counterparty's seen flag and leaves the proposer's
	// untouched; the CASE keeps that in one round trip.
	const updateSQL = `
UPDATE deals
SET quantity = $1,
    price = $2,
    seller_seen = CASE WHEN seller_id = $4 THEN seller_seen ELSE false END,
    buyer_seen  = CASE WHEN buyer_id  = $4 THEN buyer_seen  ELSE false END,
    updated_at = GREATEST(now(), updated_at)
WHERE id = $3
  AND status = 'pending'
  AND (seller_id = $4 OR buyer_id = $4)
RETURNING ` + dealColumns

	row := s.pool.QueryRow(ctx, updateSQL, quantity, price, dealID, actorID)
	d, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, s.classify(ctx, dealID, actorID)
		}
		return Deal{}, fmt.Errorf("%w: update offer: %v", ErrStoreUnavailable, err)
	}
	return d, nil
}

func (s *PGStore) SetSeen(ctx context.Context, dealID, actorID string, seen bool) error {
	const updateSQL = `
UPDATE deals
SET seller_seen = CASE WHEN seller_id = $3 THEN $1 ELSE seller_seen END,
    buyer_seen  = CASE WHEN buyer_id  = $3 THEN $1 ELSE buyer_seen  END,
    updated_at = GREATEST(now(), updated_at)
WHERE id = $2
  AND (seller_id = $3 OR buyer_id = $3)`

	tag, err := s.pool.Exec(ctx, updateSQL, seen, dealID, actorID)
	if err != nil {
		return fmt.Errorf("%w: set seen: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return s.classify(ctx, dealID, actorID)
	}
	return nil
}

// classify turns a zero-row guarded write into the precise failure: the deal
// is gone, terminal, or the actor is not a party to it.
func (s *PGStore) classify(ctx context.Context, dealID, actorID string) error {
	var (
		status   string
		sellerID string
		buyerID  string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT status::text, seller_id, buyer_id FROM deals WHERE id=$1`, dealID).
		Scan(&status, &sellerID, &buyerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, dealID)
		}
		return fmt.Errorf("%w: classify failed write: %v", ErrStoreUnavailable, err)
	}
	if actorID != sellerID && actorID != buyerID {
		return fmt.Errorf("%w: actor %s is not a participant of deal %s", ErrPreconditionFailed, actorID, dealID)
	}
	return fmt.Errorf("%w: deal %s is already %s", ErrPreconditionFailed, dealID, status)
}

func scanDeal(row pgx.Row) (Deal, error) {
	var d Deal
	err := row.Scan(
		&d.ID, &d.ListingID, &d.ListingName, &d.SellerID, &d.SellerName,
		&d.BuyerID, &d.BuyerName, &d.BuyerPhone, &d.BuyerLocation,
		&d.Unit, &d.Quantity, &d.Price, &d.Kind, &d.Status,
		&d.SellerSeen, &d.BuyerSeen, &d.CreatedAt, &d.UpdatedAt,
	)
	return d, err
}
