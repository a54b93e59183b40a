package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const listingColumns = `id, owner_id, name, image, rate, quantity, unit, created_at, updated_at`

// PGStore is the Postgres-backed listing Store.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Create(ctx context.Context, params CreateParams) (Listing, error) {
	if params.OwnerID == "" || params.Name == "" {
		return Listing{}, fmt.Errorf("%w: owner and name required", ErrValidation)
	}
	if params.Quantity <= 0 || params.Rate <= 0 {
		return Listing{}, fmt.Errorf("%w: quantity and rate must be positive", ErrValidation)
	}

	const insertSQL = `
INSERT INTO listings (owner_id, name, image, rate, quantity, unit)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING ` + listingColumns

	row := s.pool.QueryRow(ctx, insertSQL,
		params.OwnerID, params.Name, params.Image, params.Rate, params.Quantity, params.Unit)
	l, err := scanListing(row)
	if err != nil {
		return Listing{}, fmt.Errorf("%w: insert listing: %v", ErrStoreUnavailable, err)
	}
	return l, nil
}

func (s *PGStore) Get(ctx context.Context, listingID string) (Listing, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id=$1`, listingID)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, fmt.Errorf("%w: %s", ErrNotFound, listingID)
		}
		return Listing{}, fmt.Errorf("%w: get listing: %v", ErrStoreUnavailable, err)
	}
	return l, nil
}

func (s *PGStore) ForOwner(ctx context.Context, ownerID string) ([]Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE owner_id=$1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list listings: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	out := make([]Listing, 0, 8)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan listing: %v", ErrStoreUnavailable, err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate listings: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

func (s *PGStore) Delete(ctx context.Context, listingID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE id=$1`, listingID)
	if err != nil {
		return fmt.Errorf("%w: delete listing: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, listingID)
	}
	return nil
}

func scanListing(row pgx.Row) (Listing, error) {
	var l Listing
	err := row.Scan(&l.ID, &l.OwnerID, &l.Name, &l.Image, &l.Rate, &l.Quantity, &l.Unit, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}
