package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested profile does not exist.
var ErrNotFound = errors.New("profile: not found")

// Repository provides read access to actor profiles backed by the users table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a profile by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Profile, error) {
	const query = `
		SELECT id, full_name, COALESCE(phone, ''), COALESCE(location, ''), role, created_at
		FROM users
		WHERE id = $1
	`

	var p Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.FullName,
		&p.Phone,
		&p.Location,
		&p.Role,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("profile: query by id: %w", err)
	}

	return p, nil
}

// ListByRole fetches up to limit profiles with the given role ordered by name.
func (r *Repository) ListByRole(ctx context.Context, role string, limit int) ([]Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT id, full_name, COALESCE(phone, ''), COALESCE(location, ''), role, created_at
		FROM users
		WHERE role = $1
		ORDER BY full_name ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, role, limit)
	if err != nil {
		return nil, fmt.Errorf("profile: list by role: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0, limit)
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.FullName, &p.Phone, &p.Location, &p.Role, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("profile: scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile: iterate profiles: %w", err)
	}

	return profiles, nil
}
