package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant checks run against the live database while the
// actors are racing. Any returned row is a violation.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_terms_positive",
			SQL:  `SELECT id, quantity, price FROM deals WHERE quantity <= 0 OR price <= 0`,
		},
		{
			Name: "O2_parties_distinct",
			SQL:  `SELECT id FROM deals WHERE seller_id = buyer_id`,
		},
		{
			Name: "O3_updated_at_monotone",
			SQL:  `SELECT id, created_at, updated_at FROM deals WHERE updated_at < created_at`,
		},
		{
			Name: "O4_terminal_guard_present",
			SQL: `SELECT 'missing_guard_terminal_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname='deals_guard_terminal')`,
		},
		{
			Name: "O5_delete_guard_present",
			SQL: `SELECT 'missing_no_delete_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname='deals_no_delete')`,
		},
		{
			Name: "O6_accepted_listing_retired",
			// The reaper is eventually consistent; only flag listings that are
			// still around well after their deal closed.
			SQL: `SELECT l.id, d.id FROM listings l
                  JOIN deals d ON d.listing_id = l.id
                  WHERE d.status = 'accepted'
                    AND now() - d.updated_at > interval '30 seconds'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
