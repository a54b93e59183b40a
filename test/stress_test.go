package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"farmdeal/deal"
	"farmdeal/listing"
	"farmdeal/test/actors"
	"farmdeal/test/chaos"
	"farmdeal/test/infra"
	"farmdeal/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestDealConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool)

	deals := deal.NewPGStore(pool)
	listings := listing.NewPGStore(pool)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// buyers opening and countering against the same listing, seller closing
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.Opener(ctx2, deals, seedData.tomatoes, seedData.buyerID, stop)
		})
		g.Go(func() error {
			return actors.Counterer(ctx2, deals, seedData.buyerID, deal.RoleBuyer, stop)
		})
	}
	g.Go(func() error {
		return actors.Counterer(ctx2, deals, seedData.sellerID, deal.RoleSeller, stop)
	})
	g.Go(func() error { return actors.Closer(ctx2, deals, seedData.sellerID, stop) })
	g.Go(func() error {
		return actors.SeenMarker(ctx2, deals, seedData.sellerID, deal.RoleSeller, stop)
	})
	g.Go(func() error {
		return actors.SeenMarker(ctx2, deals, seedData.buyerID, deal.RoleBuyer, stop)
	})
	g.Go(func() error { return actors.Reaper(ctx2, deals, listings, seedData.sellerID, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	sellerID string
	buyerID  string
	tomatoes listing.Listing
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs
	if err := pool.QueryRow(ctx,
		`INSERT INTO users (email, full_name, role) VALUES ($1, 'Stress Farmer', 'farmer') RETURNING id`,
		fmt.Sprintf("farmer%d@example.com", rand.Int63())).Scan(&s.sellerID); err != nil {
		t.Fatalf("seed farmer: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO users (email, full_name, role) VALUES ($1, 'Stress Trader', 'trader') RETURNING id`,
		fmt.Sprintf("trader%d@example.com", rand.Int63())).Scan(&s.buyerID); err != nil {
		t.Fatalf("seed trader: %v", err)
	}

	l, err := listing.NewPGStore(pool).Create(ctx, listing.CreateParams{
		OwnerID: s.sellerID, Name: "Stress Tomatoes", Rate: 40, Quantity: 500, Unit: "kg",
	})
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	s.tomatoes = l
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"deals", `SELECT id, listing_id, status, quantity, price, seller_seen, buyer_seen, updated_at FROM deals ORDER BY updated_at DESC LIMIT 50`},
		{"listings", `SELECT id, owner_id, name, quantity, rate FROM listings ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
