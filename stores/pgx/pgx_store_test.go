package pgx_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	ges "github.com/mkirchner/evstore"
	"github.com/mkirchner/evstore/internal/storetest"
	pgxstore "github.com/mkirchner/evstore/stores/pgx"
)

// newTestPool connects to DATABASE_URL and runs migrations, skipping the
// test when no database is configured — these tests exercise the same
// compliance suite as stores/mem but need a real PostgreSQL instance.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping pgx store compliance suite")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	require.NoError(t, pgxstore.Migrate(ctx, pool))
	t.Cleanup(pool.Close)
	return pool
}

func TestEventStore_Compliance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ges.EventStore {
		t.Helper()
		pool := newTestPool(t)
		_, err := pool.Exec(t.Context(), "TRUNCATE events, snapshots, event_outbox, projection_checkpoints")
		require.NoError(t, err)
		return pgxstore.NewEventStore(pool, pgxstore.WithRegistry(storetest.Registry()))
	})
}
