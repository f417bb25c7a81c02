package pgx_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mkirchner/evstore/internal/outboxtest"
	"github.com/mkirchner/evstore/outbox"
	pgxstore "github.com/mkirchner/evstore/stores/pgx"
)

func TestOutboxStore_Compliance(t *testing.T) {
	outboxtest.Run(t, func(t *testing.T) (outbox.Store, outboxtest.Seed) {
		t.Helper()
		pool := newTestPool(t)
		_, err := pool.Exec(t.Context(), "TRUNCATE events, snapshots, event_outbox, projection_checkpoints")
		require.NoError(t, err)

		store := pgxstore.NewOutboxStore(pool)
		seed := func(t *testing.T, n int) []string {
			ids := make([]string, n)
			for i := range ids {
				id := uuid.NewString()
				_, err := pool.Exec(t.Context(), `
					INSERT INTO event_outbox (outbox_id, aggregate_id, event_type, event_data, metadata, status)
					VALUES ($1, $2, 'Thing', '{}', '{}', 'PENDING')
				`, id, uuid.NewString())
				require.NoError(t, err)
				ids[i] = id
			}
			return ids
		}
		return store, seed
	})
}
