package pgx_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkirchner/evstore/internal/projectiontest"
	"github.com/mkirchner/evstore/projection"
	pgxstore "github.com/mkirchner/evstore/stores/pgx"
)

func TestCheckpointStore_Compliance(t *testing.T) {
	projectiontest.Run(t, func(t *testing.T) projection.CheckpointStore {
		t.Helper()
		pool := newTestPool(t)
		_, err := pool.Exec(t.Context(), "TRUNCATE events, snapshots, event_outbox, projection_checkpoints")
		require.NoError(t, err)
		return pgxstore.NewCheckpointStore(pool)
	})
}
