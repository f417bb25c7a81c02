// Package projectiontest is a compliance suite any projection.CheckpointStore
// implementation must pass, exercised by both the mem and pgx stores
// against the same behavioral contract.
package projectiontest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkirchner/evstore/projection"
)

// Factory creates a fresh, isolated projection.CheckpointStore.
type Factory func(t *testing.T) projection.CheckpointStore

// Run executes the compliance suite against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("load on an unseen projection returns zero", func(t *testing.T) {
		ctx := t.Context()
		s := newStore(t)
		seq, err := s.Load(ctx, "unseen")
		require.NoError(t, err)
		assert.Equal(t, int64(0), seq)
	})

	t.Run("advance persists and load reflects it", func(t *testing.T) {
		ctx := t.Context()
		s := newStore(t)
		require.NoError(t, s.Advance(ctx, "balances", 42))
		seq, err := s.Load(ctx, "balances")
		require.NoError(t, err)
		assert.Equal(t, int64(42), seq)

		require.NoError(t, s.Advance(ctx, "balances", 100))
		seq, err = s.Load(ctx, "balances")
		require.NoError(t, err)
		assert.Equal(t, int64(100), seq)
	})

	t.Run("reset returns the checkpoint to zero", func(t *testing.T) {
		ctx := t.Context()
		s := newStore(t)
		require.NoError(t, s.Advance(ctx, "balances", 42))
		require.NoError(t, s.Reset(ctx, "balances"))
		seq, err := s.Load(ctx, "balances")
		require.NoError(t, err)
		assert.Equal(t, int64(0), seq)
	})

	t.Run("checkpoints for distinct projection names are independent", func(t *testing.T) {
		ctx := t.Context()
		s := newStore(t)
		require.NoError(t, s.Advance(ctx, "balances", 5))
		require.NoError(t, s.Advance(ctx, "audit_log", 9))

		seq, err := s.Load(ctx, "balances")
		require.NoError(t, err)
		assert.Equal(t, int64(5), seq)

		seq, err = s.Load(ctx, "audit_log")
		require.NoError(t, err)
		assert.Equal(t, int64(9), seq)
	})
}
