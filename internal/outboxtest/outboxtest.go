// Package outboxtest is a compliance suite any outbox.Store implementation
// must pass, exercised by both the mem and pgx stores against the same
// behavioral contract.
package outboxtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkirchner/evstore/outbox"
)

// Seed inserts n PENDING rows into the store under test. Implementations
// that only create rows via an EventStore.Append side effect provide this
// however is natural for them (direct insert, or via a throwaway append).
type Seed func(t *testing.T, n int) []string

// Factory creates a fresh, isolated outbox.Store, paired with a Seed that
// populates it.
type Factory func(t *testing.T) (outbox.Store, Seed)

// Run executes the compliance suite against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("claimBatch respects limit and marks rows claimed", func(t *testing.T) {
		ctx := t.Context()
		s, seed := newStore(t)
		ids := seed(t, 5)
		require.Len(t, ids, 5)

		first, err := s.ClaimBatch(ctx, 3)
		require.NoError(t, err)
		assert.Len(t, first, 3)

		second, err := s.ClaimBatch(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, second, 2, "already-claimed rows must not be claimed again")
	})

	t.Run("markProcessed transitions a row out of the claimable set", func(t *testing.T) {
		ctx := t.Context()
		s, seed := newStore(t)
		ids := seed(t, 1)

		claimed, err := s.ClaimBatch(ctx, 10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		require.NoError(t, s.MarkProcessed(ctx, ids[0], time.Now().UTC()))

		again, err := s.ClaimBatch(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, again)
	})

	t.Run("markAttemptFailed transitions to FAILED once maxAttempts is reached", func(t *testing.T) {
		ctx := t.Context()
		s, seed := newStore(t)
		ids := seed(t, 1)

		_, err := s.ClaimBatch(ctx, 10)
		require.NoError(t, err)

		status, err := s.MarkAttemptFailed(ctx, ids[0], 2)
		require.NoError(t, err)
		assert.Equal(t, outbox.StatusPending, status, "below maxAttempts stays retryable")

		status, err = s.MarkAttemptFailed(ctx, ids[0], 2)
		require.NoError(t, err)
		assert.Equal(t, outbox.StatusFailed, status)
	})

	t.Run("requeue resets a FAILED row back to PENDING and claimable", func(t *testing.T) {
		ctx := t.Context()
		s, seed := newStore(t)
		ids := seed(t, 1)

		_, err := s.ClaimBatch(ctx, 10)
		require.NoError(t, err)
		_, err = s.MarkAttemptFailed(ctx, ids[0], 1)
		require.NoError(t, err)

		require.NoError(t, s.Requeue(ctx, ids[0]))

		claimed, err := s.ClaimBatch(ctx, 10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, 0, claimed[0].AttemptCount)
	})

	t.Run("requeue on an unknown row errors", func(t *testing.T) {
		ctx := t.Context()
		s, _ := newStore(t)
		err := s.Requeue(ctx, "does-not-exist")
		assert.Error(t, err)
	})
}
