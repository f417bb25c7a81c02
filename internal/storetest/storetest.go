// Package storetest is a compliance suite any ges.EventStore implementation
// must pass. It is exercised by both the mem and pgx stores against the
// same behavioral contract rather than their individual internals.
package storetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ges "github.com/mkirchner/evstore"
)

// Opened and Added are minimal domain-free events used only to drive the
// suite, so it stays independent of any real aggregate's event set.
type Opened struct{ ID string }

func (Opened) EventType() string { return "Opened" }

type Added struct{ N int }

func (Added) EventType() string { return "Added" }

// Registry returns a codec registry covering Opened/Added at schema
// version 1.
func Registry() *ges.Registry {
	r := ges.NewRegistry()
	r.Register("Opened", 1, ges.JSONCodec[Opened]())
	r.Register("Added", 1, ges.JSONCodec[Added]())
	return r
}

// Factory creates a fresh, isolated EventStore instance for one test.
type Factory func(t *testing.T) ges.EventStore

// Run executes the compliance suite against newStore. Subtests run in
// parallel, so stores under test must be concurrency-safe.
func Run(t *testing.T, newStore Factory) {
	t.Run("append assigns contiguous versions and monotonic global sequence", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)
		ref := ges.StreamRef{AggregateID: "agg-1", AggregateType: "test"}

		envs, err := s.Append(ctx, ref, 0, []ges.AppendEvent{{Event: Opened{ID: "1"}}}, nil)
		require.NoError(t, err)
		require.Len(t, envs, 1)
		assert.Equal(t, int64(1), envs[0].AggregateVersion)

		envs, err = s.Append(ctx, ref, 1, []ges.AppendEvent{{Event: Added{N: 5}}, {Event: Added{N: 1}}}, nil)
		require.NoError(t, err)
		require.Len(t, envs, 2)
		assert.Equal(t, int64(2), envs[0].AggregateVersion)
		assert.Equal(t, int64(3), envs[1].AggregateVersion)
		assert.Greater(t, envs[1].GlobalSequence, envs[0].GlobalSequence)

		var loaded []ges.EventEnvelope
		for env, err := range s.LoadStream(ctx, ref, 0) {
			require.NoError(t, err)
			loaded = append(loaded, env)
		}
		require.Len(t, loaded, 3)
		assert.Equal(t, int64(1), loaded[0].AggregateVersion)
		assert.Equal(t, int64(3), loaded[2].AggregateVersion)

		hv, err := s.HighestVersion(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, int64(3), hv)
	})

	t.Run("append rejects a stale expected version", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)
		ref := ges.StreamRef{AggregateID: "agg-2", AggregateType: "test"}

		_, err := s.Append(ctx, ref, 0, []ges.AppendEvent{{Event: Opened{ID: "2"}}}, nil)
		require.NoError(t, err)

		_, err = s.Append(ctx, ref, 0, []ges.AppendEvent{{Event: Added{N: 1}}}, nil)
		var conflict *ges.ConcurrencyConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, int64(0), conflict.ExpectedVersion)
		assert.Equal(t, int64(1), conflict.ActualVersion)
	})

	t.Run("append rejects an empty batch", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)
		ref := ges.StreamRef{AggregateID: "agg-3", AggregateType: "test"}

		_, err := s.Append(ctx, ref, 0, nil, nil)
		var invalid *ges.InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
	})

	t.Run("loadStream is scoped per aggregate", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)
		refA := ges.StreamRef{AggregateID: "agg-a", AggregateType: "test"}
		refB := ges.StreamRef{AggregateID: "agg-b", AggregateType: "test"}

		_, err := s.Append(ctx, refA, 0, []ges.AppendEvent{{Event: Opened{ID: "a"}}}, nil)
		require.NoError(t, err)
		_, err = s.Append(ctx, refB, 0, []ges.AppendEvent{{Event: Opened{ID: "b"}}}, nil)
		require.NoError(t, err)

		var loaded []ges.EventEnvelope
		for env, err := range s.LoadStream(ctx, refA, 0) {
			require.NoError(t, err)
			loaded = append(loaded, env)
		}
		require.Len(t, loaded, 1)
		assert.Equal(t, "agg-a", loaded[0].AggregateID)
	})

	t.Run("loadRange returns envelopes in ascending global sequence across aggregates", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)
		refA := ges.StreamRef{AggregateID: "range-a", AggregateType: "test"}
		refB := ges.StreamRef{AggregateID: "range-b", AggregateType: "test"}

		_, err := s.Append(ctx, refA, 0, []ges.AppendEvent{{Event: Opened{ID: "a"}}}, nil)
		require.NoError(t, err)
		_, err = s.Append(ctx, refB, 0, []ges.AppendEvent{{Event: Opened{ID: "b"}}}, nil)
		require.NoError(t, err)
		_, err = s.Append(ctx, refA, 1, []ges.AppendEvent{{Event: Added{N: 1}}}, nil)
		require.NoError(t, err)

		var loaded []ges.EventEnvelope
		for env, err := range s.LoadRange(ctx, "", 0, 100) {
			require.NoError(t, err)
			loaded = append(loaded, env)
		}
		require.GreaterOrEqual(t, len(loaded), 3)
		for i := 1; i < len(loaded); i++ {
			assert.Greater(t, loaded[i].GlobalSequence, loaded[i-1].GlobalSequence)
		}
	})

	t.Run("loadRange respects limit", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)
		ref := ges.StreamRef{AggregateID: "limited", AggregateType: "test"}

		_, err := s.Append(ctx, ref, 0, []ges.AppendEvent{
			{Event: Opened{ID: "x"}}, {Event: Added{N: 1}}, {Event: Added{N: 2}},
		}, nil)
		require.NoError(t, err)

		var loaded []ges.EventEnvelope
		for env, err := range s.LoadRange(ctx, "", 0, 2) {
			require.NoError(t, err)
			loaded = append(loaded, env)
		}
		assert.Len(t, loaded, 2)
	})

	t.Run("duplicate event-id within a batch is rejected", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()
		s := newStore(t)
		ref := ges.StreamRef{AggregateID: "dup", AggregateType: "test"}

		_, err := s.Append(ctx, ref, 0, []ges.AppendEvent{
			{EventID: "same", Event: Opened{ID: "x"}},
			{EventID: "same", Event: Added{N: 1}},
		}, nil)
		var invalid *ges.InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
	})
}
