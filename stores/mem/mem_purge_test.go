package mem_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ges "github.com/mkirchner/evstore"
	"github.com/mkirchner/evstore/stores/mem"
	"github.com/mkirchner/evstore/tenancy"
)

type pinged struct{ N int }

func (pinged) EventType() string { return "Pinged" }

func newPurgeTestStore() *mem.Store {
	r := ges.NewRegistry()
	r.Register("Pinged", 1, ges.JSONCodec[pinged]())
	return mem.New(mem.WithRegistry(r))
}

func TestPurger_RemovesEventsOlderThanCutoffOnly(t *testing.T) {
	ctx := t.Context()
	store := newPurgeTestStore()
	ref := ges.StreamRef{AggregateID: "p-1", AggregateType: "test"}
	_, err := store.Append(ctx, ref, 0, []ges.AppendEvent{{Event: pinged{N: 1}}}, nil)
	require.NoError(t, err)

	cutoff := time.Now().Add(-time.Hour)
	purger := mem.NewPurger(store)
	removed, err := purger.Purge(ctx, cutoff, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed, "events created after cutoff must survive")

	var loaded []ges.EventEnvelope
	for env, err := range store.LoadStream(ctx, ref, 0) {
		require.NoError(t, err)
		loaded = append(loaded, env)
	}
	assert.Len(t, loaded, 1)
}

func TestPurger_RemovesEventsScopedToTenant(t *testing.T) {
	ctx := t.Context()
	r := ges.NewRegistry()
	r.Register("Pinged", 1, ges.JSONCodec[pinged]())
	store := mem.New(mem.WithRegistry(r), mem.WithTenancy(tenancy.Config{Enabled: true}))

	refA := ges.StreamRef{AggregateID: "p-a", AggregateType: "test", TenantID: "tenant-a"}
	refB := ges.StreamRef{AggregateID: "p-b", AggregateType: "test", TenantID: "tenant-b"}
	_, err := store.Append(ctx, refA, 0, []ges.AppendEvent{{Event: pinged{N: 1}}}, nil)
	require.NoError(t, err)
	_, err = store.Append(ctx, refB, 0, []ges.AppendEvent{{Event: pinged{N: 1}}}, nil)
	require.NoError(t, err)

	purger := mem.NewPurger(store)
	removed, err := purger.Purge(ctx, time.Now().Add(time.Hour), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var loadedB []ges.EventEnvelope
	for env, err := range store.LoadStream(ctx, refB, 0) {
		require.NoError(t, err)
		loadedB = append(loadedB, env)
	}
	assert.Len(t, loadedB, 1, "tenant-b's events must be untouched")
}
