package repository_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ges "github.com/mkirchner/evstore"
	"github.com/mkirchner/evstore/repository"
	"github.com/mkirchner/evstore/stores/mem"
)

type counterCreated struct{ ID string }

func (counterCreated) EventType() string { return "CounterCreated" }

type counterIncremented struct{ By int }

func (counterIncremented) EventType() string { return "CounterIncremented" }

type counter struct {
	ges.Base
	total int
}

func newCounter(id string) *counter {
	c := &counter{}
	c.Init("Counter", id)
	c.Register("CounterCreated", func(e ges.Event) {})
	c.Register("CounterIncremented", func(e ges.Event) { c.total += e.(counterIncremented).By })
	return c
}

func (c *counter) Create() error { return c.Raise(counterCreated{ID: c.AggregateID()}) }
func (c *counter) Increment(by int) error {
	if by <= 0 {
		return fmt.Errorf("increment must be positive")
	}
	return c.Raise(counterIncremented{By: by})
}

type counterSnapshot struct{ Total int }

func (c *counter) SnapshotPayload() ([]byte, error) { return json.Marshal(counterSnapshot{Total: c.total}) }

func (c *counter) RestoreFrom(snap ges.Snapshot) error {
	var s counterSnapshot
	if err := json.Unmarshal(snap.Payload, &s); err != nil {
		return err
	}
	c.total = s.Total
	c.SetVersion(snap.Version)
	return nil
}

func newRegistry() *ges.Registry {
	r := ges.NewRegistry()
	r.Register("CounterCreated", 1, ges.JSONCodec[counterCreated]())
	r.Register("CounterIncremented", 1, ges.JSONCodec[counterIncremented]())
	return r
}

func TestRepository_SaveThenLoadReplaysEvents(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry()
	store := mem.New(mem.WithRegistry(reg))
	snapshots := mem.NewSnapshotStore()
	repo := repository.New[*counter](store, snapshots, reg, ges.NewUpcasterChain(true), "Counter", newCounter, repository.DefaultConfig(), nil)

	_, err := repo.Save(ctx, "", "c-1", false, func(c *counter) error { return c.Create() })
	require.NoError(t, err)
	_, err = repo.Save(ctx, "", "c-1", false, func(c *counter) error { return c.Increment(5) })
	require.NoError(t, err)

	loaded, err := repo.Load(ctx, "", "c-1")
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.total)
	assert.Equal(t, int64(2), loaded.Version())
}

func TestRepository_CommandErrorAbortsSaveWithoutPersisting(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry()
	store := mem.New(mem.WithRegistry(reg))
	snapshots := mem.NewSnapshotStore()
	repo := repository.New[*counter](store, snapshots, reg, ges.NewUpcasterChain(true), "Counter", newCounter, repository.DefaultConfig(), nil)

	_, err := repo.Save(ctx, "", "c-2", false, func(c *counter) error { return c.Create() })
	require.NoError(t, err)

	_, err = repo.Save(ctx, "", "c-2", false, func(c *counter) error { return c.Increment(-1) })
	require.Error(t, err)

	hv, err := store.HighestVersion(ctx, ges.StreamRef{AggregateID: "c-2", AggregateType: "Counter"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), hv, "the failed command must not have appended anything")
}

func TestRepository_SnapshotThresholdTriggersSnapshot(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry()
	store := mem.New(mem.WithRegistry(reg))
	snapshots := mem.NewSnapshotStore()
	cfg := repository.DefaultConfig()
	cfg.SnapshotThreshold = 3
	repo := repository.New[*counter](store, snapshots, reg, ges.NewUpcasterChain(true), "Counter", newCounter, cfg, nil)

	_, err := repo.Save(ctx, "", "c-3", false, func(c *counter) error { return c.Create() })
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = repo.Save(ctx, "", "c-3", false, func(c *counter) error { return c.Increment(1) })
		require.NoError(t, err)
	}

	snap, ok, err := snapshots.Load(ctx, "c-3", "Counter")
	require.NoError(t, err)
	require.True(t, ok, "a snapshot must have been written once the threshold was crossed")
	assert.Equal(t, int64(3), snap.Version)
}

func TestRepository_RetriesOnConcurrencyConflict(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry()
	store := mem.New(mem.WithRegistry(reg))
	snapshots := mem.NewSnapshotStore()
	cfg := repository.DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	repo := repository.New[*counter](store, snapshots, reg, ges.NewUpcasterChain(true), "Counter", newCounter, cfg, nil)

	_, err := repo.Save(ctx, "", "c-4", false, func(c *counter) error { return c.Create() })
	require.NoError(t, err)

	// Simulate a concurrent writer racing ahead of this Save's snapshot of
	// current state by appending directly to the store mid-command.
	first := true
	_, err = repo.Save(ctx, "", "c-4", false, func(c *counter) error {
		if first {
			first = false
			ref := ges.StreamRef{AggregateID: "c-4", AggregateType: "Counter"}
			_, interErr := store.Append(ctx, ref, 1, []ges.AppendEvent{{Event: counterIncremented{By: 100}}}, nil)
			require.NoError(t, interErr)
		}
		return c.Increment(1)
	})
	require.NoError(t, err)

	loaded, err := repo.Load(ctx, "", "c-4")
	require.NoError(t, err)
	assert.Equal(t, 101, loaded.total, "retry must replay the interleaved write before applying its own increment")
}

var _ ges.Aggregate = (*counter)(nil)
