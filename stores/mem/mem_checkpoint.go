package mem

import (
	"context"
	"sync"

	"github.com/mkirchner/evstore/projection"
)

// CheckpointStore is an in-memory projection.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	byID map[string]int64
}

// NewCheckpointStore creates an empty in-memory CheckpointStore.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{byID: make(map[string]int64)}
}

func (c *CheckpointStore) Load(_ context.Context, name string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[name], nil
}

func (c *CheckpointStore) Advance(_ context.Context, name string, globalSequence int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[name] = globalSequence
	return nil
}

func (c *CheckpointStore) Reset(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[name] = 0
	return nil
}

var _ projection.CheckpointStore = (*CheckpointStore)(nil)
