package ges

import (
	"context"
	"time"
)

// Snapshot is a serialized aggregate state at a known version, used to
// shortcut replay. One snapshot row exists per aggregate and is overwritten
// on each new snapshot (I4: its version never exceeds the highest persisted
// event version for that aggregate).
type Snapshot struct {
	AggregateID   string
	AggregateType string
	Version       int64
	Payload       []byte
	CreatedAt     time.Time
}

// SnapshotStore persists and retrieves the most recent snapshot per
// aggregate. Implementations must treat snapshots as a pure optimization: a
// miss, or a failed Save, must never be observable as a correctness failure
// to a caller that falls back to full replay.
type SnapshotStore interface {
	// Save upserts the snapshot for its (AggregateID, AggregateType).
	Save(ctx context.Context, snap Snapshot) error

	// Load returns the latest snapshot for an aggregate, or ok=false if none
	// exists.
	Load(ctx context.Context, aggregateID, aggregateType string) (snap Snapshot, ok bool, err error)

	// Delete removes the snapshot for an aggregate, if any.
	Delete(ctx context.Context, aggregateID, aggregateType string) error
}
