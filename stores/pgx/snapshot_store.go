package pgx

import (
	"context"
	"errors"
	"fmt"

	ges "github.com/mkirchner/evstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotStore is a concrete ges.SnapshotStore backed by PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a Postgres-backed SnapshotStore.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Save upserts the snapshot for its (AggregateID, AggregateType).
func (s *SnapshotStore) Save(ctx context.Context, snap ges.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO snapshots (aggregate_id, aggregate_type, aggregate_version, snapshot_data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (aggregate_id, aggregate_type)
		DO UPDATE SET aggregate_version = EXCLUDED.aggregate_version,
		              snapshot_data = EXCLUDED.snapshot_data,
		              created_at = now()
	`, snap.AggregateID, snap.AggregateType, snap.Version, snap.Payload)
	if err != nil {
		if isTransient(err) {
			return &ges.UnavailableError{Op: "snapshot.save", Err: err}
		}
		return fmt.Errorf("ges-pgx: could not save snapshot: %w", err)
	}
	return nil
}

// Load returns the latest snapshot for an aggregate, or ok=false if none
// exists.
func (s *SnapshotStore) Load(ctx context.Context, aggregateID, aggregateType string) (ges.Snapshot, bool, error) {
	var snap ges.Snapshot
	snap.AggregateID = aggregateID
	snap.AggregateType = aggregateType
	err := s.pool.QueryRow(ctx, `
		SELECT aggregate_version, snapshot_data, created_at FROM snapshots
		WHERE aggregate_id = $1 AND aggregate_type = $2
	`, aggregateID, aggregateType).Scan(&snap.Version, &snap.Payload, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ges.Snapshot{}, false, nil
		}
		if isTransient(err) {
			return ges.Snapshot{}, false, &ges.UnavailableError{Op: "snapshot.load", Err: err}
		}
		return ges.Snapshot{}, false, fmt.Errorf("ges-pgx: could not load snapshot: %w", err)
	}
	return snap, true, nil
}

// Delete removes the snapshot for an aggregate, if any.
func (s *SnapshotStore) Delete(ctx context.Context, aggregateID, aggregateType string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM snapshots WHERE aggregate_id = $1 AND aggregate_type = $2
	`, aggregateID, aggregateType)
	if err != nil {
		if isTransient(err) {
			return &ges.UnavailableError{Op: "snapshot.delete", Err: err}
		}
		return fmt.Errorf("ges-pgx: could not delete snapshot: %w", err)
	}
	return nil
}

var _ ges.SnapshotStore = (*SnapshotStore)(nil)
