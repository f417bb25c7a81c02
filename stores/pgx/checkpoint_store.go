package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkirchner/evstore/projection"
)

// CheckpointStore is a concrete projection.CheckpointStore backed by
// PostgreSQL.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

// NewCheckpointStore creates a Postgres-backed CheckpointStore.
func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Load returns the current checkpoint for name, or 0 if none has been
// recorded yet.
func (s *CheckpointStore) Load(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `
		SELECT last_global_sequence FROM projection_checkpoints WHERE projection_name = $1
	`, name).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("ges-pgx: could not load checkpoint %s: %w", name, err)
	}
	return seq, nil
}

// Advance upserts name's checkpoint to globalSequence. Callers must ensure
// globalSequence is monotonically increasing per projection (I6); this
// store does not itself reject a regression, since the projection engine is
// the sole writer and already enforces ordering.
func (s *CheckpointStore) Advance(ctx context.Context, name string, globalSequence int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projection_checkpoints (projection_name, last_global_sequence, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (projection_name)
		DO UPDATE SET last_global_sequence = EXCLUDED.last_global_sequence, updated_at = EXCLUDED.updated_at
	`, name, globalSequence, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ges-pgx: could not advance checkpoint %s: %w", name, err)
	}
	return nil
}

// Reset sets name's checkpoint back to 0.
func (s *CheckpointStore) Reset(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projection_checkpoints (projection_name, last_global_sequence, updated_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (projection_name)
		DO UPDATE SET last_global_sequence = 0, updated_at = EXCLUDED.updated_at
	`, name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ges-pgx: could not reset checkpoint %s: %w", name, err)
	}
	return nil
}

var _ projection.CheckpointStore = (*CheckpointStore)(nil)
