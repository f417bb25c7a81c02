package pgx

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkirchner/evstore/admin"
)

// Purger is a concrete admin.Purger backed by PostgreSQL.
type Purger struct {
	pool *pgxpool.Pool
}

// NewPurger creates a Postgres-backed Purger.
func NewPurger(pool *pgxpool.Pool) *Purger {
	return &Purger{pool: pool}
}

// Purge deletes events (and any snapshot left stranded by the deletion)
// committed strictly before cutoff, scoped to tenantID when non-empty.
func (p *Purger) Purge(ctx context.Context, cutoff time.Time, tenantID string) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ges-pgx: could not begin purge transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		DELETE FROM events WHERE created_at < $1 AND ($2 = '' OR tenant_id = $2)
	`, cutoff, tenantID)
	if err != nil {
		return 0, fmt.Errorf("ges-pgx: could not delete events: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM snapshots s WHERE NOT EXISTS (
			SELECT 1 FROM events e WHERE e.aggregate_id = s.aggregate_id AND e.aggregate_type = s.aggregate_type
		)
	`); err != nil {
		return 0, fmt.Errorf("ges-pgx: could not delete stranded snapshots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ges-pgx: could not commit purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ admin.Purger = (*Purger)(nil)
