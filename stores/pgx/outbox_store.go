package pgx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkirchner/evstore/outbox"
)

// insertOutboxRow inserts one PENDING event_outbox row inside tx, used by
// EventStore.Append to satisfy I5 (same-transaction outbox insertion).
func insertOutboxRow(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload, metadata []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO event_outbox (outbox_id, aggregate_id, event_type, event_data, metadata, status)
		VALUES ($1, $2, $3, $4, $5, 'PENDING')
	`, uuid.NewString(), aggregateID, eventType, payload, metadata)
	if err != nil {
		return fmt.Errorf("ges-pgx: could not insert outbox row: %w", err)
	}
	return nil
}

// OutboxStore is a concrete outbox.Store backed by PostgreSQL, using
// SELECT ... FOR UPDATE SKIP LOCKED so multiple publisher instances can
// claim batches concurrently without double-delivering.
type OutboxStore struct {
	pool *pgxpool.Pool
}

// NewOutboxStore creates a Postgres-backed OutboxStore.
func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

// ClaimBatch returns up to limit PENDING, unclaimed rows ordered by
// (created_at, outbox_id). FOR UPDATE SKIP LOCKED lets concurrent claimers
// skip rows already being claimed, and the same statement flips claimed to
// true before releasing those locks, so the rows stay unclaimable by a
// second publisher instance even after this statement commits — not just
// for the duration of the claiming transaction.
func (s *OutboxStore) ClaimBatch(ctx context.Context, limit int) ([]outbox.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		WITH claimable AS (
			SELECT outbox_id
			FROM event_outbox
			WHERE status = 'PENDING' AND claimed = false
			ORDER BY created_at ASC, outbox_id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		), claimed_rows AS (
			UPDATE event_outbox
			SET claimed = true
			WHERE outbox_id IN (SELECT outbox_id FROM claimable)
			RETURNING outbox_id, aggregate_id, event_type, event_data, metadata, status, attempt_count, created_at, processed_at
		)
		SELECT outbox_id, aggregate_id, event_type, event_data, metadata, status, attempt_count, created_at, processed_at
		FROM claimed_rows
		ORDER BY created_at ASC, outbox_id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ges-pgx: could not query outbox batch: %w", err)
	}
	defer rows.Close()

	var entries []outbox.Entry
	for rows.Next() {
		var e outbox.Entry
		var metaRaw []byte
		var status string
		var processedAt *time.Time
		if err := rows.Scan(&e.OutboxID, &e.AggregateID, &e.EventType, &e.Payload, &metaRaw, &status, &e.AttemptCount, &e.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("ges-pgx: could not scan outbox row: %w", err)
		}
		e.Status = outbox.Status(status)
		e.ProcessedAt = processedAt
		if len(metaRaw) > 0 {
			_ = json.Unmarshal(metaRaw, &e.Metadata)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ges-pgx: could not iterate outbox rows: %w", err)
	}
	return entries, nil
}

// MarkProcessed transitions outboxID to PROCESSED.
func (s *OutboxStore) MarkProcessed(ctx context.Context, outboxID string, processedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE event_outbox SET status = 'PROCESSED', processed_at = $2 WHERE outbox_id = $1
	`, outboxID, processedAt)
	if err != nil {
		return fmt.Errorf("ges-pgx: could not mark outbox row processed: %w", err)
	}
	return nil
}

// MarkAttemptFailed increments the attempt count for outboxID and, once
// maxAttempts is reached, transitions it to FAILED.
func (s *OutboxStore) MarkAttemptFailed(ctx context.Context, outboxID string, maxAttempts int) (outbox.Status, error) {
	var attempts int
	var status string
	err := s.pool.QueryRow(ctx, `
		UPDATE event_outbox
		SET attempt_count = attempt_count + 1,
		    status = CASE WHEN attempt_count + 1 >= $2 THEN 'FAILED' ELSE status END,
		    claimed = false
		WHERE outbox_id = $1
		RETURNING attempt_count, status
	`, outboxID, maxAttempts).Scan(&attempts, &status)
	if err != nil {
		return "", fmt.Errorf("ges-pgx: could not mark outbox attempt failed: %w", err)
	}
	return outbox.Status(status), nil
}

// Requeue resets a FAILED row back to PENDING with its attempt count reset.
func (s *OutboxStore) Requeue(ctx context.Context, outboxID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE event_outbox SET status = 'PENDING', attempt_count = 0, processed_at = NULL, claimed = false
		WHERE outbox_id = $1 AND status = 'FAILED'
	`, outboxID)
	if err != nil {
		return fmt.Errorf("ges-pgx: could not requeue outbox row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ges-pgx: outbox row %s is not in FAILED state", outboxID)
	}
	return nil
}

var _ outbox.Store = (*OutboxStore)(nil)
