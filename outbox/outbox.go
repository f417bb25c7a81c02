// Package outbox implements the transactional-outbox delivery loop: a
// publisher that ships PENDING rows (written in the same transaction as the
// events they accompany) to a caller-supplied sink, at-least-once.
package outbox

import (
	"context"
	"time"
)

// Status is an OutboxEntry's delivery state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED"
)

// Entry is a staged event awaiting delivery to a sink.
type Entry struct {
	OutboxID     string
	AggregateID  string
	EventType    string
	Payload      []byte
	Metadata     map[string]any
	Status       Status
	AttemptCount int
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// Store is the persistence side of the outbox: claiming a batch of PENDING
// rows and recording the outcome of a delivery attempt. The store, not the
// publisher, is responsible for the SKIP-LOCKED-equivalent mutual exclusion
// that lets multiple publisher instances run without double-delivering.
type Store interface {
	// ClaimBatch returns up to limit PENDING rows, ordered by
	// (created_at, outbox_id), marking them claimed so a concurrent
	// publisher instance does not also claim them.
	ClaimBatch(ctx context.Context, limit int) ([]Entry, error)

	// MarkProcessed transitions outboxID to PROCESSED.
	MarkProcessed(ctx context.Context, outboxID string, processedAt time.Time) error

	// MarkAttemptFailed increments the attempt count for outboxID and, if
	// attemptCount has reached maxAttempts, transitions it to FAILED.
	// Returns the resulting status.
	MarkAttemptFailed(ctx context.Context, outboxID string, maxAttempts int) (Status, error)

	// Requeue resets a FAILED row back to PENDING with attempt-count reset,
	// the operator-facing unstick path for rows that hit the retry ceiling.
	Requeue(ctx context.Context, outboxID string) error
}

// Sink delivers a single outbox entry to a downstream consumer. Sinks must
// be idempotent on Entry.OutboxID (or the contained event-id), since
// delivery is at-least-once.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}
