package ges

import (
	"context"
	"iter"
)

// StreamRef identifies an aggregate's event stream. TenantID is empty for
// single-tenant stores or when tenancy.enabled is false; multitenant stores
// resolve an empty TenantID according to their tenancy.strict setting (§9).
type StreamRef struct {
	AggregateID   string
	AggregateType string
	TenantID      string
}

// AppendEvent pairs an event payload with the caller-assigned identity and
// publication intent the store needs at append time. EventID must be unique
// within a batch; the store rejects a batch containing a duplicate before
// opening a transaction. Publishable marks whether a committed envelope for
// this event must get a same-transaction outbox row (I5).
type AppendEvent struct {
	EventID     string
	Event       Event
	Publishable bool
}

// EventStore is the durable, append-only log of event envelopes. It
// enforces per-aggregate version uniqueness (I1, I3) and assigns a
// store-wide monotonic, gap-free (modulo aborted transactions) global
// sequence at commit (I2).
//
// All operations accept a context for cancellation/timeout; append's
// outcome is unknown (not failed) if the context is canceled after the
// commit may have already landed — callers must reload to verify.
type EventStore interface {
	// Append persists events[i] at version expectedVersion+i+1, atomically
	// with any outbox rows I5 requires. It returns the committed envelopes
	// in the same order as events, with GlobalSequence and CreatedAt filled
	// in by the store.
	//
	// Returns *ConcurrencyConflictError (errors.Is ErrConcurrency) if
	// expectedVersion doesn't match the stream's current version.
	// Returns *InvalidArgumentError (errors.Is ErrInvalidArgument) for an
	// empty batch or a duplicate event-id within the batch.
	Append(ctx context.Context, ref StreamRef, expectedVersion int64, events []AppendEvent, md Metadata) ([]EventEnvelope, error)

	// LoadStream returns a lazy, ascending-by-AggregateVersion sequence of
	// envelopes for ref starting strictly after fromVersion. The sequence is
	// finite and non-restartable: a consumer that needs to retry re-invokes
	// LoadStream.
	LoadStream(ctx context.Context, ref StreamRef, fromVersion int64) iter.Seq2[EventEnvelope, error]

	// LoadRange returns a lazy, ascending-by-GlobalSequence sequence of up
	// to limit envelopes committed at or before the call, starting strictly
	// after fromGlobalSequence. tenantID filters to a single tenant; an
	// empty tenantID means no tenant filter. Used by projections.
	LoadRange(ctx context.Context, tenantID string, fromGlobalSequence int64, limit int) iter.Seq2[EventEnvelope, error]

	// HighestVersion returns the current persisted version for ref, or 0 if
	// the stream has no events.
	HighestVersion(ctx context.Context, ref StreamRef) (int64, error)
}
