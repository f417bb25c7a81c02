package ges

import (
	"fmt"
)

// Sentinel errors for the taxonomy in the engine's error-handling design.
// Use errors.Is against these; the concrete wrapper types below carry the
// kind-specific fields callers need for diagnostics and retry decisions.
var (
	// ErrConcurrency indicates the (aggregate-id, aggregate-version)
	// uniqueness constraint was violated at append time: another writer
	// committed first. Reload and retry if that's enabled.
	ErrConcurrency = fmt.Errorf("ges: concurrency conflict")

	// ErrInvalidArgument indicates the caller broke the contract: a nil
	// event, a version gap, an empty batch, a duplicate event-id within a
	// batch, or an aggregate-id/type mismatch. Never retried.
	ErrInvalidArgument = fmt.Errorf("ges: invalid argument")

	// ErrUnhandledEvent indicates no handler is registered for an event
	// type being applied, and the event isn't marked tolerant.
	ErrUnhandledEvent = fmt.Errorf("ges: unhandled event")

	// ErrUnavailable indicates a transient transport/database error that
	// was retried up to the bound and still failed.
	ErrUnavailable = fmt.Errorf("ges: unavailable")

	// ErrTimeout indicates an operation's deadline was exceeded.
	ErrTimeout = fmt.Errorf("ges: timeout")

	// ErrCorrupted indicates a decoded payload failed its structural check,
	// or the upcaster chain could not reach the current schema version.
	ErrCorrupted = fmt.Errorf("ges: corrupted event")

	// ErrSinkFailure indicates an outbox sink rejected or errored on a
	// delivery attempt.
	ErrSinkFailure = fmt.Errorf("ges: sink failure")
)

// ConcurrencyConflictError reports the expected vs. actual aggregate version
// observed at append time.
type ConcurrencyConflictError struct {
	AggregateID     string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("ges: concurrency conflict on aggregate %s: expected version %d, actual %d",
		e.AggregateID, e.ExpectedVersion, e.ActualVersion)
}

func (e *ConcurrencyConflictError) Is(target error) bool { return target == ErrConcurrency }

// InvalidArgumentError reports why a caller-supplied argument was rejected.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string { return "ges: invalid argument: " + e.Reason }

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// UnhandledEventError reports an event type with no registered handler.
type UnhandledEventError struct {
	AggregateType string
	EventType     string
}

func (e *UnhandledEventError) Error() string {
	return fmt.Sprintf("ges: no handler registered for event %q on aggregate type %q", e.EventType, e.AggregateType)
}

func (e *UnhandledEventError) Is(target error) bool { return target == ErrUnhandledEvent }

// UnavailableError wraps a transient transport/database error after the
// bounded retry budget was exhausted.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("ges: %s unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// TimeoutError reports that an operation's deadline was exceeded. For
// append, the caller must treat the outcome as unknown and re-load to
// verify rather than assume failure.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("ges: %s timed out", e.Op) }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// CorruptedError reports a payload or upcaster chain that could not produce
// a value at the expected schema version.
type CorruptedError struct {
	EventType     string
	SchemaVersion int
	Reason        string
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("ges: corrupted event %q schema v%d: %s", e.EventType, e.SchemaVersion, e.Reason)
}

func (e *CorruptedError) Is(target error) bool { return target == ErrCorrupted }

// SinkFailureError reports an outbox sink delivery failure and the current
// attempt count for that row.
type SinkFailureError struct {
	OutboxID string
	Attempt  int
	Err      error
}

func (e *SinkFailureError) Error() string {
	return fmt.Sprintf("ges: sink failure for outbox row %s (attempt %d): %v", e.OutboxID, e.Attempt, e.Err)
}

func (e *SinkFailureError) Unwrap() error { return e.Err }

func (e *SinkFailureError) Is(target error) bool { return target == ErrSinkFailure }
