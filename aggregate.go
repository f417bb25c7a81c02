package ges

// ReplayEvent is the minimal view of a previously committed event that
// Aggregate.Replay needs: its provenance (for the type/version checks) and
// the already-decoded-and-upcasted payload. Decoding and upcasting are the
// repository's job (it owns the Registry and UpcasterChain); the aggregate
// runtime only dispatches.
type ReplayEvent struct {
	AggregateType string
	Version       int64
	Event         Event
}

// Aggregate is the consistency boundary and unit of optimistic concurrency.
// A concrete aggregate type embeds Base (or implements this directly) and
// exposes business methods that call Raise to record new events.
type Aggregate interface {
	// AggregateID returns the aggregate's identity.
	AggregateID() string

	// AggregateType returns the aggregate's type name, checked against each
	// ReplayEvent's AggregateType on Replay.
	AggregateType() string

	// Apply dispatches a single event to its registered handler and bumps
	// the in-memory version. It does not enqueue the event for persistence;
	// use Raise for that. Returns *UnhandledEventError if no handler is
	// registered and the event isn't tolerant, or *InvalidArgumentError for
	// a nil event.
	Apply(e Event) error

	// Replay applies previously committed events in order, checking that
	// each one's AggregateType matches and that versions are contiguous
	// starting from the aggregate's current version. It must only be
	// called on an aggregate with no pending (uncommitted) events, and
	// clears the pending buffer (a no-op if it was already empty) on
	// completion.
	Replay(events []ReplayEvent) error

	// Drain returns the uncommitted events recorded since construction or
	// the last Drain, and clears the pending buffer.
	Drain() []Event

	// RestoreFrom rehydrates state from a snapshot payload and sets the
	// in-memory version to the snapshot's version. It must be called before
	// Replay, on a freshly constructed aggregate.
	RestoreFrom(snap Snapshot) error

	// Version returns the current version, including any pending
	// (undrained) events.
	Version() int64
}
