package ges

import "fmt"

// Handler mutates an aggregate's state in response to one event type.
type Handler func(Event)

// Base is an embeddable helper that implements the bookkeeping Aggregate
// requires, leaving only the domain handlers to the concrete type.
//
// Semantics:
//   - Register(type, h): wire a handler for one event type. Looked up by
//     EventType(e); unregistered types fail unless RegisterTolerant.
//   - Apply(e): dispatch by type and bump version by 1. Does NOT enqueue.
//   - Raise(e): Apply(e) + enqueue to pending (for newly produced events).
//   - Version(): current version INCLUDING pending.
//   - Drain(): returns pending and clears it.
//
// Dispatch is not reentrant: a handler that calls Apply/Raise again panics,
// since that would silently corrupt version bookkeeping.
type Base struct {
	id            string
	aggregateType string
	version       int64
	pending       []Event
	handlers      map[string]Handler
	tolerant      map[string]bool
	dispatching   bool
}

// Init sets the aggregate's identity. Call once, before any Apply/Raise.
func (b *Base) Init(aggregateType, id string) {
	b.aggregateType = aggregateType
	b.id = id
}

// AggregateID returns the aggregate's identity.
func (b *Base) AggregateID() string { return b.id }

// AggregateType returns the aggregate's type name.
func (b *Base) AggregateType() string { return b.aggregateType }

// SetAggregateID overrides the id (e.g. when the first event assigns it).
func (b *Base) SetAggregateID(id string) { b.id = id }

// SetVersion forces the current version (used when restoring from a
// snapshot). No pending events are affected.
func (b *Base) SetVersion(v int64) { b.version = v }

// Register wires a handler for one event type, keyed by EventType(e) for
// events of that Go type.
func (b *Base) Register(eventType string, h Handler) {
	if b.handlers == nil {
		b.handlers = make(map[string]Handler)
	}
	b.handlers[eventType] = h
}

// RegisterTolerant marks an event type as applicable with no handler: Apply
// still bumps the version but otherwise ignores the event. Use for events a
// reader doesn't need to act on but must still account for in its version
// counter (e.g. events introduced by a newer aggregate version).
func (b *Base) RegisterTolerant(eventType string) {
	if b.tolerant == nil {
		b.tolerant = make(map[string]bool)
	}
	b.tolerant[eventType] = true
}

// Apply dispatches a single event by type and advances the version by 1.
func (b *Base) Apply(e Event) error {
	if e == nil {
		return &InvalidArgumentError{Reason: "nil event"}
	}
	if b.dispatching {
		panic("ges: re-entrant Apply/Raise from within a handler is forbidden")
	}
	t := EventType(e)
	h, ok := b.handlers[t]
	if !ok {
		if b.tolerant[t] {
			b.version++
			return nil
		}
		return &UnhandledEventError{AggregateType: b.aggregateType, EventType: t}
	}
	b.dispatching = true
	h(e)
	b.dispatching = false
	b.version++
	return nil
}

// Raise records a new domain event: Apply(e), then enqueue it into the
// pending buffer. Call Drain to obtain and clear pending events for
// persistence.
func (b *Base) Raise(e Event) error {
	if err := b.Apply(e); err != nil {
		return err
	}
	b.pending = append(b.pending, e)
	return nil
}

// Replay applies previously committed events in order, verifying aggregate
// type and contiguous versioning as it goes. It must be called on an
// aggregate with no pending events.
func (b *Base) Replay(events []ReplayEvent) error {
	if len(b.pending) != 0 {
		return &InvalidArgumentError{Reason: "Replay called with uncommitted pending events"}
	}
	for _, re := range events {
		if re.AggregateType != b.aggregateType {
			return &InvalidArgumentError{Reason: fmt.Sprintf("replay aggregate-type mismatch: have %q, event has %q", b.aggregateType, re.AggregateType)}
		}
		if re.Version != b.version+1 {
			return &InvalidArgumentError{Reason: fmt.Sprintf("replay version gap: expected %d, got %d", b.version+1, re.Version)}
		}
		if err := b.Apply(re.Event); err != nil {
			return err
		}
	}
	b.pending = nil
	return nil
}

// Drain returns all uncommitted events and clears the pending buffer.
func (b *Base) Drain() []Event {
	events := b.pending
	b.pending = nil
	return events
}

// Version returns the current aggregate version, including pending events.
func (b *Base) Version() int64 { return b.version }
