package ges

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is a semantic alias of `any` that represents a domain event payload.
type Event any

// Versioned is implemented by events that carry an explicit schema version.
// Events that don't implement it are treated as schema version 1.
type Versioned interface {
	SchemaVersion() int
}

// EventType returns the canonical name for a given event.
// If the event implements `EventType() string`, that value is used.
// Otherwise, it falls back to the Go type name (e.g., "account.AccountOpened").
func EventType(e Event) string {
	if named, ok := e.(interface{ EventType() string }); ok {
		return named.EventType()
	}
	return fmt.Sprintf("%T", e)
}

// SchemaVersionOf returns the schema version an event payload was authored
// against. Events that don't implement Versioned are schema version 1.
func SchemaVersionOf(e Event) int {
	if v, ok := e.(Versioned); ok {
		return v.SchemaVersion()
	}
	return 1
}

// EventEnvelope is the unit of persistence and transport: an event payload
// plus the positional and provenance metadata assigned by the store.
//
// EventID is unique across the store. AggregateVersion is the event's
// position within its aggregate's stream (1-based, contiguous). GlobalSequence
// is the store-wide monotonic position assigned at commit and is what
// projections order by. EventType and SchemaVersion are stored alongside the
// payload, not only inside it, so a store can route/decode without first
// decoding the payload.
type EventEnvelope struct {
	EventID          string
	AggregateID      string
	AggregateType    string
	AggregateVersion int64
	GlobalSequence   int64
	EventType        string
	SchemaVersion    int
	Payload          []byte
	Metadata         Metadata
	CreatedAt        time.Time
	TenantID         string
}

// Decode decodes the envelope's payload using the given codec. The returned
// value is the raw decoded payload at the schema version it was stored at;
// callers that need the current schema should run it through an
// UpcasterChain first.
func (e EventEnvelope) Decode(codec EventCodec) (Event, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(e.Payload, &wire); err != nil {
		return nil, &CorruptedError{EventType: e.EventType, SchemaVersion: e.SchemaVersion, Reason: "payload is not a valid wire envelope: " + err.Error()}
	}
	return codec.Decode(wire.Data)
}
