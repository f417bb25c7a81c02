package ges

import (
	"encoding/json"
	"fmt"
)

// EventCodec defines how a single event payload is encoded/decoded for
// persistence. Each (event-type, schema-version) pair registers its own
// codec in a Registry.
type EventCodec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}

// JSONCodec is a generic implementation of EventCodec for JSON-based encoding.
func JSONCodec[T any]() EventCodec {
	return jsonCodec[T]{}
}

type jsonCodec[T any] struct{}

func (jsonCodec[T]) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec[T]) Decode(b []byte) (any, error) {
	var v T
	err := json.Unmarshal(b, &v)
	if err != nil {
		return nil, fmt.Errorf("ges: failed to decode json: %w", err)
	}
	return v, err
}

// wireEnvelope is the self-describing JSON shape persisted for every event
// payload: the event type and schema version travel with the payload bytes
// themselves, not only in the surrounding EventEnvelope columns, so the
// payload round-trips even if read outside the store.
type wireEnvelope struct {
	Type    string          `json:"type"`
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Registry maps (event-type, schema-version) pairs to the codec that knows
// how to encode/decode that event's domain fields, and implements the
// self-describing wire format on top of them.
type Registry struct {
	codecs map[string]map[int]EventCodec
}

// NewRegistry creates an empty codec Registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]map[int]EventCodec)}
}

// Register associates a codec with an event type and schema version. Calling
// Register twice for the same (type, version) replaces the prior codec.
func (r *Registry) Register(eventType string, schemaVersion int, codec EventCodec) {
	if r.codecs[eventType] == nil {
		r.codecs[eventType] = make(map[int]EventCodec)
	}
	r.codecs[eventType][schemaVersion] = codec
}

// codecFor looks up the codec for an (event-type, schema-version) pair.
func (r *Registry) codecFor(eventType string, schemaVersion int) (EventCodec, bool) {
	byVersion, ok := r.codecs[eventType]
	if !ok {
		return nil, false
	}
	c, ok := byVersion[schemaVersion]
	return c, ok
}

// Encode produces the self-describing wire payload for an event: its
// registered codec encodes the domain fields, which are then wrapped with
// the event's type and schema version.
func (r *Registry) Encode(e Event) (payload []byte, eventType string, schemaVersion int, err error) {
	eventType = EventType(e)
	schemaVersion = SchemaVersionOf(e)
	codec, ok := r.codecFor(eventType, schemaVersion)
	if !ok {
		return nil, "", 0, fmt.Errorf("ges: no codec registered for %s v%d", eventType, schemaVersion)
	}
	data, err := codec.Encode(e)
	if err != nil {
		return nil, "", 0, fmt.Errorf("ges: encode %s v%d: %w", eventType, schemaVersion, err)
	}
	payload, err = json.Marshal(wireEnvelope{Type: eventType, Version: schemaVersion, Data: data})
	if err != nil {
		return nil, "", 0, fmt.Errorf("ges: marshal wire envelope for %s v%d: %w", eventType, schemaVersion, err)
	}
	return payload, eventType, schemaVersion, nil
}

// Decode unwraps the self-describing payload and decodes its domain fields
// using the codec registered for the wrapper's (type, version). eventType
// and schemaVersion are the values recorded in the surrounding
// EventEnvelope columns and are checked against the wrapper for consistency;
// a mismatch is reported as ErrCorrupted rather than silently trusted.
func (r *Registry) Decode(eventType string, schemaVersion int, payload []byte) (Event, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, &CorruptedError{EventType: eventType, SchemaVersion: schemaVersion, Reason: "payload is not a valid wire envelope: " + err.Error()}
	}
	if wire.Type != eventType || wire.Version != schemaVersion {
		return nil, &CorruptedError{
			EventType:     eventType,
			SchemaVersion: schemaVersion,
			Reason:        fmt.Sprintf("wire envelope discriminators (%s v%d) disagree with stored columns", wire.Type, wire.Version),
		}
	}
	codec, ok := r.codecFor(eventType, schemaVersion)
	if !ok {
		return nil, &CorruptedError{EventType: eventType, SchemaVersion: schemaVersion, Reason: "no codec registered"}
	}
	v, err := codec.Decode(wire.Data)
	if err != nil {
		return nil, &CorruptedError{EventType: eventType, SchemaVersion: schemaVersion, Reason: err.Error()}
	}
	return v, nil
}
