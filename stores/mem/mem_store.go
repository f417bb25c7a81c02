// Package mem provides in-memory implementations of EventStore,
// SnapshotStore, outbox.Store, and projection.CheckpointStore, concurrency
// safe and suitable for tests and local runs. State is lost on restart.
package mem

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	ges "github.com/mkirchner/evstore"
	"github.com/mkirchner/evstore/tenancy"
)

// Store is an in-memory EventStore.
type Store struct {
	mu         sync.RWMutex
	registry   *ges.Registry
	tenancy    tenancy.Config
	byStream   map[string][]ges.EventEnvelope // key: aggregateType + "/" + aggregateID
	global     []ges.EventEnvelope
	nextGlobal int64
	outboxRows map[string]*outboxRow
}

// Option configures Store.
type Option func(*Store)

// WithRegistry sets the codec registry Append uses to encode events.
func WithRegistry(reg *ges.Registry) Option {
	return func(s *Store) { s.registry = reg }
}

// WithTenancy enables/disables tenant scoping and strictness.
func WithTenancy(cfg tenancy.Config) Option {
	return func(s *Store) { s.tenancy = cfg }
}

// New creates an empty in-memory Store.
func New(opts ...Option) *Store {
	s := &Store{
		registry: ges.NewRegistry(),
		byStream: make(map[string][]ges.EventEnvelope),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func streamKey(aggregateType, aggregateID string) string { return aggregateType + "/" + aggregateID }

// Append persists a batch of events using optimistic concurrency control,
// assigns global sequences, and mirrors the pgx store's semantics exactly
// (sharing no code, since there's no transaction to share, but honoring
// the same contract the compliance suite exercises both stores against).
func (s *Store) Append(ctx context.Context, ref ges.StreamRef, expectedVersion int64, events []ges.AppendEvent, md ges.Metadata) ([]ges.EventEnvelope, error) {
	if len(events) == 0 {
		return nil, &ges.InvalidArgumentError{Reason: "append called with an empty batch"}
	}
	seen := make(map[string]bool, len(events))
	for _, e := range events {
		if e.EventID == "" {
			continue
		}
		if seen[e.EventID] {
			return nil, &ges.InvalidArgumentError{Reason: "duplicate event-id within batch"}
		}
		seen[e.EventID] = true
	}

	tenantID, err := tenancy.Resolve(ctx, s.tenancy, ref.TenantID)
	if err != nil {
		return nil, &ges.InvalidArgumentError{Reason: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey(ref.AggregateType, ref.AggregateID)
	seq := s.byStream[key]
	currentVersion := int64(0)
	if n := len(seq); n > 0 {
		currentVersion = seq[n-1].AggregateVersion
	}
	if currentVersion != expectedVersion {
		return nil, &ges.ConcurrencyConflictError{
			AggregateID:     ref.AggregateID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   currentVersion,
		}
	}

	payloads := make([][]byte, len(events))
	eventTypes := make([]string, len(events))
	schemaVersions := make([]int, len(events))
	for i, ae := range events {
		var err error
		payloads[i], eventTypes[i], schemaVersions[i], err = s.registry.Encode(ae.Event)
		if err != nil {
			return nil, &ges.InvalidArgumentError{Reason: err.Error()}
		}
	}

	now := time.Now().UTC()
	envelopes := make([]ges.EventEnvelope, 0, len(events))
	for i, ae := range events {
		payload, eventType, schemaVersion := payloads[i], eventTypes[i], schemaVersions[i]
		eventID := ae.EventID
		if eventID == "" {
			eventID = uuid.NewString()
		}
		currentVersion++
		s.nextGlobal++

		env := ges.EventEnvelope{
			EventID:          eventID,
			AggregateID:      ref.AggregateID,
			AggregateType:    ref.AggregateType,
			AggregateVersion: currentVersion,
			GlobalSequence:   s.nextGlobal,
			EventType:        eventType,
			SchemaVersion:    schemaVersion,
			Payload:          payload,
			Metadata:         md,
			CreatedAt:        now,
			TenantID:         tenantID,
		}
		envelopes = append(envelopes, env)
		seq = append(seq, env)
		s.global = append(s.global, env)

		if ae.Publishable {
			s.outboxInsertLocked(eventID, ref.AggregateID, eventType, payload, md)
		}
	}
	s.byStream[key] = seq
	return envelopes, nil
}

// LoadStream returns a lazy sequence of envelopes for ref, ascending by
// aggregate version, starting strictly after fromVersion.
func (s *Store) LoadStream(ctx context.Context, ref ges.StreamRef, fromVersion int64) iter.Seq2[ges.EventEnvelope, error] {
	return func(yield func(ges.EventEnvelope, error) bool) {
		tenantID, err := tenancy.Resolve(ctx, s.tenancy, ref.TenantID)
		if err != nil {
			yield(ges.EventEnvelope{}, &ges.InvalidArgumentError{Reason: err.Error()})
			return
		}

		s.mu.RLock()
		seq := append([]ges.EventEnvelope(nil), s.byStream[streamKey(ref.AggregateType, ref.AggregateID)]...)
		s.mu.RUnlock()

		for _, env := range seq {
			if env.AggregateVersion <= fromVersion {
				continue
			}
			if tenantID != "" && env.TenantID != tenantID {
				continue
			}
			if !yield(env, nil) {
				return
			}
		}
	}
}

// LoadRange returns a lazy sequence of up to limit envelopes ascending by
// global sequence, starting strictly after fromGlobalSequence.
func (s *Store) LoadRange(ctx context.Context, tenantID string, fromGlobalSequence int64, limit int) iter.Seq2[ges.EventEnvelope, error] {
	return func(yield func(ges.EventEnvelope, error) bool) {
		s.mu.RLock()
		global := append([]ges.EventEnvelope(nil), s.global...)
		s.mu.RUnlock()

		count := 0
		for _, env := range global {
			if env.GlobalSequence <= fromGlobalSequence {
				continue
			}
			if tenantID != "" && env.TenantID != tenantID {
				continue
			}
			if count >= limit {
				return
			}
			count++
			if !yield(env, nil) {
				return
			}
		}
	}
}

// HighestVersion returns the current persisted version for ref, or 0.
func (s *Store) HighestVersion(ctx context.Context, ref ges.StreamRef) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq := s.byStream[streamKey(ref.AggregateType, ref.AggregateID)]
	if len(seq) == 0 {
		return 0, nil
	}
	return seq[len(seq)-1].AggregateVersion, nil
}

var _ ges.EventStore = (*Store)(nil)

// SnapshotStore is an in-memory ges.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	byID map[string]ges.Snapshot
}

// NewSnapshotStore creates an empty in-memory SnapshotStore.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{byID: make(map[string]ges.Snapshot)}
}

func (s *SnapshotStore) Save(_ context.Context, snap ges.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.CreatedAt = time.Now().UTC()
	s.byID[streamKey(snap.AggregateType, snap.AggregateID)] = snap
	return nil
}

func (s *SnapshotStore) Load(_ context.Context, aggregateID, aggregateType string) (ges.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byID[streamKey(aggregateType, aggregateID)]
	return snap, ok, nil
}

func (s *SnapshotStore) Delete(_ context.Context, aggregateID, aggregateType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, streamKey(aggregateType, aggregateID))
	return nil
}

var _ ges.SnapshotStore = (*SnapshotStore)(nil)
