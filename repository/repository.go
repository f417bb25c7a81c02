// Package repository composes the event store, snapshot store, and
// aggregate runtime into the command boundary: load-or-reconstruct, run a
// caller-supplied command, persist the batch atomically, and snapshot on
// threshold.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	ges "github.com/mkirchner/evstore"
	"github.com/mkirchner/evstore/internal/metrics"
)

// Config holds the repository's tunables (spec "Configuration knobs":
// snapshot.threshold, snapshot.cache.ttl, snapshot.cache.size, retry.max,
// retry.base-delay, upcasting.enabled).
type Config struct {
	SnapshotThreshold int
	SnapshotCacheTTL  time.Duration
	SnapshotCacheSize int
	RetryMax          int
	RetryBaseDelay    time.Duration
	UpcastingEnabled  bool
}

// DefaultConfig returns reasonable production defaults.
func DefaultConfig() Config {
	return Config{
		SnapshotThreshold: 50,
		SnapshotCacheTTL:  30 * time.Minute,
		SnapshotCacheSize: 1024,
		RetryMax:          3,
		RetryBaseDelay:    100 * time.Millisecond,
		UpcastingEnabled:  true,
	}
}

// Factory constructs a fresh, empty instance of an aggregate type, ready
// for RestoreFrom/Replay.
type Factory[A ges.Aggregate] func(aggregateID string) A

// Command mutates a loaded aggregate, typically by calling its business
// methods which in turn call Raise. A command that returns an error aborts
// the save — nothing is persisted.
type Command[A ges.Aggregate] func(agg A) error

// Repository[A] is the generic command boundary for one aggregate type.
type Repository[A ges.Aggregate] struct {
	store     ges.EventStore
	snapshots ges.SnapshotStore
	registry  *ges.Registry
	upcasters *ges.UpcasterChain
	factory   Factory[A]
	aggType   string
	cfg       Config
	log       *zap.Logger
	tracer    trace.Tracer
	cache     *lru.LRU[string, ges.Snapshot]
	metrics   *metrics.Registry
}

// New creates a Repository for aggregate type aggregateType, constructed by
// factory. log may be nil.
func New[A ges.Aggregate](
	store ges.EventStore,
	snapshots ges.SnapshotStore,
	registry *ges.Registry,
	upcasters *ges.UpcasterChain,
	aggregateType string,
	factory Factory[A],
	cfg Config,
	log *zap.Logger,
) *Repository[A] {
	if log == nil {
		log = zap.NewNop()
	}
	size := cfg.SnapshotCacheSize
	if size <= 0 {
		size = 1024
	}
	return &Repository[A]{
		store:     store,
		snapshots: snapshots,
		registry:  registry,
		upcasters: upcasters,
		factory:   factory,
		aggType:   aggregateType,
		cfg:       cfg,
		log:       log,
		tracer:    otel.Tracer("github.com/mkirchner/evstore/repository"),
		cache:     lru.NewLRU[string, ges.Snapshot](size, nil, cfg.SnapshotCacheTTL),
	}
}

// WithMetrics reports snapshot writes through reg. Call before first use.
func (r *Repository[A]) WithMetrics(reg *metrics.Registry) *Repository[A] {
	r.metrics = reg
	return r
}

// Load reconstructs an aggregate from its snapshot (if any) and the events
// committed since: snapshot cache, then snapshot store, then loadStream
// for the events after the snapshot's version (or the whole stream when
// there is no snapshot).
func (r *Repository[A]) Load(ctx context.Context, tenantID, aggregateID string) (A, error) {
	ctx, span := r.tracer.Start(ctx, "repository.Load", trace.WithAttributes(
		attribute.String("aggregate_id", aggregateID), attribute.String("aggregate_type", r.aggType),
	))
	defer span.End()

	agg := r.factory(aggregateID)
	fromVersion := int64(0)

	if snap, ok := r.loadSnapshot(ctx, aggregateID); ok {
		if err := agg.RestoreFrom(snap); err != nil {
			var zero A
			return zero, fmt.Errorf("ges: restore %s/%s from snapshot: %w", r.aggType, aggregateID, err)
		}
		fromVersion = snap.Version
	}

	ref := ges.StreamRef{AggregateID: aggregateID, AggregateType: r.aggType, TenantID: tenantID}
	var replay []ges.ReplayEvent
	for env, err := range r.store.LoadStream(ctx, ref, fromVersion) {
		if err != nil {
			var zero A
			return zero, fmt.Errorf("ges: load stream for %s/%s: %w", r.aggType, aggregateID, err)
		}
		event, err := r.decode(env)
		if err != nil {
			var zero A
			return zero, err
		}
		replay = append(replay, ges.ReplayEvent{AggregateType: env.AggregateType, Version: env.AggregateVersion, Event: event})
	}

	if err := agg.Replay(replay); err != nil {
		var zero A
		return zero, fmt.Errorf("ges: replay %s/%s: %w", r.aggType, aggregateID, err)
	}
	return agg, nil
}

func (r *Repository[A]) decode(env ges.EventEnvelope) (ges.Event, error) {
	event, err := r.registry.Decode(env.EventType, env.SchemaVersion, env.Payload)
	if err != nil {
		return nil, fmt.Errorf("ges: decode event %s v%d: %w", env.EventType, env.SchemaVersion, err)
	}
	if r.cfg.UpcastingEnabled && r.upcasters != nil {
		event, _, err = r.upcasters.Apply(env.EventType, env.SchemaVersion, event)
		if err != nil {
			return nil, fmt.Errorf("ges: upcast event %s: %w", env.EventType, err)
		}
	}
	return event, nil
}

func (r *Repository[A]) loadSnapshot(ctx context.Context, aggregateID string) (ges.Snapshot, bool) {
	if snap, ok := r.cache.Get(aggregateID); ok {
		return snap, true
	}
	snap, ok, err := r.snapshots.Load(ctx, aggregateID, r.aggType)
	if err != nil {
		r.log.Warn("snapshot load failed, falling back to full replay", zap.String("aggregate_id", aggregateID), zap.Error(err))
		return ges.Snapshot{}, false
	}
	if ok {
		r.cache.Add(aggregateID, snap)
	}
	return snap, ok
}

// Save runs cmd against a freshly loaded aggregate and persists its
// drained events atomically. On a concurrency conflict it reloads and
// re-runs cmd up to Config.RetryMax times with exponential backoff, per the
// spec's save algorithm.
func (r *Repository[A]) Save(ctx context.Context, tenantID, aggregateID string, publishable bool, cmd Command[A]) (A, error) {
	ctx, span := r.tracer.Start(ctx, "repository.Save", trace.WithAttributes(
		attribute.String("aggregate_id", aggregateID), attribute.String("aggregate_type", r.aggType),
	))
	defer span.End()

	maxRetries := r.cfg.RetryMax
	baseDelay := r.cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.InitialInterval = baseDelay
	retryBackoff.MaxElapsedTime = 0 // bounded by maxRetries, not elapsed time

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		agg, err := r.Load(ctx, tenantID, aggregateID)
		if err != nil {
			var zero A
			return zero, err
		}

		if err := cmd(agg); err != nil {
			var zero A
			return zero, err
		}

		events := agg.Drain()
		if len(events) == 0 {
			return agg, nil
		}
		expectedVersion := agg.Version() - int64(len(events))

		appendEvents := make([]ges.AppendEvent, len(events))
		for i, e := range events {
			appendEvents[i] = ges.AppendEvent{Event: e, Publishable: publishable}
		}

		ref := ges.StreamRef{AggregateID: agg.AggregateID(), AggregateType: r.aggType, TenantID: tenantID}
		_, err = r.store.Append(ctx, ref, expectedVersion, appendEvents, nil)
		if err == nil {
			r.maybeSnapshot(ctx, agg)
			return agg, nil
		}

		var conflict *ges.ConcurrencyConflictError
		if !isConcurrencyConflict(err, &conflict) || attempt == maxRetries {
			lastErr = err
			break
		}
		lastErr = err
		r.log.Info("concurrency conflict, retrying",
			zap.String("aggregate_id", aggregateID), zap.Int("attempt", attempt+1))

		delay := retryBackoff.NextBackOff()
		if delay == backoff.Stop {
			delay = baseDelay
		}
		select {
		case <-ctx.Done():
			var zero A
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	var zero A
	return zero, lastErr
}

func isConcurrencyConflict(err error, target **ges.ConcurrencyConflictError) bool {
	conflict, ok := err.(*ges.ConcurrencyConflictError)
	if ok {
		*target = conflict
	}
	return ok
}

// maybeSnapshot persists a snapshot when the aggregate's version has
// advanced past the last snapshot by at least the configured threshold.
// Snapshotting is best-effort: a failure here never fails the command that
// already committed.
func (r *Repository[A]) maybeSnapshot(ctx context.Context, agg A) {
	threshold := r.cfg.SnapshotThreshold
	if threshold <= 0 {
		threshold = 50
	}

	existing, ok, err := r.snapshots.Load(ctx, agg.AggregateID(), r.aggType)
	lastVersion := int64(0)
	if err == nil && ok {
		lastVersion = existing.Version
	}
	if agg.Version() < lastVersion+int64(threshold) {
		return
	}

	snapper, ok2 := any(agg).(Snapshotter)
	if !ok2 {
		return
	}
	payload, err := snapper.SnapshotPayload()
	if err != nil {
		r.log.Warn("snapshot payload build failed", zap.String("aggregate_id", agg.AggregateID()), zap.Error(err))
		return
	}
	snap := ges.Snapshot{
		AggregateID:   agg.AggregateID(),
		AggregateType: r.aggType,
		Version:       agg.Version(),
		Payload:       payload,
	}
	if err := r.snapshots.Save(ctx, snap); err != nil {
		r.log.Warn("snapshot save failed", zap.String("aggregate_id", agg.AggregateID()), zap.Error(err))
		return
	}
	r.cache.Add(agg.AggregateID(), snap)
	if r.metrics != nil {
		r.metrics.SnapshotWrites.Inc()
	}
}

// Snapshotter is implemented by aggregates that can serialize their state
// for snapshotting. Aggregates that don't implement it are never
// snapshotted; the repository always falls back to full replay for them.
type Snapshotter interface {
	SnapshotPayload() ([]byte, error)
}
