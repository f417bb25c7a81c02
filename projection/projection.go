// Package projection implements the read-model-building side of the
// engine: an Engine tails the event store in global-sequence order and
// dispatches envelopes to registered Projections, persisting each
// Projection's checkpoint monotonically (I6).
package projection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	ges "github.com/mkirchner/evstore"
	"github.com/mkirchner/evstore/internal/metrics"
)

// Projection consumes envelopes in global-sequence order and applies them
// to a read model. Apply must be idempotent at the envelope level: the
// engine guarantees at-least-once delivery, so a restart after a crash
// mid-batch may redeliver the last few envelopes of the prior run.
type Projection interface {
	// Name uniquely identifies the projection; it is the checkpoint key.
	Name() string

	// Apply handles one envelope. When EngineConfig carries both a Registry
	// and Upcasters, the envelope has already been upcast; otherwise it
	// arrives at the schema version it was stored at.
	Apply(ctx context.Context, env ges.EventEnvelope) error

	// Reset truncates the projection's read model, for use alongside
	// Engine.Reset.
	Reset(ctx context.Context) error
}

// CheckpointStore persists the high-water mark each projection has
// durably processed.
type CheckpointStore interface {
	Load(ctx context.Context, name string) (int64, error)
	Advance(ctx context.Context, name string, globalSequence int64) error
	Reset(ctx context.Context, name string) error
}

// EngineConfig holds the projection loop's tunables (spec "Configuration
// knobs": projection.batch, projection.poll-interval).
type EngineConfig struct {
	Batch        int
	PollInterval time.Duration
	TenantID     string
	Registry     *ges.Registry
	Upcasters    *ges.UpcasterChain
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{Batch: 100, PollInterval: time.Second}
}

// Status reports a projection's run state and replication lag.
type Status struct {
	Name       string
	Checkpoint int64
	Lag        int64
	Running    bool
}

// Engine drives zero or more registered Projections against an EventStore.
type Engine struct {
	store      ges.EventStore
	checkpoint CheckpointStore
	cfg        EngineConfig
	log        *zap.Logger
	tracer     trace.Tracer
	metrics    *metrics.Registry

	mu          sync.Mutex
	projections map[string]Projection
	cancel      map[string]context.CancelFunc
	done        map[string]chan struct{}
	running     map[string]bool
}

// NewEngine creates a projection Engine.
func NewEngine(store ges.EventStore, checkpoints CheckpointStore, cfg EngineConfig, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:       store,
		checkpoint:  checkpoints,
		cfg:         cfg,
		log:         log,
		tracer:      otel.Tracer("github.com/mkirchner/evstore/projection"),
		projections: make(map[string]Projection),
		cancel:      make(map[string]context.CancelFunc),
		done:        make(map[string]chan struct{}),
		running:     make(map[string]bool),
	}
}

// WithMetrics reports per-projection lag through reg. Call before Register.
func (e *Engine) WithMetrics(reg *metrics.Registry) *Engine {
	e.metrics = reg
	return e
}

// Register adds p to the engine and starts its tailing loop in a
// background goroutine.
func (e *Engine) Register(ctx context.Context, p Projection) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := p.Name()
	e.projections[name] = p
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel[name] = cancel
	done := make(chan struct{})
	e.done[name] = done
	e.running[name] = true

	go e.run(loopCtx, p, done)
}

// Reset sets a registered projection's checkpoint to 0 and truncates its
// read model; subsequent ticks rebuild it from scratch.
func (e *Engine) Reset(ctx context.Context, name string) error {
	e.mu.Lock()
	p, ok := e.projections[name]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("ges: no projection registered with name %q", name)
	}
	if err := p.Reset(ctx); err != nil {
		return fmt.Errorf("ges: reset read model for %q: %w", name, err)
	}
	return e.checkpoint.Reset(ctx, name)
}

// Status reports the current checkpoint and lag for a registered
// projection.
func (e *Engine) Status(ctx context.Context, name string) (Status, error) {
	e.mu.Lock()
	_, ok := e.projections[name]
	running := e.running[name]
	e.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("ges: no projection registered with name %q", name)
	}

	checkpoint, err := e.checkpoint.Load(ctx, name)
	if err != nil {
		return Status{}, err
	}
	highest, err := e.highestGlobalSequence(ctx)
	if err != nil {
		return Status{}, err
	}
	lag := highest - checkpoint
	if e.metrics != nil {
		e.metrics.ProjectionLag.WithLabelValues(name).Set(float64(lag))
	}
	return Status{Name: name, Checkpoint: checkpoint, Lag: lag, Running: running}, nil
}

// Stop halts a registered projection's tailing loop and waits for it to
// exit.
func (e *Engine) Stop(name string) {
	e.mu.Lock()
	cancel, ok := e.cancel[name]
	done := e.done[name]
	e.mu.Unlock()
	if !ok {
		return
	}
	cancel()
	<-done
	e.mu.Lock()
	e.running[name] = false
	e.mu.Unlock()
}

func (e *Engine) highestGlobalSequence(ctx context.Context) (int64, error) {
	var highest int64
	for env, err := range e.store.LoadRange(ctx, e.cfg.TenantID, 0, 1<<30) {
		if err != nil {
			return 0, err
		}
		highest = env.GlobalSequence
	}
	return highest, nil
}

func (e *Engine) run(ctx context.Context, p Projection, done chan struct{}) {
	defer close(done)
	name := p.Name()
	batch := e.cfg.Batch
	if batch <= 0 {
		batch = 100
	}
	poll := e.cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := e.tick(ctx, p, batch)
		if err != nil {
			e.log.Error("projection tick failed", zap.String("projection", name), zap.Error(err))
		}
		if n < batch {
			select {
			case <-ctx.Done():
				return
			case <-time.After(poll):
			}
		}
	}
}

// tick advances p by up to batch envelopes and returns how many were
// applied.
func (e *Engine) tick(ctx context.Context, p Projection, batch int) (int, error) {
	name := p.Name()
	ctx, span := e.tracer.Start(ctx, "projection.Engine.tick", trace.WithAttributes(
		attribute.String("projection", name),
	))
	defer span.End()

	checkpoint, err := e.checkpoint.Load(ctx, name)
	if err != nil {
		return 0, err
	}

	applied := 0
	for env, err := range e.store.LoadRange(ctx, e.cfg.TenantID, checkpoint, batch) {
		if err != nil {
			return applied, fmt.Errorf("ges: projection %q load range: %w", name, err)
		}

		upcastEnv, err := e.upcastEnvelope(env)
		if err != nil {
			return applied, fmt.Errorf("ges: projection %q upcast at sequence %d: %w", name, env.GlobalSequence, err)
		}

		if err := p.Apply(ctx, upcastEnv); err != nil {
			return applied, fmt.Errorf("ges: projection %q apply at sequence %d: %w", name, env.GlobalSequence, err)
		}
		if err := e.checkpoint.Advance(ctx, name, env.GlobalSequence); err != nil {
			return applied, fmt.Errorf("ges: projection %q advance checkpoint: %w", name, err)
		}
		checkpoint = env.GlobalSequence
		applied++
	}
	return applied, nil
}

// upcastEnvelope runs env's payload through the configured upcaster chain
// and re-encodes it at the resulting schema version, so a Projection's
// Apply always sees the version its own Registry understands — the same
// contract the write path gives a Repository on Load. Without a Registry
// to decode/re-encode the payload, env is passed through unchanged.
func (e *Engine) upcastEnvelope(env ges.EventEnvelope) (ges.EventEnvelope, error) {
	if e.cfg.Upcasters == nil || e.cfg.Registry == nil {
		return env, nil
	}
	event, err := e.cfg.Registry.Decode(env.EventType, env.SchemaVersion, env.Payload)
	if err != nil {
		return env, err
	}
	lifted, version, err := e.cfg.Upcasters.Apply(env.EventType, env.SchemaVersion, event)
	if err != nil {
		return env, err
	}
	if version == env.SchemaVersion {
		return env, nil
	}
	payload, eventType, schemaVersion, err := e.cfg.Registry.Encode(lifted)
	if err != nil {
		return env, err
	}
	env.EventType = eventType
	env.SchemaVersion = schemaVersion
	env.Payload = payload
	return env, nil
}
