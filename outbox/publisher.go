package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PublisherConfig holds the publisher loop's tunables (spec "Configuration
// knobs": outbox.batch, outbox.poll-interval, outbox.max-attempts).
type PublisherConfig struct {
	Batch        int
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	IdleBackoff  backoff.BackOff
}

// DefaultPublisherConfig returns sensible defaults.
func DefaultPublisherConfig() PublisherConfig {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return PublisherConfig{
		Batch:        100,
		Concurrency:  8,
		PollInterval: time.Second,
		MaxAttempts:  5,
		IdleBackoff:  b,
	}
}

// Metrics are the Prometheus collectors the publisher reports through.
// Registering them is the caller's responsibility (they may be shared
// across multiple Publisher instances).
type Metrics struct {
	Attempts  *prometheus.CounterVec
	Processed prometheus.Counter
	Failed    prometheus.Counter
	Backlog   prometheus.Gauge
}

// NewMetrics builds a Metrics set under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_attempts_total",
			Help:      "Outbox publish attempts by outcome.",
		}, []string{"outcome"}),
		Processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_processed_total",
			Help:      "Outbox entries that reached PROCESSED.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_failed_total",
			Help:      "Outbox entries that reached FAILED after exhausting retries.",
		}),
		Backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_backlog",
			Help:      "PENDING rows observed on the last claimed batch.",
		}),
	}
}

// Collectors returns the metrics as a slice for prometheus.Registry.MustRegister.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Attempts, m.Processed, m.Failed, m.Backlog}
}

// Publisher runs the claim-deliver-ack loop against a Store and Sink.
type Publisher struct {
	store   Store
	sink    Sink
	cfg     PublisherConfig
	log     *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPublisher creates a Publisher. log and metrics may be nil.
func NewPublisher(store Store, sink Sink, cfg PublisherConfig, log *zap.Logger, metrics *Metrics) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		store:   store,
		sink:    sink,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		tracer:  otel.Tracer("github.com/mkirchner/evstore/outbox"),
	}
}

// PublisherStatus reports whether the publisher loop is currently running.
type PublisherStatus struct {
	Running bool
}

// Status returns the publisher's current run state.
func (p *Publisher) Status() PublisherStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PublisherStatus{Running: p.running}
}

// Start launches the publisher loop in a background goroutine. It is a
// no-op if already running.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	go p.run(loopCtx)
}

// Stop signals the publisher loop to exit and waits for it to do so.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.done)
	idle := p.cfg.IdleBackoff
	if idle == nil {
		idle = backoff.NewExponentialBackOff()
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := p.tick(ctx)
		if err != nil {
			p.log.Error("outbox publisher tick failed", zap.Error(err))
			claimed = 0
		}

		if claimed > 0 {
			idle.Reset()
			continue
		}

		wait := idle.NextBackOff()
		ceiling := p.cfg.PollInterval
		if ceiling <= 0 {
			ceiling = time.Second
		}
		if wait == backoff.Stop || wait <= 0 {
			wait = ceiling
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// tick claims and delivers one batch, returning how many rows were claimed.
func (p *Publisher) tick(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "outbox.Publisher.tick")
	defer span.End()

	batch := p.cfg.Batch
	if batch <= 0 {
		batch = 100
	}
	entries, err := p.store.ClaimBatch(ctx, batch)
	if err != nil {
		return 0, err
	}
	if p.metrics != nil {
		p.metrics.Backlog.Set(float64(len(entries)))
	}

	concurrency := p.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			p.deliver(gctx, entry)
			return nil
		})
	}
	_ = g.Wait() // deliver never returns an error; failures are recorded per-entry
	return len(entries), nil
}

func (p *Publisher) deliver(ctx context.Context, entry Entry) {
	ctx, span := p.tracer.Start(ctx, "outbox.Publisher.deliver", trace.WithAttributes(
		attribute.String("outbox_id", entry.OutboxID),
		attribute.String("event_type", entry.EventType),
	))
	defer span.End()

	err := p.sink.Publish(ctx, entry)
	if err == nil {
		if mErr := p.store.MarkProcessed(ctx, entry.OutboxID, time.Now().UTC()); mErr != nil {
			p.log.Error("outbox mark processed failed", zap.String("outbox_id", entry.OutboxID), zap.Error(mErr))
			return
		}
		p.log.Info("outbox entry delivered", zap.String("outbox_id", entry.OutboxID), zap.String("event_type", entry.EventType))
		if p.metrics != nil {
			p.metrics.Attempts.WithLabelValues("success").Inc()
			p.metrics.Processed.Inc()
		}
		return
	}

	span.RecordError(err)
	maxAttempts := p.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	status, mErr := p.store.MarkAttemptFailed(ctx, entry.OutboxID, maxAttempts)
	if mErr != nil {
		p.log.Error("outbox mark attempt failed", zap.String("outbox_id", entry.OutboxID), zap.Error(mErr))
		return
	}
	if p.metrics != nil {
		p.metrics.Attempts.WithLabelValues("failure").Inc()
		if status == StatusFailed {
			p.metrics.Failed.Inc()
		}
	}
	p.log.Warn("outbox delivery attempt failed",
		zap.String("outbox_id", entry.OutboxID), zap.String("status", string(status)), zap.Error(err))
}
