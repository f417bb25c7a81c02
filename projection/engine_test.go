package projection_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ges "github.com/mkirchner/evstore"
	"github.com/mkirchner/evstore/projection"
	"github.com/mkirchner/evstore/stores/mem"
)

type counted struct{ N int }

func (counted) EventType() string { return "Counted" }

func registry() *ges.Registry {
	r := ges.NewRegistry()
	r.Register("Counted", 1, ges.JSONCodec[counted]())
	return r
}

func TestEngine_TailsAndAdvancesCheckpoint(t *testing.T) {
	ctx := context.Background()
	reg := registry()
	store := mem.New(mem.WithRegistry(reg))
	checkpoints := mem.NewCheckpointStore()

	ref := ges.StreamRef{AggregateID: "agg-1", AggregateType: "test"}
	_, err := store.Append(ctx, ref, 0, []ges.AppendEvent{
		{Event: counted{N: 1}}, {Event: counted{N: 2}}, {Event: counted{N: 3}},
	}, nil)
	require.NoError(t, err)

	proj := &countingSumProjection{registry: reg}
	cfg := projection.DefaultEngineConfig()
	cfg.PollInterval = 10 * time.Millisecond
	engine := projection.NewEngine(store, checkpoints, cfg, nil)
	engine.Register(ctx, proj)
	defer engine.Stop(proj.Name())

	require.Eventually(t, func() bool { return proj.Sum() == 6 }, time.Second, 5*time.Millisecond)

	status, err := engine.Status(ctx, proj.Name())
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.Lag)
	assert.True(t, status.Running)
}

func TestEngine_ResetTruncatesReadModelAndCheckpoint(t *testing.T) {
	ctx := context.Background()
	reg := registry()
	store := mem.New(mem.WithRegistry(reg))
	checkpoints := mem.NewCheckpointStore()

	ref := ges.StreamRef{AggregateID: "agg-2", AggregateType: "test"}
	_, err := store.Append(ctx, ref, 0, []ges.AppendEvent{{Event: counted{N: 5}}}, nil)
	require.NoError(t, err)

	proj := &countingSumProjection{registry: reg}
	cfg := projection.DefaultEngineConfig()
	cfg.PollInterval = 10 * time.Millisecond
	engine := projection.NewEngine(store, checkpoints, cfg, nil)
	engine.Register(ctx, proj)
	defer engine.Stop(proj.Name())

	require.Eventually(t, func() bool { return proj.Sum() == 5 }, time.Second, 5*time.Millisecond)

	require.NoError(t, engine.Reset(ctx, proj.Name()))
	assert.Equal(t, 0, proj.Sum())

	checkpoint, err := checkpoints.Load(ctx, proj.Name())
	require.NoError(t, err)
	assert.Equal(t, int64(0), checkpoint)
}

func TestEngine_StatusOnUnknownProjectionErrors(t *testing.T) {
	ctx := context.Background()
	store := mem.New(mem.WithRegistry(registry()))
	engine := projection.NewEngine(store, mem.NewCheckpointStore(), projection.DefaultEngineConfig(), nil)
	_, err := engine.Status(ctx, "nope")
	assert.Error(t, err)
}

// countingSumProjection decodes Counted events through a real registry and
// accumulates N, exercising the same decode path a production projection
// would use.
type countingSumProjection struct {
	registry *ges.Registry
	mu       sync.Mutex
	sum      int
}

func (p *countingSumProjection) Name() string { return "sum" }

func (p *countingSumProjection) Apply(_ context.Context, env ges.EventEnvelope) error {
	event, err := p.registry.Decode(env.EventType, env.SchemaVersion, env.Payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sum += event.(counted).N
	return nil
}

func (p *countingSumProjection) Reset(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sum = 0
	return nil
}

func (p *countingSumProjection) Sum() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sum
}
