package ges

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widgetCreated struct{ Name string }
type widgetPainted struct{ Color string }

func (widgetCreated) EventType() string { return "widgetCreated" }
func (widgetPainted) EventType() string { return "widgetPainted" }

type widget struct {
	Base
	name  string
	color string
}

func newWidget(id string) *widget {
	w := &widget{}
	w.Init("Widget", id)
	w.Register("widgetCreated", func(e Event) { w.name = e.(widgetCreated).Name })
	w.Register("widgetPainted", func(e Event) { w.color = e.(widgetPainted).Color })
	return w
}

func (w *widget) RestoreFrom(snap Snapshot) error {
	w.SetVersion(snap.Version)
	return nil
}

func TestBase_RaiseAppliesAndEnqueues(t *testing.T) {
	w := newWidget("w-1")
	require.NoError(t, w.Raise(widgetCreated{Name: "cog"}))
	require.NoError(t, w.Raise(widgetPainted{Color: "red"}))

	assert.Equal(t, "cog", w.name)
	assert.Equal(t, "red", w.color)
	assert.Equal(t, int64(2), w.Version())

	drained := w.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, int64(2), w.Version(), "Drain does not roll back the version")
	assert.Empty(t, w.Drain(), "pending buffer is cleared after Drain")
}

func TestBase_UnhandledEventErrors(t *testing.T) {
	w := newWidget("w-1")
	err := w.Apply(struct{ X int }{X: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnhandledEvent)
	assert.Equal(t, int64(0), w.Version())
}

type widgetRenamed struct{ NewName string }

func (widgetRenamed) EventType() string { return "widgetRenamed" }

func TestBase_TolerantEventBumpsVersionOnly(t *testing.T) {
	w := newWidget("w-1")
	w.RegisterTolerant("widgetRenamed")
	require.NoError(t, w.Apply(widgetRenamed{NewName: "new"}))
	assert.Equal(t, int64(1), w.Version())
}

func TestBase_NilEventIsInvalidArgument(t *testing.T) {
	w := newWidget("w-1")
	err := w.Apply(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBase_ReentrantApplyPanics(t *testing.T) {
	w := &widget{}
	w.Init("Widget", "w-2")
	w.Register("widgetCreated", func(e Event) {
		_ = w.Apply(widgetPainted{Color: "blue"})
	})
	assert.Panics(t, func() { _ = w.Raise(widgetCreated{Name: "cog"}) })
}

func TestBase_ReplayEnforcesTypeAndVersionContiguity(t *testing.T) {
	w := newWidget("w-3")
	err := w.Replay([]ReplayEvent{
		{AggregateType: "Widget", Version: 1, Event: widgetCreated{Name: "cog"}},
		{AggregateType: "Widget", Version: 2, Event: widgetPainted{Color: "red"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), w.Version())
	assert.Equal(t, "cog", w.name)
}

func TestBase_ReplayRejectsVersionGap(t *testing.T) {
	w := newWidget("w-4")
	err := w.Replay([]ReplayEvent{
		{AggregateType: "Widget", Version: 2, Event: widgetCreated{Name: "cog"}},
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBase_ReplayRejectsAggregateTypeMismatch(t *testing.T) {
	w := newWidget("w-5")
	err := w.Replay([]ReplayEvent{
		{AggregateType: "Gadget", Version: 1, Event: widgetCreated{Name: "cog"}},
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBase_ReplayRejectsWhenPendingEventsExist(t *testing.T) {
	w := newWidget("w-6")
	require.NoError(t, w.Raise(widgetCreated{Name: "cog"}))
	err := w.Replay([]ReplayEvent{
		{AggregateType: "Widget", Version: 2, Event: widgetPainted{Color: "red"}},
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

var _ Aggregate = (*widget)(nil)
