package ges

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widgetV1 struct{ Name string }
type widgetV2 struct {
	Name  string
	Color string
}
type widgetV3 struct {
	Name  string
	Color string
	Size  int
}

func TestUpcasterChain_AppliesInSequence(t *testing.T) {
	c := NewUpcasterChain(true)
	c.Register(Upcaster{
		EventType: "Widget", SourceVersion: 1, TargetVersion: 2,
		Transform: func(e Event) (Event, error) {
			v1 := e.(widgetV1)
			return widgetV2{Name: v1.Name, Color: "black"}, nil
		},
	})
	c.Register(Upcaster{
		EventType: "Widget", SourceVersion: 2, TargetVersion: 3,
		Transform: func(e Event) (Event, error) {
			v2 := e.(widgetV2)
			return widgetV3{Name: v2.Name, Color: v2.Color, Size: 1}, nil
		},
	})

	out, version, err := c.Apply("Widget", 1, widgetV1{Name: "cog"})
	require.NoError(t, err)
	assert.Equal(t, 3, version)
	assert.Equal(t, widgetV3{Name: "cog", Color: "black", Size: 1}, out)
}

func TestUpcasterChain_Disabled(t *testing.T) {
	c := NewUpcasterChain(false)
	c.Register(Upcaster{
		EventType: "Widget", SourceVersion: 1, TargetVersion: 2,
		Transform: func(e Event) (Event, error) { return widgetV2{}, nil },
	})

	out, version, err := c.Apply("Widget", 1, widgetV1{Name: "cog"})
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, widgetV1{Name: "cog"}, out)
}

func TestUpcasterChain_NoMatchingUpcasterReturnsUnchanged(t *testing.T) {
	c := NewUpcasterChain(true)
	out, version, err := c.Apply("Widget", 5, widgetV1{Name: "cog"})
	require.NoError(t, err)
	assert.Equal(t, 5, version)
	assert.Equal(t, widgetV1{Name: "cog"}, out)
}

func TestUpcasterChain_NonConfluentRegistrationPanics(t *testing.T) {
	c := NewUpcasterChain(true)
	c.Register(Upcaster{
		EventType: "Gadget", SourceVersion: 1, TargetVersion: 2,
		Transform: func(e Event) (Event, error) { return widgetV2{}, nil },
	})

	// A chain starting at source version 3 that terminates at version 4
	// leaves the type with two distinct terminal versions (2 and 4) across
	// its entry points, which Register must reject.
	assert.Panics(t, func() {
		c.Register(Upcaster{
			EventType: "Gadget", SourceVersion: 3, TargetVersion: 4,
			Transform: func(e Event) (Event, error) { return widgetV3{}, nil },
		})
	})
}

func TestUpcasterChain_TransformErrorSurfacesAsCorrupted(t *testing.T) {
	c := NewUpcasterChain(true)
	c.Register(Upcaster{
		EventType: "Widget", SourceVersion: 1, TargetVersion: 2,
		Transform: func(e Event) (Event, error) { return nil, assertErr },
	})

	_, _, err := c.Apply("Widget", 1, widgetV1{Name: "cog"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupted)
}

var assertErr = &InvalidArgumentError{Reason: "boom"}
