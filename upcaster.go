package ges

import (
	"fmt"
	"sort"
)

// Upcaster transforms a decoded event payload from one schema version
// forward to the next. Transform must be pure: given the same input it
// always produces the same output, and it must not mutate its argument.
type Upcaster struct {
	EventType     string
	SourceVersion int
	TargetVersion int
	Priority      int
	Transform     func(Event) (Event, error)
}

// UpcasterChain applies registered Upcasters repeatedly until no further
// upcaster matches an event's current (type, version).
//
// Upcasters are tried in descending priority, then registration order, for a
// given (type, version) pair; only the first match is applied. Register
// checks at registration time that, following that first match at each
// step, every registered source version of an event type ends at the same
// terminal version. Lower-priority upcasters for an already-matched
// (type, version) are never applied and are not part of that check.
type UpcasterChain struct {
	enabled bool
	byType  map[string][]*Upcaster
}

// NewUpcasterChain creates a chain. When enabled is false, Apply is a no-op
// that returns the event unchanged (used to honor the upcasting.enabled
// configuration knob without special-casing callers).
func NewUpcasterChain(enabled bool) *UpcasterChain {
	return &UpcasterChain{enabled: enabled, byType: make(map[string][]*Upcaster)}
}

// Register adds an upcaster to the chain and re-validates confluence for its
// event type. It panics on a confluence violation: this is a programming
// error (a bad migration registration), not a runtime condition to recover
// from.
func (c *UpcasterChain) Register(u Upcaster) {
	list := append(c.byType[u.EventType], &u)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority > list[j].Priority })
	c.byType[u.EventType] = list
	if terminal, ok := c.checkConfluence(u.EventType); !ok {
		panic(fmt.Sprintf("ges: upcaster chain for %q is not confluent: reaches versions %v from multiple paths", u.EventType, terminal))
	}
}

// checkConfluence walks, from every registered source version of eventType,
// the first-match path that Apply would take, and verifies all those walks
// end at the same terminal version.
func (c *UpcasterChain) checkConfluence(eventType string) (map[int]bool, bool) {
	list := c.byType[eventType]
	sources := make(map[int]bool)
	for _, u := range list {
		sources[u.SourceVersion] = true
	}

	terminals := make(map[int]int) // source version -> terminal version
	for src := range sources {
		v := src
		seen := map[int]bool{}
		for {
			if seen[v] {
				break // cycle guard; Apply() will also bound iterations
			}
			seen[v] = true
			next, found := c.firstMatch(eventType, v)
			if !found {
				break
			}
			v = next.TargetVersion
		}
		terminals[src] = v
	}

	distinct := make(map[int]bool)
	for _, v := range terminals {
		distinct[v] = true
	}
	return distinct, len(distinct) <= 1
}

func (c *UpcasterChain) firstMatch(eventType string, version int) (*Upcaster, bool) {
	for _, u := range c.byType[eventType] {
		if u.SourceVersion == version {
			return u, true
		}
	}
	return nil, false
}

// maxChainDepth bounds the number of upcast steps applied to a single event,
// guarding against a registration bug that forms a cycle despite passing the
// static confluence check (e.g. a transform whose TargetVersion depends on
// runtime state).
const maxChainDepth = 64

// Apply runs e, currently at schemaVersion, through the chain until no
// upcaster matches its current (type, version). It returns the upcasted
// event and the version it ended at.
func (c *UpcasterChain) Apply(eventType string, schemaVersion int, e Event) (Event, int, error) {
	if !c.enabled {
		return e, schemaVersion, nil
	}
	version := schemaVersion
	for steps := 0; steps < maxChainDepth; steps++ {
		u, found := c.firstMatch(eventType, version)
		if !found {
			return e, version, nil
		}
		next, err := u.Transform(e)
		if err != nil {
			return nil, version, &CorruptedError{EventType: eventType, SchemaVersion: version, Reason: "upcaster failed: " + err.Error()}
		}
		e = next
		version = u.TargetVersion
	}
	return nil, version, &CorruptedError{EventType: eventType, SchemaVersion: version, Reason: "upcaster chain exceeded max depth without reaching a stable version"}
}
