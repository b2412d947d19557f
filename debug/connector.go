// connector.go — the linkage tracker.
//
// The connector mirrors declared guest variables into the external store.
// It is re-initialized with the declared pairs of each checkpoint the
// session reaches, and tracked once per executed step so the store follows
// the guest value through every intermediate assignment, not only the value
// visible at the pause.
package debug

import (
	"log/slog"
	"reflect"
)

// AssignmentEvent records one observed change of a linked guest variable.
type AssignmentEvent struct {
	Local    string
	External string
	Value    any
	Step     int
}

// Connector tracks the declared variable linkage of the active checkpoint.
type Connector struct {
	store   VariableStore
	log     *slog.Logger
	linkage []Pair
	events  []AssignmentEvent
}

// NewConnector builds a connector writing to store. A nil logger is replaced
// with the default logger.
func NewConnector(store VariableStore, log *slog.Logger) *Connector {
	if log == nil {
		log = slog.Default()
	}
	return &Connector{store: store, log: log}
}

// Initialize replaces the tracked linkage and discards all recorded events.
func (c *Connector) Initialize(pairs []Pair) {
	c.linkage = append(c.linkage[:0:0], pairs...)
	c.events = nil
}

// Track reads every linked local at the given step and, for each whose value
// differs from its last recorded event, appends an AssignmentEvent and
// forwards numeric values to the store. Store rejections are logged and
// skipped; tracking never fails.
func (c *Connector) Track(a *Adapter, step int) {
	for _, p := range c.linkage {
		v, ok := c.readLocal(a, p.Local)
		if !ok {
			continue
		}
		if last, found := c.latestEvent(p.External); found && strictEqual(last.Value, v) {
			continue
		}
		c.events = append(c.events, AssignmentEvent{Local: p.Local, External: p.External, Value: v, Step: step})
		num, isNum := v.(float64)
		if !isNum {
			continue
		}
		if !c.store.HasVariable(p.External) {
			c.log.Warn("linkage target missing from store", "external", p.External, "local", p.Local)
			continue
		}
		if err := c.store.SetValue(p.External, num); err != nil {
			lwe := &LinkageWriteError{External: p.External, Err: err}
			c.log.Warn("linkage write rejected", "error", lwe)
		}
	}
}

// Events returns the assignment events recorded since the last Initialize,
// oldest first.
func (c *Connector) Events() []AssignmentEvent { return c.events }

// LatestFor returns the most recent event recorded for the external id.
func (c *Connector) LatestFor(external string) (AssignmentEvent, bool) {
	return c.latestEvent(external)
}

// Linked reports whether the external id is part of the active linkage.
func (c *Connector) Linked(external string) bool {
	for _, p := range c.linkage {
		if p.External == external {
			return true
		}
	}
	return false
}

// PairFor returns the active linkage pair targeting the external id.
func (c *Connector) PairFor(external string) (Pair, bool) {
	for _, p := range c.linkage {
		if p.External == external {
			return p, true
		}
	}
	return Pair{}, false
}

func (c *Connector) latestEvent(external string) (AssignmentEvent, bool) {
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].External == external {
			return c.events[i], true
		}
	}
	return AssignmentEvent{}, false
}

func (c *Connector) readLocal(a *Adapter, name string) (any, bool) {
	for _, f := range a.Frames() {
		if f.Scope == nil {
			continue
		}
		if v, ok := a.ReadVariable(f.Scope, name); ok {
			return v, true
		}
	}
	return nil, false
}

// strictEqual compares plain snapshot values. Scalars compare by value,
// containers structurally.
func strictEqual(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	default:
		return reflect.DeepEqual(a, b)
	}
}
