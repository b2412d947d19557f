// store.go — collaborator interfaces and the in-memory store used by tests
// and the CLI.
package debug

import (
	"fmt"
	"sort"
)

// VariableStore is the external reactive variable store. The debugger only
// reads it when a session starts (to seed guest globals) and writes it from
// the linkage tracker when linked guest values change. Values other than
// numbers (e.g. sets) may be present in GetAllVariables; the debugger ignores
// them.
type VariableStore interface {
	GetAllVariables() map[string]any
	SetValue(id string, value float64) error
	HasVariable(id string) bool
}

// Highlighter is the code-highlighting collaborator. Highlight is invoked
// after every snapshot change — forward, backward, or replay — with the new
// snapshot's source range (byte offsets, end exclusive).
type Highlighter interface {
	Highlight(source string, start, end int)
}

// HighlighterFunc adapts a function to the Highlighter interface.
type HighlighterFunc func(source string, start, end int)

func (f HighlighterFunc) Highlight(source string, start, end int) { f(source, start, end) }

// MemoryStore is a plain map-backed VariableStore. SetValue rejects unknown
// identifiers, mirroring a real store that only accepts writes to declared
// variables.
type MemoryStore struct {
	vars map[string]any
}

// NewMemoryStore builds a store holding the given numeric variables.
func NewMemoryStore(vars map[string]float64) *MemoryStore {
	s := &MemoryStore{vars: make(map[string]any, len(vars))}
	for k, v := range vars {
		s.vars[k] = v
	}
	return s
}

func (s *MemoryStore) GetAllVariables() map[string]any {
	out := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

func (s *MemoryStore) SetValue(id string, value float64) error {
	if _, ok := s.vars[id]; !ok {
		return fmt.Errorf("unknown variable %q", id)
	}
	s.vars[id] = value
	return nil
}

func (s *MemoryStore) HasVariable(id string) bool {
	_, ok := s.vars[id]
	return ok
}

// Value returns the current numeric value of id, if it is numeric.
func (s *MemoryStore) Value(id string) (float64, bool) {
	v, ok := s.vars[id].(float64)
	return v, ok
}

// Names returns the store's variable identifiers in sorted order.
func (s *MemoryStore) Names() []string {
	names := make([]string, 0, len(s.vars))
	for k := range s.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
