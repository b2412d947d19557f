// session.go — the execution controller.
//
// A Session owns one debugging run end to end: the rewritten source, the
// adapter, the linkage connector, the snapshot history and the cursor over
// it. Execution is single-threaded and caller-driven; "pausing" simply means
// the session stops calling Step. Backward movement never touches the
// interpreter: it replays recorded snapshots.
package debug

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionState is the controller's lifecycle state.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StatePaused
	StateRunning
	StateComplete
	StateErrored
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePaused:
		return "paused"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

type steppingMode int

const (
	modeIdle steppingMode = iota
	modeToCheckpoint
	modeToOccurrence
)

// DefaultMaxSteps bounds every automatic stepping loop.
const DefaultMaxSteps = 100000

// Session drives one debugging run. Not safe for concurrent use; the
// controller is the sole driver of the guest program.
type Session struct {
	id        string
	log       *slog.Logger
	store     VariableStore
	highlight Highlighter
	maxSteps  int

	adapter  *Adapter
	conn     *Connector
	history  History
	cursor   int
	state    SessionState
	mode     steppingMode
	lastErr  error
	declared []string

	// stepCount is the cumulative number of machine steps executed since
	// the last refresh.
	stepCount int
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithHighlighter installs the collaborator notified on every snapshot
// change.
func WithHighlighter(h Highlighter) Option { return func(s *Session) { s.highlight = h } }

// WithLogger replaces the session's logger.
func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.log = l } }

// WithMaxSteps overrides the automatic stepping iteration cap.
func WithMaxSteps(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxSteps = n
		}
	}
}

// NewSession builds an uninitialized session bound to the external store.
func NewSession(store VariableStore, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		log:      slog.Default(),
		store:    store,
		maxSteps: DefaultMaxSteps,
		state:    StateUninitialized,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("session", s.id)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the controller state.
func (s *Session) State() SessionState { return s.state }

// IsComplete reports whether the program has run out of instructions.
func (s *Session) IsComplete() bool { return s.state == StateComplete }

// LastError returns the error that moved the session to Errored, if any.
func (s *Session) LastError() error { return s.lastErr }

// History returns the recorded snapshots, oldest first.
func (s *Session) History() []Snapshot { return s.history.All() }

// Cursor returns the index of the currently displayed snapshot.
func (s *Session) Cursor() int { return s.cursor }

// Current returns the currently displayed snapshot.
func (s *Session) Current() (Snapshot, bool) { return s.history.At(s.cursor) }

// Source returns the rewritten source under execution, empty before the
// first successful refresh.
func (s *Session) Source() string {
	if s.adapter == nil {
		return ""
	}
	return s.adapter.Source()
}

// Connector exposes the linkage tracker for inspection.
func (s *Session) Connector() *Connector { return s.conn }

// Refresh discards any previous run and starts a new one: rewrites
// checkpoint sentinels, parses the result, seeds guest globals from the
// store's numeric variables, records snapshot zero and pauses. Empty source
// returns ErrNoCode and leaves the session Uninitialized; parse failures do
// the same with the parse error.
func (s *Session) Refresh(source string) error {
	if s.mode != modeIdle {
		return ErrSteppingInProgress
	}
	s.teardown()
	if strings.TrimSpace(source) == "" {
		s.lastErr = ErrNoCode
		return ErrNoCode
	}
	rewritten := RewriteCheckpoints(source)
	vars := make(map[string]float64)
	for id, v := range s.store.GetAllVariables() {
		if n, ok := v.(float64); ok {
			vars[id] = n
		}
	}
	adapter, err := NewAdapter(rewritten, vars)
	if err != nil {
		s.lastErr = err
		s.log.Error("refresh failed", "error", err)
		return err
	}
	s.adapter = adapter
	s.declared = adapter.DeclaredNames()
	s.conn = NewConnector(s.store, s.log)
	if pairs := FirstCheckpointPairs(adapter.AST()); len(pairs) > 0 {
		s.conn.Initialize(pairs)
	}
	s.history.Append(s.capture(nil))
	s.cursor = 0
	s.state = StatePaused
	s.log.Info("session refreshed", "declared", len(s.declared))
	s.notifyHighlight()
	return nil
}

// StepForward advances the displayed state by one step. When the cursor is
// behind the history head this is pure replay; otherwise one guest
// instruction executes and a new snapshot is recorded.
func (s *Session) StepForward() error {
	if s.mode != modeIdle {
		return ErrSteppingInProgress
	}
	return s.stepForward()
}

func (s *Session) stepForward() error {
	switch s.state {
	case StateUninitialized, StateComplete, StateErrored:
		return nil
	}
	if s.cursor < s.history.Len()-1 {
		s.cursor++
		s.notifyHighlight()
		return nil
	}
	return s.advance()
}

// StepBackward moves the cursor one snapshot back. The interpreter is never
// touched; recorded snapshots are immutable.
func (s *Session) StepBackward() error {
	if s.mode != modeIdle {
		return ErrSteppingInProgress
	}
	if s.state == StateUninitialized || s.cursor == 0 {
		return nil
	}
	s.cursor--
	s.notifyHighlight()
	return nil
}

// StepToCheckpoint advances execution until the next checkpoint call is
// pending, first stepping past a checkpoint the session is currently paused
// on. Every intermediate instruction still records a snapshot, so backward
// stepping through the skipped region stays possible. The loop is bounded:
// exceeding the cap fails with RunawayExecutionError and leaves the session
// paused at its last snapshot.
func (s *Session) StepToCheckpoint() error {
	if s.mode != modeIdle {
		return ErrSteppingInProgress
	}
	s.mode = modeToCheckpoint
	defer func() { s.mode = modeIdle }()
	return s.stepToCheckpoint(s.maxSteps)
}

func (s *Session) stepToCheckpoint(budget int) error {
	switch s.state {
	case StateUninitialized, StateComplete, StateErrored:
		return nil
	}
	// Automatic stepping always resumes from the execution head, never from
	// a browsed-back cursor position.
	if s.cursor < s.history.Len()-1 {
		s.cursor = s.history.Len() - 1
		s.notifyHighlight()
	}
	s.state = StateRunning
	defer func() {
		if s.state == StateRunning {
			s.state = StatePaused
		}
	}()
	steps := 0
	for AtCheckpoint(s.adapter) && s.state == StateRunning {
		if steps >= budget {
			return &RunawayExecutionError{Steps: steps}
		}
		if err := s.advance(); err != nil {
			return err
		}
		steps++
	}
	for s.state == StateRunning && !AtCheckpoint(s.adapter) {
		if steps >= budget {
			return &RunawayExecutionError{Steps: steps}
		}
		if err := s.advance(); err != nil {
			return err
		}
		steps++
	}
	return nil
}

// StepToOccurrence advances checkpoint to checkpoint until the linked value
// for externalID equals the requested occurrence index (by the declared
// index-local when present, otherwise the latest tracked assignment), or the
// program completes. Bounded by the same runaway policy as StepToCheckpoint.
func (s *Session) StepToOccurrence(externalID string, occurrence int) error {
	if s.mode != modeIdle {
		return ErrSteppingInProgress
	}
	s.mode = modeToOccurrence
	defer func() { s.mode = modeIdle }()
	switch s.state {
	case StateUninitialized, StateComplete, StateErrored:
		return nil
	}
	want := float64(occurrence)
	budget := s.maxSteps
	for {
		before := s.stepCount
		if err := s.stepToCheckpoint(budget); err != nil {
			return err
		}
		budget -= s.stepCount - before
		if s.state != StatePaused || !AtCheckpoint(s.adapter) {
			return nil
		}
		if got, ok := s.occurrenceValue(externalID); ok && got == want {
			return nil
		}
		if budget <= 0 {
			return &RunawayExecutionError{Steps: s.maxSteps}
		}
	}
}

// occurrenceValue resolves the value that identifies the current checkpoint
// pass for externalID.
func (s *Session) occurrenceValue(externalID string) (float64, bool) {
	if p, ok := s.conn.PairFor(externalID); ok && p.IndexLocal != "" {
		if snap, ok := s.history.Last(); ok {
			if v, ok := snap.CheckpointVariables[p.IndexLocal].(float64); ok {
				return v, true
			}
		}
	}
	if ev, ok := s.conn.LatestFor(externalID); ok {
		if v, ok := ev.Value.(float64); ok {
			return v, true
		}
	}
	return 0, false
}

// advance executes exactly one guest instruction, tracks linkage, records a
// snapshot and moves the cursor to it. Guest failures move the session to
// Errored with all history preserved.
func (s *Session) advance() error {
	more, err := s.adapter.Step()
	s.stepCount++
	if err != nil {
		s.state = StateErrored
		s.lastErr = err
		s.log.Error("guest execution failed", "step", s.stepCount, "error", err)
		return err
	}
	var pairs []Pair
	if p, at := CheckpointPairs(s.adapter); at {
		pairs = p
		if len(p) > 0 {
			s.conn.Initialize(p)
		}
	}
	s.conn.Track(s.adapter, s.stepCount)
	s.cursor = s.history.Append(s.capture(pairs))
	if !more {
		s.state = StateComplete
		s.log.Info("program complete", "steps", s.stepCount)
	}
	s.notifyHighlight()
	return nil
}

// capture builds the snapshot for the current pending state. pairs is
// non-nil exactly when the pending instruction is a checkpoint call.
func (s *Session) capture(pairs []Pair) Snapshot {
	start, end := s.adapter.CurrentSpan()
	snap := Snapshot{
		Step:           s.stepCount,
		HighlightStart: start,
		HighlightEnd:   end,
		Variables:      ExtractVariables(s.adapter, s.declared),
		StackTrace:     s.adapter.StackTrace(),
		Timestamp:      time.Now(),
	}
	if pairs != nil {
		snap.CheckpointVariables = make(map[string]any, len(pairs))
		names := make([]string, 0, 2*len(pairs))
		for _, p := range pairs {
			names = append(names, p.Local)
			if p.IndexLocal != "" {
				names = append(names, p.IndexLocal)
			}
		}
		for name, v := range ExtractVariables(s.adapter, names) {
			snap.CheckpointVariables[name] = v
		}
	}
	return snap
}

func (s *Session) notifyHighlight() {
	if s.highlight == nil {
		return
	}
	if snap, ok := s.history.At(s.cursor); ok {
		s.highlight.Highlight(s.adapter.Source(), snap.HighlightStart, snap.HighlightEnd)
	}
}

func (s *Session) teardown() {
	s.adapter = nil
	s.conn = nil
	s.history.Reset()
	s.cursor = 0
	s.state = StateUninitialized
	s.lastErr = nil
	s.declared = nil
	s.stepCount = 0
}
