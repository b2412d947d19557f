// history.go — the append-only step history.
package debug

import "time"

// Snapshot is one recorded pause point: enough state to redisplay the moment
// without re-running the guest program. Values are plain Go values produced
// by the adapter; nothing in a snapshot references live interpreter state.
type Snapshot struct {
	// Step is the cumulative machine step count at capture time.
	Step int

	// HighlightStart and HighlightEnd delimit the pending instruction's
	// source bytes (end exclusive).
	HighlightStart int
	HighlightEnd   int

	// Variables holds the current value of every declared program variable
	// visible from the pause point.
	Variables map[string]any

	// CheckpointVariables holds the values declared by the checkpoint this
	// snapshot paused at, keyed by local name. Nil when the snapshot is not
	// a checkpoint pause.
	CheckpointVariables map[string]any

	// StackTrace lists the live frames, innermost first.
	StackTrace []string

	Timestamp time.Time
}

// AtCheckpoint reports whether this snapshot was captured at a checkpoint.
func (s Snapshot) AtCheckpoint() bool { return s.CheckpointVariables != nil }

// History is the append-only log of snapshots taken by a session since its
// last refresh. Recorded snapshots are never mutated or removed; backward
// movement is a cursor change over this log.
type History struct {
	snaps []Snapshot
}

// Append records a snapshot and returns its index.
func (h *History) Append(s Snapshot) int {
	h.snaps = append(h.snaps, s)
	return len(h.snaps) - 1
}

// Len returns the number of recorded snapshots.
func (h *History) Len() int { return len(h.snaps) }

// At returns the snapshot at index i.
func (h *History) At(i int) (Snapshot, bool) {
	if i < 0 || i >= len(h.snaps) {
		return Snapshot{}, false
	}
	return h.snaps[i], true
}

// Last returns the most recent snapshot.
func (h *History) Last() (Snapshot, bool) {
	return h.At(len(h.snaps) - 1)
}

// Reset discards all snapshots.
func (h *History) Reset() { h.snaps = nil }

// All returns the recorded snapshots, oldest first. The returned slice is
// shared; callers must not modify it.
func (h *History) All() []Snapshot { return h.snaps }
