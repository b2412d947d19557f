// Package debug implements the stepwise execution debugger behind the manual
// computation mode: it rewrites author-placed checkpoint sentinels into guest
// calls, drives a CalcScript machine one instruction at a time, records a
// replayable history of step snapshots, and mirrors linked guest variables
// into an external reactive variable store.
package debug

import (
	"errors"
	"fmt"
)

// ErrNoCode is returned by Refresh when the source is empty or whitespace.
// The session stays (or returns to) Uninitialized; the caller may retry with
// real code.
var ErrNoCode = errors.New("no code to execute")

// ErrSteppingInProgress is returned when a stepping request arrives while a
// bounded stepping loop for a different request is still running.
var ErrSteppingInProgress = errors.New("another stepping request is in progress")

// RunawayExecutionError reports that a bounded stepping loop hit its
// iteration cap without reaching its goal. It fails only the stepping
// request: the session remains paused at its last recorded snapshot.
type RunawayExecutionError struct {
	Steps int
}

func (e *RunawayExecutionError) Error() string {
	return fmt.Sprintf("stepping stopped after %d steps without reaching the target", e.Steps)
}

// LinkageWriteError reports that the external store rejected a forwarded
// assignment. It is logged and skipped, never fatal.
type LinkageWriteError struct {
	External string
	Err      error
}

func (e *LinkageWriteError) Error() string {
	return fmt.Sprintf("cannot forward value to variable %q: %v", e.External, e.Err)
}

func (e *LinkageWriteError) Unwrap() error { return e.Err }
