// detect.go — the checkpoint detector.
//
// Stepping granularity is a single AST node, so "about to call checkpoint"
// can be observed at more than one position: the expression statement
// wrapping the call, the call node itself, and every mid-evaluation state
// after the callee (or its literal arguments) started resolving but before
// the call executed. The detector is a pure inspection of the live frame
// stack and is safe to call on every step.
package debug

import (
	"github.com/calcfold/calcscript"
)

// expression tags the detector may walk through while a checkpoint call's
// callee or arguments are mid-evaluation.
var exprTags = map[string]bool{
	"id": true, "num": true, "str": true, "bool": true, "null": true,
	"array": true, "map": true, "pair": true,
	"binop": true, "logic": true, "unop": true,
	"idx": true, "get": true, "funexpr": true, "call": true,
}

// AtCheckpoint reports whether the adapter's pending instruction is an
// unexecuted call to the reserved checkpoint function.
func AtCheckpoint(a *Adapter) bool {
	return findPendingCheckpointCall(a) != nil
}

// CheckpointPairs returns the variable pairs declared by the pending
// checkpoint call, read syntactically from its literal argument list. Nil
// when not at a checkpoint; empty for a bare checkpoint().
func CheckpointPairs(a *Adapter) ([]Pair, bool) {
	call := findPendingCheckpointCall(a)
	if call == nil {
		return nil, false
	}
	return parseCallPairs(call), true
}

// findPendingCheckpointCall walks the live frames innermost-out. A frame
// whose node is the checkpoint call means the call is pending (the frame
// would have been popped had it executed). Walking may pass through
// expression frames (the call's arguments in flight) but never through a
// statement boundary.
func findPendingCheckpointCall(a *Adapter) calcscript.S {
	for _, f := range a.Frames() {
		tag := calcscript.Tag(f.Node)
		switch {
		case isCheckpointCall(f.Node):
			return f.Node
		case tag == "exprstmt":
			if child, ok := f.Node[1].(calcscript.S); ok && isCheckpointCall(child) {
				return child
			}
			return nil
		case exprTags[tag]:
			continue
		default:
			return nil
		}
	}
	return nil
}

func isCheckpointCall(n calcscript.S) bool {
	if calcscript.Tag(n) != "call" || len(n) < 2 {
		return false
	}
	callee, ok := n[1].(calcscript.S)
	return ok && calcscript.Tag(callee) == "id" && callee[1].(string) == CheckpointFuncName
}

// parseCallPairs reads ("call", callee, ("array", ("array", ("str",local),
// ("str",external) [, ("str",index)])...)) without executing anything.
func parseCallPairs(call calcscript.S) []Pair {
	if len(call) < 3 {
		return []Pair{}
	}
	arg, ok := call[2].(calcscript.S)
	if !ok || calcscript.Tag(arg) != "array" {
		return []Pair{}
	}
	var pairs []Pair
	for i := 1; i < len(arg); i++ {
		el, ok := arg[i].(calcscript.S)
		if !ok || calcscript.Tag(el) != "array" {
			continue
		}
		strAt := func(idx int) string {
			if idx+1 < len(el) {
				if leaf, ok := el[idx+1].(calcscript.S); ok && calcscript.Tag(leaf) == "str" {
					return leaf[1].(string)
				}
			}
			return ""
		}
		p := Pair{Local: strAt(0), External: strAt(1), IndexLocal: strAt(2)}
		if p.Local == "" {
			continue
		}
		if p.External == "" {
			p.External = p.Local
		}
		pairs = append(pairs, p)
	}
	if pairs == nil {
		pairs = []Pair{}
	}
	return pairs
}

// FirstCheckpointPairs scans the whole program for the first checkpoint call
// and returns its declared pairs. Sessions use it to seed the linkage map at
// refresh so per-step tracking starts before the first pause.
func FirstCheckpointPairs(root calcscript.S) []Pair {
	var found []Pair
	var walk func(n calcscript.S) bool
	walk = func(n calcscript.S) bool {
		if isCheckpointCall(n) {
			found = parseCallPairs(n)
			return true
		}
		for i := 1; i < len(n); i++ {
			if child, ok := n[i].(calcscript.S); ok && walk(child) {
				return true
			}
		}
		return false
	}
	walk(root)
	return found
}
