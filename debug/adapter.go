// adapter.go — the interpreter adapter.
//
// The adapter owns the single live CalcScript machine of an execution
// session. It seeds guest globals from the external store's numeric values,
// injects the reserved checkpoint native (which records its declared pairs on
// the adapter and nothing else — suspension is the session's job), and is the
// sole boundary converting interpreter-internal values into plain Go values
// for snapshots.
package debug

import (
	"fmt"
	"strings"

	"github.com/calcfold/calcscript"
)

// Adapter wraps one machine bound to one source program.
type Adapter struct {
	src     string
	machine *calcscript.Machine

	// pairs recorded by the checkpoint native on its most recent invocation
	lastPairs []Pair
}

// NewAdapter parses source, registers the checkpoint native, and seeds the
// guest globals with the store's numeric variables. It fails on empty or
// unparsable source.
func NewAdapter(source string, vars map[string]float64) (*Adapter, error) {
	if strings.TrimSpace(source) == "" {
		return nil, ErrNoCode
	}
	m, err := calcscript.NewMachine(source)
	if err != nil {
		return nil, err
	}
	a := &Adapter{src: source, machine: m}
	m.RegisterNative(CheckpointFuncName, a.checkpointNative)
	for id, v := range vars {
		m.Global().Define(id, calcscript.Num(v))
	}
	return a, nil
}

// checkpointNative records the declared pairs for later retrieval. It must
// not block or suspend: the session pauses by not stepping, never from
// inside guest execution.
func (a *Adapter) checkpointNative(args []calcscript.Value) (calcscript.Value, error) {
	a.lastPairs = nil
	if len(args) == 0 {
		return calcscript.Null, nil
	}
	if args[0].Tag != calcscript.VTArray {
		return calcscript.Value{}, fmt.Errorf("expects a list of [local, external] pairs")
	}
	for _, el := range args[0].Data.(*calcscript.ArrayObject).Elems {
		if el.Tag != calcscript.VTArray {
			continue
		}
		pair := el.Data.(*calcscript.ArrayObject).Elems
		strAt := func(i int) string {
			if i < len(pair) && pair[i].Tag == calcscript.VTStr {
				return pair[i].Data.(string)
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
		a.lastPairs = append(a.lastPairs, p)
	}
	return calcscript.Null, nil
}

// Source returns the (rewritten) source text under execution.
func (a *Adapter) Source() string { return a.src }

// AST returns the parsed program, used for static checkpoint inspection.
func (a *Adapter) AST() calcscript.S { return a.machine.AST() }

// Step executes exactly one instruction-tree node and reports whether
// further steps remain. Guest failures surface as *calcscript.RuntimeError.
func (a *Adapter) Step() (bool, error) { return a.machine.Step() }

// Done reports whether the program has run out of instructions.
func (a *Adapter) Done() bool { return a.machine.Done() }

// CurrentFrame returns the innermost live frame: the node about to execute.
func (a *Adapter) CurrentFrame() (calcscript.Frame, bool) { return a.machine.CurrentFrame() }

// Frames returns all live frames, innermost first.
func (a *Adapter) Frames() []calcscript.Frame { return a.machine.Frames() }

// Global returns the guest program's global environment.
func (a *Adapter) Global() *calcscript.Env { return a.machine.Global() }

// LastCheckpointPairs returns the pairs recorded by the most recent
// checkpoint invocation, if any.
func (a *Adapter) LastCheckpointPairs() []Pair { return a.lastPairs }

// CurrentSpan returns the byte range of the pending instruction.
func (a *Adapter) CurrentSpan() (start, end int) {
	sp := a.machine.CurrentSpan()
	return sp.Start, sp.End
}

// ReadVariable resolves name against the given scope's lexical chain and
// converts the result to a plain value.
func (a *Adapter) ReadVariable(scope *calcscript.Env, name string) (any, bool) {
	if scope == nil {
		return nil, false
	}
	v, ok := scope.Get(name)
	if !ok {
		return nil, false
	}
	return a.ToNative(v), true
}

// ToNative converts an interpreter value into the session's plain value
// space: float64, string, bool, nil, []any and map[string]any. Functions are
// rendered as their debug string. Arrays and objects have reference
// semantics, so a container may reach itself; a revisited container converts
// to the "<cycle>" placeholder instead of recursing. No other component may
// touch interpreter-internal representations.
func (a *Adapter) ToNative(v calcscript.Value) any {
	return a.toNative(v, make(map[any]bool))
}

func (a *Adapter) toNative(v calcscript.Value, seen map[any]bool) any {
	switch v.Tag {
	case calcscript.VTNull:
		return nil
	case calcscript.VTBool:
		return v.Data.(bool)
	case calcscript.VTNum:
		return v.Data.(float64)
	case calcscript.VTStr:
		return v.Data.(string)
	case calcscript.VTArray:
		ao := v.Data.(*calcscript.ArrayObject)
		if seen[ao] {
			return "<cycle>"
		}
		seen[ao] = true
		out := make([]any, len(ao.Elems))
		for i, e := range ao.Elems {
			out[i] = a.toNative(e, seen)
		}
		delete(seen, ao)
		return out
	case calcscript.VTMap:
		mo := v.Data.(*calcscript.MapObject)
		if seen[mo] {
			return "<cycle>"
		}
		seen[mo] = true
		out := make(map[string]any, len(mo.Keys))
		for _, k := range mo.Keys {
			out[k] = a.toNative(mo.Entries[k], seen)
		}
		delete(seen, mo)
		return out
	default:
		return v.String()
	}
}

// StackTrace renders the live call stack as human-readable frame
// descriptors, innermost first. Only function-body frames and the program
// root are listed.
func (a *Adapter) StackTrace() []string {
	var out []string
	frames := a.machine.Frames()
	for _, f := range frames {
		if f.FunctionName != "" {
			out = append(out, a.frameDescriptor(f.FunctionName, f))
		}
	}
	if len(frames) > 0 {
		out = append(out, a.frameDescriptor("(program)", frames[len(frames)-1]))
	}
	return out
}

func (a *Adapter) frameDescriptor(name string, f calcscript.Frame) string {
	if sp, ok := a.machine.SpanOf(f.Path); ok && !sp.IsZero() {
		line, _ := calcscript.PosAt(a.src, sp.Start)
		return fmt.Sprintf("%s at line %d", name, line)
	}
	return name
}

// DeclaredNames returns every variable name the program declares (let
// bindings, function declarations, parameters), in first-appearance order.
// The session uses it for the generic per-step variable display.
func (a *Adapter) DeclaredNames() []string {
	var names []string
	seen := map[string]bool{}
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	var walk func(n calcscript.S)
	walk = func(n calcscript.S) {
		switch calcscript.Tag(n) {
		case "let", "fundecl":
			add(n[1].(calcscript.S)[1].(string))
		case "params":
			for i := 1; i < len(n); i++ {
				add(n[i].(calcscript.S)[1].(string))
			}
		}
		for i := 1; i < len(n); i++ {
			if child, ok := n[i].(calcscript.S); ok {
				walk(child)
			}
		}
	}
	walk(a.machine.AST())
	return names
}
