// machine.go — the CalcScript stepping machine.
//
// Unlike a recursive tree-walking evaluator, the machine keeps an explicit
// stack of frames, one per AST node currently being evaluated, and makes
// progress only when the host calls Step(). Each Step() performs exactly one
// node visit: it either descends into a child node (pushing a frame) or
// completes the top node (popping its frame and delivering the result to the
// parent). Nothing ever runs between Step() calls, which is what lets the
// debugger suspend execution anywhere, inspect the live stack, and decide
// when to continue.
//
// Frame lifecycle per node kind is tracked by a small phase counter; the
// exec* methods document the phase meanings inline. Function bodies are
// marked (isBody) so 'return' can unwind to them; loop frames are marked
// (isLoop) so 'break'/'continue' can unwind without crossing a function
// boundary.
package calcscript

import (
	"fmt"
	"math"
)

// Frame is a read-only view of one live evaluation frame, innermost-first in
// Frames(). Scope may be shared between adjacent frames and may be nil for
// frames that introduce no bindings of their own.
type Frame struct {
	Node         S
	Path         NodePath
	FunctionName string // non-empty only for function-body frames
	Scope        *Env
}

type frame struct {
	node  S
	path  NodePath
	env   *Env
	phase int
	vals  []Value // completed child results collected so far
	val   Value   // result delivered by the most recently completed child

	callee Value // resolved callee for call frames

	entered bool // block frames: child scope created

	isBody   bool // function body: target of 'return'
	funName  string
	returned bool

	isLoop bool // target of 'break'/'continue'
	broke  bool
	cont   bool
}

// Machine executes one parsed CalcScript program, one node visit per Step().
type Machine struct {
	src    string
	ast    S
	spans  *SpanIndex
	core   *Env // natives; read-only to guest code by convention
	global *Env // guest program globals
	stack  []*frame
	done   bool
	failed bool
}

// NewMachine parses src and prepares a machine positioned before the first
// instruction. The numeric core natives (abs, sqrt, len, ...) are registered;
// hosts add their own via RegisterNative before stepping.
func NewMachine(src string) (*Machine, error) {
	ast, spans, err := ParseWithSpans(src)
	if err != nil {
		return nil, WrapErrorWithSource(err, src)
	}
	m := &Machine{src: src, ast: ast, spans: spans}
	m.core = NewEnv(nil)
	m.global = NewEnv(m.core)
	registerCoreNatives(m)
	m.stack = []*frame{{node: ast, path: nil, env: m.global}}
	return m, nil
}

// Source returns the exact source text the machine was built from.
func (m *Machine) Source() string { return m.src }

// AST returns the parsed program.
func (m *Machine) AST() S { return m.ast }

// Global returns the guest program's global environment. Hosts may Define
// bindings here before (or between) steps.
func (m *Machine) Global() *Env { return m.global }

// Done reports whether the program has run out of instructions or failed.
func (m *Machine) Done() bool { return m.done || m.failed }

// RegisterNative exposes a host function to guest code under the given name.
func (m *Machine) RegisterNative(name string, fn NativeFn) {
	m.core.Define(name, NativeVal(&Native{Name: name, Fn: fn}))
}

// SpanOf resolves a node path to its source byte range.
func (m *Machine) SpanOf(path NodePath) (Span, bool) { return m.spans.Get(path) }

// CurrentFrame returns a view of the innermost live frame — the node the next
// Step() will visit. ok is false once execution has finished.
func (m *Machine) CurrentFrame() (Frame, bool) {
	if len(m.stack) == 0 {
		return Frame{}, false
	}
	return m.frameView(m.stack[len(m.stack)-1]), true
}

// Frames returns views of all live frames, innermost first.
func (m *Machine) Frames() []Frame {
	out := make([]Frame, 0, len(m.stack))
	for i := len(m.stack) - 1; i >= 0; i-- {
		out = append(out, m.frameView(m.stack[i]))
	}
	return out
}

func (m *Machine) frameView(f *frame) Frame {
	return Frame{Node: f.node, Path: f.path, FunctionName: f.funName, Scope: f.env}
}

// CurrentSpan returns the source range of the pending instruction: the
// innermost frame with a concrete span. Zero when execution has finished.
func (m *Machine) CurrentSpan() Span {
	for i := len(m.stack) - 1; i >= 0; i-- {
		if sp, ok := m.spans.Get(m.stack[i].path); ok && !sp.IsZero() {
			return sp
		}
	}
	return Span{}
}

// Step performs exactly one node visit. It returns whether further steps
// remain. A non-nil error is a guest execution failure (*RuntimeError); the
// machine is dead afterwards and all subsequent calls return (false, nil).
func (m *Machine) Step() (bool, error) {
	if m.done || m.failed {
		return false, nil
	}
	f := m.stack[len(m.stack)-1]
	if err := m.exec(f); err != nil {
		m.failed = true
		return false, err
	}
	if len(m.stack) == 0 {
		m.done = true
		return false, nil
	}
	return true, nil
}

// ───────────────────────── frame plumbing ─────────────────────────

func (m *Machine) pushNode(node S, path NodePath, env *Env) {
	m.stack = append(m.stack, &frame{node: node, path: path, env: env})
}

// pushChild pushes the frame for parent's child at childIdx (0-based over
// S[1:], matching NodePath addressing).
func (m *Machine) pushChild(parent *frame, childIdx int) {
	m.pushNode(parent.node[childIdx+1].(S), parent.path.Child(childIdx), parent.env)
}

// complete pops the top frame and delivers v to the new top.
func (m *Machine) complete(v Value) {
	m.stack = m.stack[:len(m.stack)-1]
	if len(m.stack) > 0 {
		m.stack[len(m.stack)-1].val = v
	}
}

func (m *Machine) errAtf(f *frame, format string, args ...interface{}) error {
	sp, _ := m.spans.Get(f.path)
	line, col := PosAt(m.src, sp.Start)
	return &RuntimeError{Msg: fmt.Sprintf(format, args...), Span: sp, Line: line, Col: col}
}

// ───────────────────────── node execution ─────────────────────────

func (m *Machine) exec(f *frame) error {
	switch Tag(f.node) {
	case "program", "block":
		return m.execSequence(f)
	case "noop":
		m.complete(Null)
	case "num":
		m.complete(Num(f.node[1].(float64)))
	case "str":
		m.complete(Str(f.node[1].(string)))
	case "bool":
		m.complete(Bool(f.node[1].(bool)))
	case "null":
		m.complete(Null)
	case "id":
		name := f.node[1].(string)
		v, ok := f.env.Get(name)
		if !ok {
			return m.errAtf(f, "undefined variable: %s", name)
		}
		m.complete(v)
	case "let":
		return m.execLet(f)
	case "exprstmt":
		if f.phase == 0 {
			f.phase = 1
			m.pushChild(f, 0)
			return nil
		}
		m.complete(f.val)
	case "assign":
		return m.execAssign(f)
	case "binop":
		return m.execBinop(f)
	case "logic":
		return m.execLogic(f)
	case "unop":
		return m.execUnop(f)
	case "array":
		return m.execArray(f)
	case "map":
		return m.execMap(f)
	case "idx":
		return m.execIndex(f)
	case "get":
		return m.execGet(f)
	case "call":
		return m.execCall(f)
	case "fundecl":
		return m.execFunDecl(f)
	case "funexpr":
		m.complete(FunVal(m.buildFun(f, "", 0, 1)))
	case "return":
		return m.execReturn(f)
	case "break":
		return m.unwindLoop(f, true)
	case "continue":
		return m.unwindLoop(f, false)
	case "if":
		return m.execIf(f)
	case "while":
		return m.execWhile(f)
	case "for":
		return m.execFor(f)
	default:
		return m.errAtf(f, "internal: unknown node tag %q", Tag(f.node))
	}
	return nil
}

// execSequence runs program and block nodes: one statement per visit. Block
// frames open a child scope on first entry; function-body blocks additionally
// honor the returned flag set by unwinding 'return'.
func (m *Machine) execSequence(f *frame) error {
	if f.returned {
		m.complete(f.val)
		return nil
	}
	if Tag(f.node) == "block" && !f.entered {
		f.entered = true
		f.env = NewEnv(f.env)
	}
	if f.phase < len(f.node)-1 {
		idx := f.phase
		f.phase++
		m.pushChild(f, idx)
		return nil
	}
	m.complete(Null)
	return nil
}

func (m *Machine) execLet(f *frame) error {
	// phase 0: evaluate initializer; phase 1: bind.
	if f.phase == 0 {
		f.phase = 1
		m.pushChild(f, 1)
		return nil
	}
	name := f.node[1].(S)[1].(string)
	f.env.Define(name, f.val)
	m.complete(Null)
	return nil
}

func (m *Machine) execAssign(f *frame) error {
	target := f.node[1].(S)
	switch Tag(target) {
	case "id":
		// phase 0: evaluate value; phase 1: store.
		if f.phase == 0 {
			f.phase = 1
			m.pushChild(f, 1)
			return nil
		}
		if err := f.env.Set(target[1].(string), f.val); err != nil {
			return m.errAtf(f, "%v", err)
		}
		m.complete(f.val)
	case "idx":
		// phases: 0 object, 1 index, 2 value, 3 store.
		switch f.phase {
		case 0:
			f.phase = 1
			m.pushNode(target[1].(S), f.path.Child(0).Child(0), f.env)
		case 1:
			f.vals = append(f.vals, f.val)
			f.phase = 2
			m.pushNode(target[2].(S), f.path.Child(0).Child(1), f.env)
		case 2:
			f.vals = append(f.vals, f.val)
			f.phase = 3
			m.pushChild(f, 1)
		case 3:
			if err := m.storeIndexed(f, f.vals[0], f.vals[1], f.val); err != nil {
				return err
			}
			m.complete(f.val)
		}
	case "get":
		// phases: 0 object, 1 value, 2 store.
		switch f.phase {
		case 0:
			f.phase = 1
			m.pushNode(target[1].(S), f.path.Child(0).Child(0), f.env)
		case 1:
			f.vals = append(f.vals, f.val)
			f.phase = 2
			m.pushChild(f, 1)
		case 2:
			obj := f.vals[0]
			if obj.Tag != VTMap {
				return m.errAtf(f, "cannot set property on %s value", tagName(obj.Tag))
			}
			key := target[2].(S)[1].(string)
			obj.Data.(*MapObject).Set(key, f.val)
			m.complete(f.val)
		}
	default:
		return m.errAtf(f, "internal: invalid assignment target %q", Tag(target))
	}
	return nil
}

func (m *Machine) storeIndexed(f *frame, obj, idx, v Value) error {
	switch obj.Tag {
	case VTArray:
		if idx.Tag != VTNum {
			return m.errAtf(f, "array index must be a number")
		}
		a := obj.Data.(*ArrayObject)
		i := int(idx.Data.(float64))
		if i < 0 || i >= len(a.Elems) {
			return m.errAtf(f, "array index %d out of range (len %d)", i, len(a.Elems))
		}
		a.Elems[i] = v
	case VTMap:
		if idx.Tag != VTStr {
			return m.errAtf(f, "object key must be a string")
		}
		obj.Data.(*MapObject).Set(idx.Data.(string), v)
	default:
		return m.errAtf(f, "cannot index %s value", tagName(obj.Tag))
	}
	return nil
}

func (m *Machine) execBinop(f *frame) error {
	switch f.phase {
	case 0:
		f.phase = 1
		m.pushChild(f, 1)
	case 1:
		f.vals = append(f.vals, f.val)
		f.phase = 2
		m.pushChild(f, 2)
	case 2:
		res, err := m.applyBinop(f, f.node[1].(string), f.vals[0], f.val)
		if err != nil {
			return err
		}
		m.complete(res)
	}
	return nil
}

func (m *Machine) applyBinop(f *frame, op string, l, r Value) (Value, error) {
	switch op {
	case "+":
		if l.Tag == VTNum && r.Tag == VTNum {
			return Num(l.Data.(float64) + r.Data.(float64)), nil
		}
		if l.Tag == VTStr || r.Tag == VTStr {
			return Str(displayString(l) + displayString(r)), nil
		}
		return Value{}, m.errAtf(f, "unsupported operand types for '+'")
	case "-", "*", "/", "%":
		if l.Tag != VTNum || r.Tag != VTNum {
			return Value{}, m.errAtf(f, "unsupported operand types for %q", op)
		}
		a, b := l.Data.(float64), r.Data.(float64)
		switch op {
		case "-":
			return Num(a - b), nil
		case "*":
			return Num(a * b), nil
		case "/":
			if b == 0 {
				return Value{}, m.errAtf(f, "division by zero")
			}
			return Num(a / b), nil
		default:
			if b == 0 {
				return Value{}, m.errAtf(f, "modulo by zero")
			}
			return Num(math.Mod(a, b)), nil
		}
	case "<", "<=", ">", ">=":
		var cmp int
		switch {
		case l.Tag == VTNum && r.Tag == VTNum:
			a, b := l.Data.(float64), r.Data.(float64)
			switch {
			case a < b:
				cmp = -1
			case a > b:
				cmp = 1
			}
		case l.Tag == VTStr && r.Tag == VTStr:
			a, b := l.Data.(string), r.Data.(string)
			switch {
			case a < b:
				cmp = -1
			case a > b:
				cmp = 1
			}
		default:
			return Value{}, m.errAtf(f, "unsupported operand types for %q", op)
		}
		switch op {
		case "<":
			return Bool(cmp < 0), nil
		case "<=":
			return Bool(cmp <= 0), nil
		case ">":
			return Bool(cmp > 0), nil
		default:
			return Bool(cmp >= 0), nil
		}
	case "==":
		return Bool(valueEquals(l, r)), nil
	case "!=":
		return Bool(!valueEquals(l, r)), nil
	default:
		return Value{}, m.errAtf(f, "internal: unknown operator %q", op)
	}
}

func (m *Machine) execLogic(f *frame) error {
	op := f.node[1].(string)
	switch f.phase {
	case 0:
		f.phase = 1
		m.pushChild(f, 1)
	case 1:
		l := f.val
		if (op == "&&" && !l.Truthy()) || (op == "||" && l.Truthy()) {
			m.complete(l)
			return nil
		}
		f.phase = 2
		m.pushChild(f, 2)
	case 2:
		m.complete(f.val)
	}
	return nil
}

func (m *Machine) execUnop(f *frame) error {
	if f.phase == 0 {
		f.phase = 1
		m.pushChild(f, 1)
		return nil
	}
	switch f.node[1].(string) {
	case "-":
		if f.val.Tag != VTNum {
			return m.errAtf(f, "unary '-' expects a number")
		}
		m.complete(Num(-f.val.Data.(float64)))
	case "!":
		m.complete(Bool(!f.val.Truthy()))
	}
	return nil
}

func (m *Machine) execArray(f *frame) error {
	n := len(f.node) - 1
	if f.phase > 0 {
		f.vals = append(f.vals, f.val)
	}
	if f.phase < n {
		idx := f.phase
		f.phase++
		m.pushChild(f, idx)
		return nil
	}
	m.complete(Arr(f.vals))
	return nil
}

func (m *Machine) execMap(f *frame) error {
	n := len(f.node) - 1
	if f.phase > 0 {
		f.vals = append(f.vals, f.val)
	}
	if f.phase < n {
		k := f.phase
		f.phase++
		pair := f.node[k+1].(S)
		m.pushNode(pair[2].(S), f.path.Child(k).Child(1), f.env)
		return nil
	}
	mo := NewMapObject()
	for k := 0; k < n; k++ {
		key := f.node[k+1].(S)[1].(S)[1].(string)
		mo.Set(key, f.vals[k])
	}
	m.complete(MapVal(mo))
	return nil
}

func (m *Machine) execIndex(f *frame) error {
	switch f.phase {
	case 0:
		f.phase = 1
		m.pushChild(f, 0)
	case 1:
		f.vals = append(f.vals, f.val)
		f.phase = 2
		m.pushChild(f, 1)
	case 2:
		obj, idx := f.vals[0], f.val
		switch obj.Tag {
		case VTArray:
			if idx.Tag != VTNum {
				return m.errAtf(f, "array index must be a number")
			}
			a := obj.Data.(*ArrayObject)
			i := int(idx.Data.(float64))
			if i < 0 || i >= len(a.Elems) {
				return m.errAtf(f, "array index %d out of range (len %d)", i, len(a.Elems))
			}
			m.complete(a.Elems[i])
		case VTMap:
			if idx.Tag != VTStr {
				return m.errAtf(f, "object key must be a string")
			}
			v, ok := obj.Data.(*MapObject).Get(idx.Data.(string))
			if !ok {
				v = Null
			}
			m.complete(v)
		default:
			return m.errAtf(f, "cannot index %s value", tagName(obj.Tag))
		}
	}
	return nil
}

func (m *Machine) execGet(f *frame) error {
	if f.phase == 0 {
		f.phase = 1
		m.pushChild(f, 0)
		return nil
	}
	obj := f.val
	key := f.node[2].(S)[1].(string)
	if obj.Tag != VTMap {
		return m.errAtf(f, "cannot read property %q of %s value", key, tagName(obj.Tag))
	}
	v, ok := obj.Data.(*MapObject).Get(key)
	if !ok {
		v = Null
	}
	m.complete(v)
	return nil
}

// execCall phases: 0 evaluates the callee; 1..nargs evaluate arguments; at
// nargs+1 the call is performed (natives complete in that same visit, guest
// functions push their body frame); nargs+2 delivers the body's result.
func (m *Machine) execCall(f *frame) error {
	nargs := len(f.node) - 2
	switch {
	case f.phase == 0:
		f.phase = 1
		m.pushChild(f, 0)
	case f.phase <= nargs:
		if f.phase == 1 {
			f.callee = f.val
		} else {
			f.vals = append(f.vals, f.val)
		}
		idx := f.phase
		f.phase++
		m.pushChild(f, idx)
	case f.phase == nargs+1:
		if nargs == 0 {
			f.callee = f.val
		} else {
			f.vals = append(f.vals, f.val)
		}
		f.phase = nargs + 2
		return m.invoke(f)
	default:
		m.complete(f.val)
	}
	return nil
}

func (m *Machine) invoke(f *frame) error {
	switch f.callee.Tag {
	case VTNative:
		n := f.callee.Data.(*Native)
		res, err := n.Fn(f.vals)
		if err != nil {
			return m.errAtf(f, "%s: %v", n.Name, err)
		}
		m.complete(res)
		return nil
	case VTFun:
		fn := f.callee.Data.(*Fun)
		callEnv := NewEnv(fn.Env)
		for i, p := range fn.Params {
			if i < len(f.vals) {
				callEnv.Define(p, f.vals[i])
			} else {
				callEnv.Define(p, Null)
			}
		}
		name := fn.Name
		if name == "" {
			name = "(anonymous)"
		}
		m.stack = append(m.stack, &frame{
			node:    fn.Body,
			path:    fn.BodyPath,
			env:     callEnv,
			isBody:  true,
			funName: name,
		})
		return nil
	default:
		return m.errAtf(f, "value of type %s is not callable", tagName(f.callee.Tag))
	}
}

func (m *Machine) execFunDecl(f *frame) error {
	name := f.node[1].(S)[1].(string)
	fn := m.buildFun(f, name, 1, 2)
	f.env.Define(name, FunVal(fn))
	m.complete(Null)
	return nil
}

// buildFun assembles a Fun from a fundecl/funexpr frame. paramsIdx/bodyIdx
// are the child indexes of the ("params"...) and ("block"...) nodes.
func (m *Machine) buildFun(f *frame, name string, paramsIdx, bodyIdx int) *Fun {
	paramsNode := f.node[paramsIdx+1].(S)
	params := make([]string, 0, len(paramsNode)-1)
	for i := 1; i < len(paramsNode); i++ {
		params = append(params, paramsNode[i].(S)[1].(string))
	}
	return &Fun{
		Name:     name,
		Params:   params,
		Node:     f.node,
		Body:     f.node[bodyIdx+1].(S),
		BodyPath: f.path.Child(bodyIdx),
		Env:      f.env,
	}
}

func (m *Machine) execReturn(f *frame) error {
	if len(f.node) > 1 && f.phase == 0 {
		f.phase = 1
		m.pushChild(f, 0)
		return nil
	}
	v := Null
	if len(f.node) > 1 {
		v = f.val
	}
	// Unwind to the nearest function-body frame.
	for j := len(m.stack) - 1; j >= 0; j-- {
		if m.stack[j].isBody {
			m.stack = m.stack[:j+1]
			m.stack[j].returned = true
			m.stack[j].val = v
			return nil
		}
	}
	return m.errAtf(f, "'return' outside function")
}

// unwindLoop handles break (brk=true) and continue. It refuses to cross a
// function boundary.
func (m *Machine) unwindLoop(f *frame, brk bool) error {
	word := "continue"
	if brk {
		word = "break"
	}
	for j := len(m.stack) - 1; j >= 0; j-- {
		if m.stack[j].isBody {
			break
		}
		if m.stack[j].isLoop {
			m.stack = m.stack[:j+1]
			if brk {
				m.stack[j].broke = true
			} else {
				m.stack[j].cont = true
			}
			return nil
		}
	}
	return m.errAtf(f, "%q outside loop", word)
}

func (m *Machine) execIf(f *frame) error {
	switch f.phase {
	case 0:
		f.phase = 1
		m.pushChild(f, 0)
	case 1:
		if f.val.Truthy() {
			f.phase = 2
			m.pushChild(f, 1)
			return nil
		}
		if len(f.node) > 3 {
			f.phase = 2
			m.pushChild(f, 2)
			return nil
		}
		m.complete(Null)
	default:
		m.complete(Null)
	}
	return nil
}

// execWhile phases: 0 first entry (push cond), 1 condition completed,
// 2 body completed (re-evaluate cond).
func (m *Machine) execWhile(f *frame) error {
	if f.broke {
		f.broke = false
		m.complete(Null)
		return nil
	}
	f.cont = false // continue just re-evaluates the condition
	switch f.phase {
	case 0:
		f.isLoop = true
		f.phase = 1
		m.pushChild(f, 0)
	case 1:
		if !f.val.Truthy() {
			m.complete(Null)
			return nil
		}
		f.phase = 2
		m.pushChild(f, 1)
	default:
		f.phase = 1
		m.pushChild(f, 0)
	}
	return nil
}

// execFor phases: 0 first entry (open loop scope, push init), 1 init or post
// completed (push cond, or body when the condition is empty), 2 condition
// completed, 3 body completed or continue (push post).
func (m *Machine) execFor(f *frame) error {
	if f.broke {
		f.broke = false
		m.complete(Null)
		return nil
	}
	switch f.phase {
	case 0:
		f.isLoop = true
		f.env = NewEnv(f.env) // loop scope for the initializer
		f.phase = 1
		m.pushChild(f, 0)
	case 1:
		if Tag(f.node[2].(S)) == "noop" {
			f.phase = 3
			m.pushChild(f, 3)
			return nil
		}
		f.phase = 2
		m.pushChild(f, 1)
	case 2:
		if !f.val.Truthy() {
			m.complete(Null)
			return nil
		}
		f.phase = 3
		m.pushChild(f, 3)
	default:
		f.cont = false
		f.phase = 1
		m.pushChild(f, 2)
	}
	return nil
}

func tagName(t ValueTag) string {
	switch t {
	case VTNull:
		return "null"
	case VTBool:
		return "bool"
	case VTNum:
		return "number"
	case VTStr:
		return "string"
	case VTArray:
		return "array"
	case VTMap:
		return "object"
	case VTFun, VTNative:
		return "function"
	default:
		return "unknown"
	}
}
