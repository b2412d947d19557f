// value.go — the CalcScript runtime value model and lexical environments.
package calcscript

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueTag enumerates all runtime kinds a Value may hold.
type ValueTag int

const (
	VTNull   ValueTag = iota // null (no payload)
	VTBool                   // bool
	VTNum                    // float64
	VTStr                    // string
	VTArray                  // *ArrayObject (shared, mutable)
	VTMap                    // *MapObject (ordered map; shared, mutable)
	VTFun                    // *Fun (closure)
	VTNative                 // *Native (host function)
)

// Value is the universal runtime carrier used by the interpreter. The tag
// determines which Go type Data holds (see ValueTag).
type Value struct {
	Tag  ValueTag
	Data interface{}
}

// Null is the singleton null Value.
var Null = Value{Tag: VTNull}

// Primitive constructors.
func Bool(b bool) Value   { return Value{Tag: VTBool, Data: b} }
func Num(f float64) Value { return Value{Tag: VTNum, Data: f} }
func Str(s string) Value  { return Value{Tag: VTStr, Data: s} }

// ArrayObject is the shared backing store for array values, so that index
// assignment through one reference is visible through all of them.
type ArrayObject struct {
	Elems []Value
}

// Arr wraps a fresh ArrayObject around the given elements.
func Arr(elems []Value) Value {
	return Value{Tag: VTArray, Data: &ArrayObject{Elems: elems}}
}

// MapObject is an ordered map preserving key insertion order. Values of map
// type are represented as Value{Tag: VTMap, Data: *MapObject}.
type MapObject struct {
	Entries map[string]Value
	Keys    []string // insertion order (unique keys)
}

// NewMapObject returns an empty ordered map.
func NewMapObject() *MapObject {
	return &MapObject{Entries: map[string]Value{}}
}

// Set binds key to v, appending the key on first insertion.
func (m *MapObject) Set(key string, v Value) {
	if _, ok := m.Entries[key]; !ok {
		m.Keys = append(m.Keys, key)
	}
	m.Entries[key] = v
}

// Get retrieves the value bound to key.
func (m *MapObject) Get(key string) (Value, bool) {
	v, ok := m.Entries[key]
	return v, ok
}

// MapVal wraps a MapObject into a Value.
func MapVal(m *MapObject) Value { return Value{Tag: VTMap, Data: m} }

// Fun represents a user-defined function/closure. Body is the ("funexpr"...)
// or ("fundecl"...) node it was built from; BodyPath is that node's NodePath,
// kept so the stepping machine can address the body block's spans.
type Fun struct {
	Name     string // "" for anonymous function expressions
	Params   []string
	Node     S        // the defining funexpr/fundecl node
	BodyPath NodePath // path of the body block within the program AST
	Body     S        // the ("block" ...) body node
	Env      *Env     // closure environment captured at definition time
}

// FunVal wraps *Fun into a Value.
func FunVal(f *Fun) Value { return Value{Tag: VTFun, Data: f} }

// NativeFn is the signature of host functions callable from guest code.
type NativeFn func(args []Value) (Value, error)

// Native is a host function exposed to guest code by name.
type Native struct {
	Name string
	Fn   NativeFn
}

// NativeVal wraps *Native into a Value.
func NativeVal(n *Native) Value { return Value{Tag: VTNative, Data: n} }

// String renders a human-friendly debug representation. Arrays and objects
// may contain themselves; a revisited container renders as "...".
func (v Value) String() string {
	return v.render(make(map[any]bool))
}

func (v Value) render(seen map[any]bool) string {
	switch v.Tag {
	case VTNull:
		return "null"
	case VTBool:
		return strconv.FormatBool(v.Data.(bool))
	case VTNum:
		return strconv.FormatFloat(v.Data.(float64), 'g', -1, 64)
	case VTStr:
		return fmt.Sprintf("%q", v.Data.(string))
	case VTArray:
		a := v.Data.(*ArrayObject)
		if seen[a] {
			return "[...]"
		}
		seen[a] = true
		parts := make([]string, len(a.Elems))
		for i, e := range a.Elems {
			parts[i] = e.render(seen)
		}
		delete(seen, a)
		return "[" + strings.Join(parts, ", ") + "]"
	case VTMap:
		m := v.Data.(*MapObject)
		if seen[m] {
			return "{...}"
		}
		seen[m] = true
		parts := make([]string, 0, len(m.Keys))
		for _, k := range m.Keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, m.Entries[k].render(seen)))
		}
		delete(seen, m)
		return "{" + strings.Join(parts, ", ") + "}"
	case VTFun:
		f := v.Data.(*Fun)
		if f.Name != "" {
			return "<function " + f.Name + ">"
		}
		return "<function>"
	case VTNative:
		return "<native " + v.Data.(*Native).Name + ">"
	default:
		return "<unknown>"
	}
}

// Truthy implements condition semantics: null and false are falsy, zero
// numbers and empty strings are falsy, everything else is truthy.
func (v Value) Truthy() bool {
	switch v.Tag {
	case VTNull:
		return false
	case VTBool:
		return v.Data.(bool)
	case VTNum:
		return v.Data.(float64) != 0
	case VTStr:
		return v.Data.(string) != ""
	default:
		return true
	}
}

// valueEquals implements "==": strict equality for primitives, reference
// identity for arrays, maps and functions.
func valueEquals(a, b Value) bool {
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case VTNull:
		return true
	case VTBool:
		return a.Data.(bool) == b.Data.(bool)
	case VTNum:
		return a.Data.(float64) == b.Data.(float64)
	case VTStr:
		return a.Data.(string) == b.Data.(string)
	default:
		return a.Data == b.Data
	}
}

// displayString renders v for string concatenation (strings unquoted).
func displayString(v Value) string {
	if v.Tag == VTStr {
		return v.Data.(string)
	}
	return v.String()
}

// Env is a lexical environment frame with a parent link. Lookups walk
// parent-ward. Use Define to bind in the current frame, Set to update the
// nearest existing visible binding, and Get to retrieve.
type Env struct {
	parent *Env
	table  map[string]Value
}

// NewEnv creates a new lexical frame with the given parent (which may be nil).
func NewEnv(parent *Env) *Env {
	return &Env{parent: parent, table: make(map[string]Value)}
}

// Define binds name to v in the current frame, shadowing any outer binding.
func (e *Env) Define(name string, v Value) {
	e.table[name] = v
}

// Set updates the nearest existing binding of name to v. If no binding exists
// in any visible frame, Set returns an error (it does not implicitly define).
func (e *Env) Set(name string, v Value) error {
	for f := e; f != nil; f = f.parent {
		if _, ok := f.table[name]; ok {
			f.table[name] = v
			return nil
		}
	}
	return fmt.Errorf("undefined variable: %s", name)
}

// Get retrieves the nearest visible binding for name.
func (e *Env) Get(name string) (Value, bool) {
	for f := e; f != nil; f = f.parent {
		if v, ok := f.table[name]; ok {
			return v, true
		}
	}
	return Value{}, false
}
