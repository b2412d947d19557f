package calcscript

import (
	"strings"
	"testing"
)

// --- helpers ---------------------------------------------------------------

const stepCap = 100000

// runToEnd steps a fresh machine until the program finishes.
func runToEnd(t *testing.T, src string) *Machine {
	t.Helper()
	m, err := NewMachine(src)
	if err != nil {
		t.Fatalf("NewMachine error: %v\nsource:\n%s", err, src)
	}
	for i := 0; ; i++ {
		if i > stepCap {
			t.Fatalf("program did not finish within %d steps:\n%s", stepCap, src)
		}
		more, err := m.Step()
		if err != nil {
			t.Fatalf("step error: %v\nsource:\n%s", err, src)
		}
		if !more {
			return m
		}
	}
}

// runToError steps until the machine fails and returns the error.
func runToError(t *testing.T, src string) error {
	t.Helper()
	m, err := NewMachine(src)
	if err != nil {
		t.Fatalf("NewMachine error: %v", err)
	}
	for i := 0; i <= stepCap; i++ {
		more, err := m.Step()
		if err != nil {
			return err
		}
		if !more {
			t.Fatalf("program finished without error:\n%s", src)
		}
	}
	t.Fatalf("program did not fail within %d steps:\n%s", stepCap, src)
	return nil
}

func globalVal(t *testing.T, m *Machine, name string) Value {
	t.Helper()
	v, ok := m.Global().Get(name)
	if !ok {
		t.Fatalf("global %q not defined", name)
	}
	return v
}

func wantNum(t *testing.T, v Value, f float64) {
	t.Helper()
	if v.Tag != VTNum || v.Data.(float64) != f {
		t.Fatalf("want num %g, got %#v", f, v)
	}
}

func wantStr(t *testing.T, v Value, s string) {
	t.Helper()
	if v.Tag != VTStr || v.Data.(string) != s {
		t.Fatalf("want str %q, got %#v", s, v)
	}
}

func wantBool(t *testing.T, v Value, b bool) {
	t.Helper()
	if v.Tag != VTBool || v.Data.(bool) != b {
		t.Fatalf("want bool %v, got %#v", b, v)
	}
}

func wantGlobalNum(t *testing.T, src, name string, f float64) {
	t.Helper()
	wantNum(t, globalVal(t, runToEnd(t, src), name), f)
}

// --- basics ------------------------------------------------------------------

func TestLetAndArithmetic(t *testing.T) {
	wantGlobalNum(t, "let a = 5; a = a + 1;", "a", 6)
	wantGlobalNum(t, "let x = 2 + 3 * 4;", "x", 14)
	wantGlobalNum(t, "let x = (2 + 3) * 4;", "x", 20)
	wantGlobalNum(t, "let x = 10 % 4;", "x", 2)
	wantGlobalNum(t, "let x = -3 + 1;", "x", -2)
	wantGlobalNum(t, "let x = 2.5 * 2;", "x", 5)
}

func TestStringConcat(t *testing.T) {
	m := runToEnd(t, `let s = "n=" + 3;`)
	wantStr(t, globalVal(t, m, "s"), "n=3")
}

func TestComparisonsAndLogic(t *testing.T) {
	m := runToEnd(t, `
		let a = 1 < 2;
		let b = "ab" < "ac";
		let c = 1 == 1 && 2 != 3;
		let d = false || true;
	`)
	wantBool(t, globalVal(t, m, "a"), true)
	wantBool(t, globalVal(t, m, "b"), true)
	wantBool(t, globalVal(t, m, "c"), true)
	wantBool(t, globalVal(t, m, "d"), true)
}

func TestShortCircuitSkipsRHS(t *testing.T) {
	// The rhs would fail if evaluated.
	m := runToEnd(t, `let x = false && (1 / 0);`)
	wantBool(t, globalVal(t, m, "x"), false)
}

func TestIfElse(t *testing.T) {
	wantGlobalNum(t, `let x = 0; if (1 < 2) { x = 1; } else { x = 2; }`, "x", 1)
	wantGlobalNum(t, `let x = 0; if (1 > 2) { x = 1; } else { x = 2; }`, "x", 2)
	wantGlobalNum(t, `let x = 0; if (false) { x = 1; }`, "x", 0)
}

// --- loops ---------------------------------------------------------------

func TestWhileLoop(t *testing.T) {
	wantGlobalNum(t, `
		let i = 0;
		let sum = 0;
		while (i < 5) {
			sum = sum + i;
			i = i + 1;
		}
	`, "sum", 10)
}

func TestForLoop(t *testing.T) {
	wantGlobalNum(t, `
		let sum = 0;
		for (let i = 0; i < 4; i = i + 1) {
			sum = sum + i;
		}
	`, "sum", 6)
}

func TestForLoopScope(t *testing.T) {
	m := runToEnd(t, `
		let i = 100;
		for (let i = 0; i < 3; i = i + 1) {}
	`)
	wantNum(t, globalVal(t, m, "i"), 100)
}

func TestBreakAndContinue(t *testing.T) {
	wantGlobalNum(t, `
		let sum = 0;
		for (let i = 0; i < 10; i = i + 1) {
			if (i == 3) { continue; }
			if (i == 6) { break; }
			sum = sum + i;
		}
	`, "sum", 0+1+2+4+5)

	wantGlobalNum(t, `
		let n = 0;
		while (true) {
			n = n + 1;
			if (n == 4) { break; }
		}
	`, "n", 4)
}

func TestBreakOutsideLoopFails(t *testing.T) {
	err := runToError(t, `break;`)
	if !strings.Contains(err.Error(), "break") {
		t.Fatalf("want break error, got %v", err)
	}
}

// --- functions -------------------------------------------------------------

func TestFunctionDeclarationAndCall(t *testing.T) {
	wantGlobalNum(t, `
		function add(a, b) { return a + b; }
		let r = add(2, 3);
	`, "r", 5)
}

func TestFunctionExpression(t *testing.T) {
	wantGlobalNum(t, `
		let twice = function(f, x) { return f(f(x)); };
		let inc = function(x) { return x + 1; };
		let r = twice(inc, 5);
	`, "r", 7)
}

func TestRecursion(t *testing.T) {
	wantGlobalNum(t, `
		function fib(n) {
			if (n < 2) { return n; }
			return fib(n - 1) + fib(n - 2);
		}
		let r = fib(10);
	`, "r", 55)
}

func TestClosureCapturesEnvironment(t *testing.T) {
	wantGlobalNum(t, `
		function counter() {
			let n = 0;
			return function() { n = n + 1; return n; };
		}
		let c = counter();
		c(); c();
		let r = c();
	`, "r", 3)
}

func TestMissingArgumentsAreNull(t *testing.T) {
	m := runToEnd(t, `
		function f(a, b) { return b; }
		let r = f(1);
	`)
	if v := globalVal(t, m, "r"); v.Tag != VTNull {
		t.Fatalf("want null, got %#v", v)
	}
}

func TestReturnOutsideFunctionFails(t *testing.T) {
	err := runToError(t, `return 1;`)
	if !strings.Contains(err.Error(), "return") {
		t.Fatalf("want return error, got %v", err)
	}
}

func TestBreakDoesNotCrossFunctionBoundary(t *testing.T) {
	err := runToError(t, `
		while (true) {
			let f = function() { break; };
			f();
		}
	`)
	if !strings.Contains(err.Error(), "break") {
		t.Fatalf("want break error, got %v", err)
	}
}

// --- arrays and maps ---------------------------------------------------------

func TestArrayIndexAndAssign(t *testing.T) {
	wantGlobalNum(t, `
		let a = [1, 2, 3];
		a[1] = a[1] * 10;
		let r = a[0] + a[1] + a[2];
	`, "r", 24)
}

func TestArrayOutOfBoundsFails(t *testing.T) {
	err := runToError(t, `let a = [1]; let x = a[5];`)
	if !strings.Contains(err.Error(), "out of range") {
		t.Fatalf("want bounds error, got %v", err)
	}
}

func TestMapLiteralGetAndSet(t *testing.T) {
	m := runToEnd(t, `
		let p = { x: 1, y: 2 };
		p.x = p.x + p["y"];
		let missing = p.z;
	`)
	obj := globalVal(t, m, "p").Data.(*MapObject)
	v, _ := obj.Get("x")
	wantNum(t, v, 3)
	if miss := globalVal(t, m, "missing"); miss.Tag != VTNull {
		t.Fatalf("missing key should be null, got %#v", miss)
	}
}

func TestArraysShareIdentity(t *testing.T) {
	wantGlobalNum(t, `
		let a = [1, 2];
		let b = a;
		b[0] = 9;
		let r = a[0];
	`, "r", 9)
}

// --- natives -----------------------------------------------------------------

func TestCoreNatives(t *testing.T) {
	m := runToEnd(t, `
		let a = abs(-3);
		let b = min(4, 2, 8);
		let c = max(4, 2, 8);
		let d = pow(2, 10);
		let e = len("hello");
		let f = [1];
		let g = push(f, 2);
		let h = len(f);
	`)
	wantNum(t, globalVal(t, m, "a"), 3)
	wantNum(t, globalVal(t, m, "b"), 2)
	wantNum(t, globalVal(t, m, "c"), 8)
	wantNum(t, globalVal(t, m, "d"), 1024)
	wantNum(t, globalVal(t, m, "e"), 5)
	wantNum(t, globalVal(t, m, "g"), 2)
	wantNum(t, globalVal(t, m, "h"), 2)
}

func TestRegisteredNativeAndSeededGlobal(t *testing.T) {
	m, err := NewMachine(`let r = double(seed);`)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	m.RegisterNative("double", func(args []Value) (Value, error) {
		return Num(args[0].Data.(float64) * 2), nil
	})
	m.Global().Define("seed", Num(21))
	for {
		more, err := m.Step()
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if !more {
			break
		}
	}
	wantNum(t, globalVal(t, m, "r"), 42)
}

// --- errors --------------------------------------------------------------

func TestDivisionByZero(t *testing.T) {
	err := runToError(t, `let x = 1 / 0;`)
	if !strings.Contains(err.Error(), "division by zero") {
		t.Fatalf("want division error, got %v", err)
	}
}

func TestUndefinedVariable(t *testing.T) {
	err := runToError(t, `let x = nope + 1;`)
	rt, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("want *RuntimeError, got %T: %v", err, err)
	}
	if !strings.Contains(rt.Msg, "nope") {
		t.Fatalf("error should name the variable: %v", rt)
	}
	if rt.Line != 1 {
		t.Fatalf("want line 1, got %d", rt.Line)
	}
}

func TestMachineDeadAfterError(t *testing.T) {
	m, err := NewMachine(`let x = 1 / 0;`)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	for {
		more, serr := m.Step()
		if serr != nil {
			break
		}
		if !more {
			t.Fatal("expected a step error")
		}
	}
	if !m.Done() {
		t.Fatal("machine should be done after an error")
	}
	if more, serr := m.Step(); more || serr != nil {
		t.Fatalf("stepping a dead machine: more=%v err=%v", more, serr)
	}
}

// --- stepping introspection ----------------------------------------------

func TestCurrentSpanTracksPendingInstruction(t *testing.T) {
	src := `let a = 1; let b = 2;`
	m, err := NewMachine(src)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	seen := map[string]bool{}
	for {
		if sp := m.CurrentSpan(); !sp.IsZero() {
			seen[src[sp.Start:sp.End]] = true
		}
		more, err := m.Step()
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if !more {
			break
		}
	}
	for _, frag := range []string{"let a = 1;", "let b = 2;"} {
		if !seen[frag] {
			t.Fatalf("never paused on %q; saw %v", frag, seen)
		}
	}
}

func TestFramesReportFunctionNames(t *testing.T) {
	src := `
		function inner() { return 1; }
		function outer() { return inner(); }
		let r = outer();
	`
	m, err := NewMachine(src)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	sawInnerUnderOuter := false
	for {
		var names []string
		for _, f := range m.Frames() {
			if f.FunctionName != "" {
				names = append(names, f.FunctionName)
			}
		}
		if len(names) >= 2 && names[0] == "inner" && names[1] == "outer" {
			sawInnerUnderOuter = true
		}
		more, err := m.Step()
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if !more {
			break
		}
	}
	if !sawInnerUnderOuter {
		t.Fatal("never observed inner above outer on the frame stack")
	}
}
