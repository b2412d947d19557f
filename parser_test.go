package calcscript

import (
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) (S, *SpanIndex) {
	t.Helper()
	ast, spans, err := ParseWithSpans(src)
	if err != nil {
		t.Fatalf("parse error: %v\nsource:\n%s", err, src)
	}
	return ast, spans
}

func TestProgramShape(t *testing.T) {
	ast, err := Parse(`let a = 1; a = a + 2;`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if Tag(ast) != "program" || len(ast) != 3 {
		t.Fatalf("want program with 2 statements, got %#v", ast)
	}
	letNode := ast[1].(S)
	if Tag(letNode) != "let" {
		t.Fatalf("want let, got %q", Tag(letNode))
	}
	if name := letNode[1].(S); name[1].(string) != "a" {
		t.Fatalf("want binding a, got %#v", name)
	}
	stmt := ast[2].(S)
	if Tag(stmt) != "exprstmt" || Tag(stmt[1].(S)) != "assign" {
		t.Fatalf("want exprstmt(assign), got %#v", stmt)
	}
}

func TestPrecedence(t *testing.T) {
	ast, _ := mustParse(t, `let x = 1 + 2 * 3;`)
	expr := ast[1].(S)[2].(S)
	if Tag(expr) != "binop" || expr[1].(string) != "+" {
		t.Fatalf("want top-level +, got %#v", expr)
	}
	rhs := expr[3].(S)
	if Tag(rhs) != "binop" || rhs[1].(string) != "*" {
		t.Fatalf("want * under +, got %#v", rhs)
	}
}

func TestLogicalPrecedence(t *testing.T) {
	ast, _ := mustParse(t, `let x = a || b && c;`)
	expr := ast[1].(S)[2].(S)
	if Tag(expr) != "logic" || expr[1].(string) != "||" {
		t.Fatalf("want top-level ||, got %#v", expr)
	}
	if rhs := expr[3].(S); Tag(rhs) != "logic" || rhs[1].(string) != "&&" {
		t.Fatalf("want && under ||, got %#v", rhs)
	}
}

func TestAssignmentIsRightAssociative(t *testing.T) {
	ast, _ := mustParse(t, `a = b = 1;`)
	outer := ast[1].(S)[1].(S)
	if Tag(outer) != "assign" {
		t.Fatalf("want assign, got %#v", outer)
	}
	if inner := outer[2].(S); Tag(inner) != "assign" {
		t.Fatalf("want nested assign on the right, got %#v", inner)
	}
}

func TestInvalidAssignmentTarget(t *testing.T) {
	_, _, err := ParseWithSpans(`1 = 2;`)
	if err == nil {
		t.Fatal("want parse error for invalid assignment target")
	}
}

func TestCallChainAndIndexing(t *testing.T) {
	ast, _ := mustParse(t, `f(1)(2)[0].x;`)
	expr := ast[1].(S)[1].(S)
	if Tag(expr) != "get" {
		t.Fatalf("want get at top, got %q", Tag(expr))
	}
	idx := expr[1].(S)
	if Tag(idx) != "idx" {
		t.Fatalf("want idx under get, got %q", Tag(idx))
	}
	if call := idx[1].(S); Tag(call) != "call" || Tag(call[1].(S)) != "call" {
		t.Fatalf("want chained calls, got %#v", idx[1])
	}
}

func TestOptionalSemicolonBeforeBrace(t *testing.T) {
	mustParse(t, `if (true) { let a = 1 }`)
	mustParse(t, "let a = 1")
}

func TestForWithEmptyClauses(t *testing.T) {
	ast, _ := mustParse(t, `for (;;) { break; }`)
	loop := ast[1].(S)
	if Tag(loop) != "for" {
		t.Fatalf("want for, got %q", Tag(loop))
	}
	for i := 1; i <= 3; i++ {
		if Tag(loop[i].(S)) != "noop" {
			t.Fatalf("clause %d should be noop, got %#v", i, loop[i])
		}
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, _, err := ParseWithSpans("let a = 1;\nlet = 2;")
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("want *ParseError, got %T: %v", err, err)
	}
	if pe.Line != 2 {
		t.Fatalf("want line 2, got %d", pe.Line)
	}
}

// --- spans -------------------------------------------------------------------

func TestStatementSpansCoverSource(t *testing.T) {
	src := `let a = 1; let b = a + 2;`
	ast, spans := mustParse(t, src)
	root := NodePath{}
	for i := 0; i < len(ast)-1; i++ {
		sp, ok := spans.Get(root.Child(i))
		if !ok || sp.IsZero() {
			t.Fatalf("statement %d has no span", i)
		}
		text := src[sp.Start:sp.End]
		if !strings.HasPrefix(text, "let") || !strings.HasSuffix(text, ";") {
			t.Fatalf("statement %d span %q looks wrong", i, text)
		}
	}
}

func TestNestedExpressionSpan(t *testing.T) {
	src := `let x = foo(1, 2);`
	_, spans := mustParse(t, src)
	// let -> init expr (child 1) is the call.
	sp, ok := spans.Get(NodePath{}.Child(0).Child(1))
	if !ok {
		t.Fatal("call span missing")
	}
	if got := src[sp.Start:sp.End]; got != "foo(1, 2)" {
		t.Fatalf("want call span %q, got %q", "foo(1, 2)", got)
	}
}

func TestSpanIndexMatchesMachinePaths(t *testing.T) {
	src := `while (a < 3) { a = a + 1; }`
	ast, spans := mustParse(t, src)
	cond := NodePath{}.Child(0).Child(0)
	sp, ok := spans.Get(cond)
	if !ok {
		t.Fatal("condition span missing")
	}
	if got := src[sp.Start:sp.End]; got != "a < 3" {
		t.Fatalf("want condition span %q, got %q", "a < 3", got)
	}
	if Tag(ast[1].(S)[1].(S)) != "binop" {
		t.Fatalf("condition should be a binop")
	}
}
