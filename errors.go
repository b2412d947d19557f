// errors.go — guest runtime errors and caret-snippet rendering.
//
// WrapErrorWithSource recognizes *LexError and *ParseError and rewrites their
// message into a numbered snippet with a caret under the offending column:
//
//	parse error at 2:14: expected ';' after statement
//
//	   1 | let a = 5
//	   2 | let b = a + 1
//	     |              ^
//
// Other errors are returned unchanged. Runtime failures inside the stepping
// machine are reported as *RuntimeError carrying the span of the node that
// was executing.
package calcscript

import (
	"fmt"
	"strings"
)

// RuntimeError is a guest-code execution failure. Span points at the node
// that was executing; Line/Col are 1-based and derived from the span start.
type RuntimeError struct {
	Msg  string
	Span Span
	Line int
	Col  int
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("runtime error at %d:%d: %s", e.Line, e.Col, e.Msg)
	}
	return "runtime error: " + e.Msg
}

// PosAt converts a byte offset into 1-based (line, col) coordinates within
// src. Offsets out of range are clamped.
func PosAt(src string, offset int) (line, col int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(src) {
		offset = len(src)
	}
	prefix := src[:offset]
	line = 1 + strings.Count(prefix, "\n")
	lastNL := strings.LastIndex(prefix, "\n")
	return line, offset - lastNL // lastNL is -1 for line 1, so col is 1-based
}

// WrapErrorWithSource augments lex/parse errors with a caret-annotated source
// snippet. Any other error is returned as-is.
func WrapErrorWithSource(err error, src string) error {
	var line, col int
	var header string
	switch e := err.(type) {
	case *LexError:
		line, col, header = e.Line, e.Col, e.Error()
	case *ParseError:
		line, col, header = e.Line, e.Col, e.Error()
	default:
		return err
	}
	return fmt.Errorf("%s\n\n%s", header, caretSnippet(src, line, col))
}

// caretSnippet renders up to one line of context before and after the error
// line, with a caret aligned under the 1-based column.
func caretSnippet(src string, line, col int) string {
	lines := strings.Split(src, "\n")
	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		line = len(lines)
	}
	var sb strings.Builder
	width := len(fmt.Sprintf("%d", min(line+1, len(lines))))
	for n := line - 1; n <= line+1; n++ {
		if n < 1 || n > len(lines) {
			continue
		}
		fmt.Fprintf(&sb, " %*d | %s\n", width, n, lines[n-1])
		if n == line {
			pad := col
			if pad < 1 {
				pad = 1
			}
			if pad > len(lines[n-1])+1 {
				pad = len(lines[n-1]) + 1
			}
			fmt.Fprintf(&sb, " %s | %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", pad-1))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
