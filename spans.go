// spans.go — sidecar source spans for CalcScript ASTs.
//
// The AST (the S-expression type `S` from parser.go) carries no position
// information of its own. Instead, the parser records one byte span per node
// in strict post-order (children before parent, left to right among siblings)
// and BuildSpanIndexPostOrder binds those spans to structural node addresses.
//
// A NodePath addresses a node by child indexes: path element k selects the
// child stored at S[k+1] (S[0] is the tag string). The empty path addresses
// the root. The resulting SpanIndex is read-only and safe for concurrent
// reads; it is what the debugger queries to highlight the pending instruction.
package calcscript

import (
	"strconv"
	"strings"
)

// Span is a half-open byte interval [Start, End) into the original UTF-8
// source text. End is exclusive. A zero Span marks a synthesized node with no
// concrete source text.
type Span struct {
	Start int
	End   int
}

// IsZero reports whether the span carries no source range.
func (sp Span) IsZero() bool { return sp.Start == 0 && sp.End == 0 }

// NodePath is a stable structural address into an S-expression AST. Each
// element selects a child: element k → S[k+1].
type NodePath []int

// Child returns a new path extended by one child index. The result never
// aliases the receiver's backing array.
func (p NodePath) Child(idx int) NodePath {
	np := make(NodePath, len(p)+1)
	copy(np, p)
	np[len(p)] = idx
	return np
}

// SpanIndex maps NodePath → Span for one parsed program.
type SpanIndex struct {
	byPath map[string]Span
}

// Get returns the span recorded for the given path. The boolean is false for
// unknown paths and nil indexes; partial indexes are legal.
func (si *SpanIndex) Get(p NodePath) (Span, bool) {
	if si == nil {
		return Span{}, false
	}
	sp, ok := si.byPath[pathKey(p)]
	return sp, ok
}

// BuildSpanIndexPostOrder binds the given post-order span list to the nodes
// of root. The slice must contain exactly one Span per node, in post-order;
// if it is shorter, the remaining nodes are left unindexed, and extras are
// ignored.
func BuildSpanIndexPostOrder(root S, postorder []Span) *SpanIndex {
	si := &SpanIndex{byPath: make(map[string]Span, len(postorder))}
	i := 0
	var walk func(n S, path NodePath)
	walk = func(n S, path NodePath) {
		for ci := 1; ci < len(n); ci++ {
			if child, ok := n[ci].(S); ok {
				walk(child, path.Child(ci-1))
			}
		}
		if i < len(postorder) {
			si.byPath[pathKey(path)] = postorder[i]
			i++
		}
	}
	walk(root, nil)
	return si
}

func pathKey(p NodePath) string {
	if len(p) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, x := range p {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(x))
	}
	return sb.String()
}
