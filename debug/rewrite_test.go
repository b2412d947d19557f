package debug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteBareSentinel(t *testing.T) {
	assert.Equal(t, "checkpoint();", RewriteCheckpoints("// @checkpoint"))
}

func TestRewriteSinglePair(t *testing.T) {
	assert.Equal(t, `checkpoint([["a", "total"]]);`, RewriteCheckpoints("// @checkpoint a->total"))
}

func TestRewriteShorthandPair(t *testing.T) {
	assert.Equal(t, `checkpoint([["a", "a"]]);`, RewriteCheckpoints("// @checkpoint a"))
}

func TestRewriteIndexedPair(t *testing.T) {
	assert.Equal(t,
		`checkpoint([["a", "total"], ["i", "idx", "i"]]);`,
		RewriteCheckpoints("// @checkpoint a->total i->idx->i"))
}

func TestRewritePreservesIndentation(t *testing.T) {
	assert.Equal(t, "\t  checkpoint();", RewriteCheckpoints("\t  // @checkpoint"))
}

func TestRewriteIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, "checkpoint();", RewriteCheckpoints("// @CheckPoint"))
}

func TestRewritePreservesLineCount(t *testing.T) {
	src := "let a = 1;\n// @checkpoint a\nlet b = 2;\n  // @checkpoint b->out\nlet c = 3;"
	out := RewriteCheckpoints(src)
	assert.Equal(t, strings.Count(src, "\n"), strings.Count(out, "\n"))
	assert.Contains(t, out, "let a = 1;")
	assert.Contains(t, out, "let c = 3;")
}

func TestRewriteLeavesTrailingCommentsAlone(t *testing.T) {
	src := "let a = 1; // @checkpoint"
	assert.Equal(t, src, RewriteCheckpoints(src))
}

func TestRewriteLeavesPlainCodeAlone(t *testing.T) {
	src := "let a = 1;\nlet b = a + 2;"
	assert.Equal(t, src, RewriteCheckpoints(src))
}

func TestMalformedTokenFallsBackToRawPair(t *testing.T) {
	// Empty arrow segment.
	assert.Equal(t, Pair{Local: "a->->b", External: "a->->b"}, parseSentinelToken("a->->b"))
	// More than two arrows.
	assert.Equal(t, Pair{Local: "a->b->c->d", External: "a->b->c->d"}, parseSentinelToken("a->b->c->d"))
}

func TestParseSentinelTokenForms(t *testing.T) {
	assert.Equal(t, Pair{Local: "x", External: "x"}, parseSentinelToken("x"))
	assert.Equal(t, Pair{Local: "x", External: "y"}, parseSentinelToken("x->y"))
	assert.Equal(t, Pair{Local: "x", External: "y", IndexLocal: "i"}, parseSentinelToken("x->y->i"))
}

func TestRewrittenSentinelParses(t *testing.T) {
	out := RewriteCheckpoints("// @checkpoint a->total i->idx->i\nlet a = 1;")
	a, err := NewAdapter(out, nil)
	assert.NoError(t, err)
	assert.NotNil(t, a)
}
