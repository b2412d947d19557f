package debug

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAdapterRejectsBlankSource(t *testing.T) {
	_, err := NewAdapter("  \n\t ", nil)
	require.ErrorIs(t, err, ErrNoCode)
}

func TestAdapterSeedsGlobals(t *testing.T) {
	// Without the seed the program fails on the undefined reference.
	a := newTestAdapter(t, "let r = seed + 1;")
	var failed bool
	for !a.Done() {
		if _, err := a.Step(); err != nil {
			failed = true
			break
		}
	}
	require.True(t, failed)

	b, err := NewAdapter("let r = seed + 1;", map[string]float64{"seed": 41})
	require.NoError(t, err)
	stepUntil(t, b, func() bool { return b.Done() })
	require.Equal(t, 42.0, ExtractVariables(b, []string{"r"})["r"])
}

func TestCheckpointNativeRecordsPairs(t *testing.T) {
	a := newTestAdapter(t, `checkpoint([["a", "total", "i"]]);`)
	stepUntil(t, a, func() bool { return a.Done() })
	require.Equal(t, []Pair{{Local: "a", External: "total", IndexLocal: "i"}}, a.LastCheckpointPairs())
}

func TestDeclaredNamesFirstAppearanceOrder(t *testing.T) {
	a := newTestAdapter(t, `
		let total = 0;
		function scale(factor, amount) {
			return factor * amount;
		}
		let result = scale(2, total);
	`)
	require.Equal(t, []string{"total", "scale", "factor", "amount", "result"}, a.DeclaredNames())
}

func TestToNativeHandlesCyclicContainers(t *testing.T) {
	a := newTestAdapter(t, `
		let arr = [1];
		push(arr, arr);
		let obj = {};
		obj.self = obj;
	`)
	stepUntil(t, a, func() bool { return a.Done() })
	vars := ExtractVariables(a, []string{"arr", "obj"})

	arr, ok := vars["arr"].([]any)
	require.True(t, ok)
	require.Equal(t, []any{1.0, "<cycle>"}, arr)

	obj, ok := vars["obj"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "<cycle>", obj["self"])
}

func TestToNativeSharedContainerIsNotACycle(t *testing.T) {
	a := newTestAdapter(t, `let inner = [2]; let pair = [inner, inner];`)
	stepUntil(t, a, func() bool { return a.Done() })
	v := ExtractVariables(a, []string{"pair"})["pair"]
	require.Equal(t, []any{[]any{2.0}, []any{2.0}}, v)
}

func TestToNativeRendersFunctionsAsStrings(t *testing.T) {
	a := newTestAdapter(t, `function f() { return 1; } let g = f;`)
	stepUntil(t, a, func() bool { return a.Done() })
	v := ExtractVariables(a, []string{"g"})["g"]
	require.IsType(t, "", v)
}
