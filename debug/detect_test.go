package debug

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// stepAdapter builds an adapter and steps it until pred returns true,
// failing the test if the program finishes first.
func stepUntil(t *testing.T, a *Adapter, pred func() bool) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		if pred() {
			return
		}
		more, err := a.Step()
		require.NoError(t, err)
		if !more {
			break
		}
	}
	if !pred() {
		t.Fatal("condition never reached")
	}
}

func newTestAdapter(t *testing.T, src string) *Adapter {
	t.Helper()
	a, err := NewAdapter(src, nil)
	require.NoError(t, err)
	return a
}

func TestDetectorFindsPendingCall(t *testing.T) {
	a := newTestAdapter(t, `let a = 1; checkpoint(); let b = 2;`)
	require.False(t, AtCheckpoint(a))
	stepUntil(t, a, func() bool { return AtCheckpoint(a) })
	pairs, at := CheckpointPairs(a)
	require.True(t, at)
	require.Empty(t, pairs)
}

func TestDetectorStableThroughArgumentEvaluation(t *testing.T) {
	a := newTestAdapter(t, `checkpoint([["a", "total"]]);`)
	stepUntil(t, a, func() bool { return AtCheckpoint(a) })

	// The call takes several machine steps to evaluate its literal
	// arguments; the detector must hold through all of them.
	trueStreak := 0
	for AtCheckpoint(a) {
		trueStreak++
		require.Less(t, trueStreak, 100)
		more, err := a.Step()
		require.NoError(t, err)
		if !more {
			break
		}
	}
	require.Greater(t, trueStreak, 1)
	require.False(t, AtCheckpoint(a))
}

func TestDetectorReadsDeclaredPairsStatically(t *testing.T) {
	a := newTestAdapter(t, `checkpoint([["a", "total"], ["i", "idx", "i"]]);`)
	stepUntil(t, a, func() bool { return AtCheckpoint(a) })
	pairs, at := CheckpointPairs(a)
	require.True(t, at)
	require.Equal(t, []Pair{
		{Local: "a", External: "total"},
		{Local: "i", External: "idx", IndexLocal: "i"},
	}, pairs)
}

func TestDetectorIgnoresOtherCalls(t *testing.T) {
	a := newTestAdapter(t, `let a = abs(-1);`)
	for i := 0; i < 1000; i++ {
		require.False(t, AtCheckpoint(a))
		more, err := a.Step()
		require.NoError(t, err)
		if !more {
			return
		}
	}
	t.Fatal("program did not finish")
}

func TestFirstCheckpointPairsScansStatically(t *testing.T) {
	a := newTestAdapter(t, `
		let a = 1;
		while (a < 3) {
			checkpoint([["a", "total"]]);
			a = a + 1;
		}
	`)
	require.Equal(t, []Pair{{Local: "a", External: "total"}}, FirstCheckpointPairs(a.AST()))
}

func TestFirstCheckpointPairsEmptyWithoutCheckpoint(t *testing.T) {
	a := newTestAdapter(t, `let a = 1;`)
	require.Nil(t, FirstCheckpointPairs(a.AST()))
}
