package shadow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeap_FreeByAddress(t *testing.T) {
	h := NewHeap(newTestTracker(t))

	require.NoError(t, h.Malloc(0x1000, 32))
	n, ok := h.Len(0x1000)
	require.True(t, ok)
	require.Equal(t, uint64(32), n)
	require.Equal(t, 1, h.Live())

	require.NoError(t, h.Free(0x1000))
	requireStates(t, h.Tracker(), 0x1000, 32, Unallocated)
	require.Equal(t, 0, h.Live())

	err := h.Free(0x1000)
	requireKind(t, err, KindInvalidFree, 0x1000, 0)
	require.ErrorIs(t, err, ErrInvalidFree)
}

func TestHeap_AdjacentAllocations(t *testing.T) {
	h := NewHeap(newTestTracker(t))

	// Abutting allocations look like one run of bytes to the tracker; the
	// side table still frees exactly one of them.
	require.NoError(t, h.Malloc(0x1000, 16))
	require.NoError(t, h.Malloc(0x1010, 16))
	require.NoError(t, h.Free(0x1000))
	requireStates(t, h.Tracker(), 0x1000, 16, Unallocated)
	requireStates(t, h.Tracker(), 0x1010, 16, ValidToWrite)
}

func TestHeap_InteriorFreeRejected(t *testing.T) {
	h := NewHeap(newTestTracker(t))

	require.NoError(t, h.Malloc(0x1000, 32))
	requireKind(t, h.Free(0x1008), KindInvalidFree, 0x1008, 0)
	requireStates(t, h.Tracker(), 0x1000, 32, ValidToWrite)
}

func TestHeap_FailedMallocNotRecorded(t *testing.T) {
	h := NewHeap(newTestTracker(t))

	require.NoError(t, h.Malloc(0x1000, 32))
	requireKind(t, h.Malloc(0x1001, 32), KindDoubleMalloc, 0x1001, 32)
	_, ok := h.Len(0x1001)
	require.False(t, ok)
	requireKind(t, h.Free(0x1001), KindInvalidFree, 0x1001, 0)
}

func TestHeap_ApplyAndPredict(t *testing.T) {
	h := NewHeap(newTestTracker(t))
	ops := []Op{
		Malloc(0x2000, 64),
		Write(0x2000, 64),
		Read(0x2010, 16),
		Free(0x2008, 0),
		Free(0x2000, 0),
		Free(0x2000, 0),
		Read(0x2000, 1),
		GrowStack(8),
		Write(1016, 8),
		ShrinkStack(8),
	}
	for _, op := range ops {
		want := h.Predict(op)
		got := h.Apply(op)
		require.True(t, SameVerdict(want, got), "%v: predicted %v, applied %v", op, want, got)
	}
	require.Equal(t, 0, h.Live())
}

// Everything but free passes through the heap unchanged, so both appliers
// return the same verdicts for such a sequence.
func TestHeap_MatchesTrackerOutsideFree(t *testing.T) {
	ops := []Op{
		Malloc(0x2000, 16),
		Read(0x2000, 4),
		Write(0x2000, 8),
		Read(0x2000, 8),
		Malloc(0x2008, 16),
		GrowStack(2048),
		GrowStack(16),
		Write(1008, 16),
		ShrinkStack(17),
	}
	verdicts := func(a Applier) []error {
		out := make([]error, 0, len(ops))
		for _, op := range ops {
			out = append(out, a.Apply(op))
		}
		return out
	}

	fromTracker := verdicts(newTestTracker(t))
	fromHeap := verdicts(NewHeap(newTestTracker(t)))
	require.Equal(t, fromTracker, fromHeap)
	requireKind(t, fromTracker[1], KindInvalidRead, 0x2000, 4)
	requireKind(t, fromTracker[4], KindDoubleMalloc, 0x2008, 16)
	requireKind(t, fromTracker[5], KindOutOfBounds, 1024, 2048)
}
