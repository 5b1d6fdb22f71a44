package verify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/shadowkit/shadow"
	"github.com/joshuapare/shadowkit/shadow/oracle"
)

var layout = shadow.Layout{MemSize: 512, MaxStackSize: 64}

func setup(t *testing.T) *shadow.Tracker {
	t.Helper()
	tr := shadow.MustNew(layout)
	require.NoError(t, tr.Allocate(100, 16))
	require.NoError(t, tr.Write(100, 8))
	require.NoError(t, tr.Allocate(116, 4))
	require.NoError(t, tr.GrowStack(10))
	return tr
}

func requireInvariant(t *testing.T, err error, typ string, addr int64) {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	require.Equal(t, typ, ve.Type)
	require.Equal(t, addr, ve.Addr)
}

func TestAllInvariants_Consistent(t *testing.T) {
	tr := setup(t)
	allocs := []oracle.Allocation{{Addr: 116, Len: 4}, {Addr: 100, Len: 16}}
	require.NoError(t, AllInvariants(tr, 54, allocs))
}

func TestAllInvariants_Empty(t *testing.T) {
	require.NoError(t, AllInvariants(shadow.MustNew(layout), 64, nil))
}

func TestStackPointer_Mismatch(t *testing.T) {
	err := StackPointer(setup(t), 64)
	requireInvariant(t, err, "StackPointer", -1)
	require.Contains(t, err.Error(), "tracker=0x36, model=0x40")
}

func TestRegistry_MissingRecord(t *testing.T) {
	err := Registry(setup(t), []oracle.Allocation{{Addr: 100, Len: 16}})
	requireInvariant(t, err, "Registry", 116)
	require.Contains(t, err.Error(), "no live allocation owns it")
}

func TestRegistry_ExtraRecord(t *testing.T) {
	allocs := []oracle.Allocation{{Addr: 100, Len: 16}, {Addr: 116, Len: 4}, {Addr: 200, Len: 8}}
	err := Registry(setup(t), allocs)
	requireInvariant(t, err, "Registry", 200)
	require.Contains(t, err.Error(), "is unallocated")
}

func TestRegistry_Overlap(t *testing.T) {
	allocs := []oracle.Allocation{{Addr: 100, Len: 16}, {Addr: 110, Len: 10}}
	err := Registry(setup(t), allocs)
	requireInvariant(t, err, "Registry", 110)
}

func TestRegistry_OutsideHeap(t *testing.T) {
	err := Registry(setup(t), []oracle.Allocation{{Addr: 60, Len: 4}})
	requireInvariant(t, err, "Registry", 60)
}

func TestStack_Frames(t *testing.T) {
	tr := shadow.MustNew(layout)
	require.NoError(t, Stack(tr))

	require.NoError(t, tr.GrowStack(20))
	require.NoError(t, Stack(tr))
	require.NoError(t, tr.ShrinkStack(10))
	require.NoError(t, Stack(tr))
	require.NoError(t, AllInvariants(tr, 54, nil))

	require.NoError(t, tr.GrowStack(54))
	require.NoError(t, AllInvariants(tr, 0, nil))
}

func TestRegistry_UnownedByteBetweenRecords(t *testing.T) {
	tr := shadow.MustNew(layout)
	require.NoError(t, tr.Allocate(100, 8))
	require.NoError(t, tr.Allocate(300, 8))
	require.NoError(t, tr.Allocate(400, 8))

	allocs := []oracle.Allocation{{Addr: 100, Len: 8}, {Addr: 400, Len: 8}}
	err := Registry(tr, allocs)
	requireInvariant(t, err, "Registry", 300)

	allocs = append(allocs, oracle.Allocation{Addr: 300, Len: 8})
	require.NoError(t, Registry(tr, allocs))
}

// A 16 MiB heap with a handful of live allocations is checked once per
// operation; the check must not scale with the heap.
func TestAllInvariants_LargeLayout(t *testing.T) {
	big := shadow.Layout{MemSize: 16 << 20, MaxStackSize: 1024}
	tr := shadow.MustNew(big)
	require.NoError(t, tr.GrowStack(512))

	var allocs []oracle.Allocation
	for i := range uint64(2000) {
		a := oracle.Allocation{Addr: 4096 + i*64, Len: 32}
		require.NoError(t, tr.Allocate(a.Addr, a.Len))
		allocs = append(allocs, a)
		require.NoError(t, AllInvariants(tr, 512, allocs))
	}
}
