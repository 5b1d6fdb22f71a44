// Package verify checks invariants linking the shadow tracker to the
// reference oracle's view of memory. These helpers back the driver's
// per-step checks and the package tests.
package verify

import (
	"fmt"
	"sort"

	"github.com/joshuapare/shadowkit/shadow"
	"github.com/joshuapare/shadowkit/shadow/oracle"
)

// ValidationError describes a broken invariant.
type ValidationError struct {
	Type    string
	Message string
	Addr    int64 // -1 if N/A
	Details map[string]interface{}
}

func (e *ValidationError) Error() string {
	if e.Addr >= 0 {
		return fmt.Sprintf("%s at 0x%X: %s", e.Type, e.Addr, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// AllInvariants validates the stack frame and the heap against the model's
// stack pointer and allocations. Returns the first error encountered.
func AllInvariants(t *shadow.Tracker, sp uint64, allocs []oracle.Allocation) error {
	if err := StackPointer(t, sp); err != nil {
		return err
	}
	if err := Stack(t); err != nil {
		return err
	}
	if err := Registry(t, allocs); err != nil {
		return err
	}
	return nil
}

// StackPointer checks the tracker's stack pointer against the model's.
func StackPointer(t *shadow.Tracker, sp uint64) error {
	if got := t.StackPointer(); got != sp {
		return &ValidationError{
			Type:    "StackPointer",
			Message: fmt.Sprintf("stack pointer mismatch: tracker=0x%X, model=0x%X", got, sp),
			Addr:    -1,
			Details: map[string]interface{}{"tracker": got, "model": sp},
		}
	}
	return nil
}

// Stack checks that [0, sp) is unallocated and [sp, max_stack_size) is
// initialized.
func Stack(t *shadow.Tracker) error {
	l := t.Layout()
	sp := t.StackPointer()
	if sp > l.MaxStackSize {
		return &ValidationError{
			Type:    "Stack",
			Message: fmt.Sprintf("stack pointer 0x%X above stack region end 0x%X", sp, l.MaxStackSize),
			Addr:    -1,
		}
	}
	for addr := uint64(0); addr < l.MaxStackSize; addr++ {
		want := shadow.Unallocated
		if addr >= sp {
			want = shadow.ValidToReadWrite
		}
		if got, _ := t.State(addr); got != want {
			region := "unused stack"
			if addr >= sp {
				region = "stack frame"
			}
			return &ValidationError{
				Type:    "Stack",
				Message: fmt.Sprintf("%s byte is %s, expected %s", region, got, want),
				Addr:    int64(addr),
				Details: map[string]interface{}{"stack_pointer": sp},
			}
		}
	}
	return nil
}

// Registry checks the heap region against a set of live allocations:
// records are in bounds and disjoint, every byte they cover is allocated,
// and no byte outside them is.
//
// Only the recorded bytes and the stack region are read. The tracker's
// allocated-byte count then shows whether any other heap byte is in use; the
// full heap is scanned only to locate such a byte.
func Registry(t *shadow.Tracker, allocs []oracle.Allocation) error {
	l := t.Layout()
	sorted := append([]oracle.Allocation(nil), allocs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Addr < sorted[j].Addr })

	var owned uint64
	for i, a := range sorted {
		if !l.InHeap(a.Addr, a.Len) {
			return &ValidationError{
				Type:    "Registry",
				Message: fmt.Sprintf("allocation of %d bytes outside heap region", a.Len),
				Addr:    int64(a.Addr),
			}
		}
		if i > 0 && sorted[i-1].Overlaps(a) {
			return &ValidationError{
				Type:    "Registry",
				Message: fmt.Sprintf("allocation overlaps previous allocation at 0x%X", sorted[i-1].Addr),
				Addr:    int64(a.Addr),
			}
		}
		for addr := a.Addr; addr < a.End(); addr++ {
			if st, _ := t.State(addr); st == shadow.Unallocated {
				return &ValidationError{
					Type:    "Registry",
					Message: fmt.Sprintf("byte of live allocation at 0x%X is unallocated", a.Addr),
					Addr:    int64(addr),
					Details: map[string]interface{}{"allocation": a},
				}
			}
		}
		owned += a.Len
	}

	var stack uint64
	for addr := uint64(0); addr < l.MaxStackSize; addr++ {
		if st, _ := t.State(addr); st != shadow.Unallocated {
			stack++
		}
	}
	if t.Allocated()-stack == owned {
		return nil
	}
	return unowned(t, sorted)
}

// unowned finds the first heap byte in use outside every allocation.
func unowned(t *shadow.Tracker, sorted []oracle.Allocation) error {
	l := t.Layout()
	next := 0
	for addr := l.MaxStackSize; addr < l.MemSize; addr++ {
		for next < len(sorted) && sorted[next].End() <= addr {
			next++
		}
		if next < len(sorted) && sorted[next].Addr <= addr {
			continue
		}
		if st, _ := t.State(addr); st != shadow.Unallocated {
			return &ValidationError{
				Type:    "Registry",
				Message: fmt.Sprintf("heap byte is %s but no live allocation owns it", st),
				Addr:    int64(addr),
			}
		}
	}
	return &ValidationError{
		Type:    "Registry",
		Message: fmt.Sprintf("allocated byte count %d disagrees with heap contents", t.Allocated()),
		Addr:    -1,
	}
}
