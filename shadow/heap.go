package shadow

import "fmt"

// Heap frees by start address. It wraps a Tracker with a side table of live
// allocation lengths, since the tracker itself keeps no allocation identity.
// The length is never inferred from byte states: two adjacent allocations
// are indistinguishable there.
//
// NOT thread-safe.
type Heap struct {
	t    *Tracker
	lens map[uint64]uint64
}

// NewHeap wraps t. The tracker must not be mutated behind the heap's back.
func NewHeap(t *Tracker) *Heap {
	return &Heap{t: t, lens: make(map[uint64]uint64)}
}

// Tracker returns the wrapped tracker.
func (h *Heap) Tracker() *Tracker { return h.t }

// Len returns the length of the live allocation starting at addr.
func (h *Heap) Len(addr uint64) (uint64, bool) {
	n, ok := h.lens[addr]
	return n, ok
}

// Live returns the number of live allocations.
func (h *Heap) Live() int { return len(h.lens) }

// Malloc allocates [addr, addr+n) and records its length.
func (h *Heap) Malloc(addr, n uint64) error {
	if err := h.t.Allocate(addr, n); err != nil {
		return err
	}
	h.lens[addr] = n
	return nil
}

// Free releases the live allocation starting at addr.
func (h *Heap) Free(addr uint64) error {
	n, ok := h.lens[addr]
	if !ok {
		return accessErr(KindInvalidFree, addr, 0)
	}
	if err := h.t.Free(addr, n); err != nil {
		return err
	}
	delete(h.lens, addr)
	return nil
}

// Predict returns the verdict Apply would produce, without side effects.
func (h *Heap) Predict(op Op) error {
	if op.Kind != OpFree {
		return h.t.Predict(op)
	}
	n, ok := h.lens[op.Addr]
	if !ok {
		return accessErr(KindInvalidFree, op.Addr, 0)
	}
	return h.t.Predict(Free(op.Addr, n))
}

// Apply dispatches op. Malloc and free go through the side table; everything
// else goes straight to the tracker.
func (h *Heap) Apply(op Op) error {
	switch op.Kind {
	case OpMalloc:
		return h.Malloc(op.Addr, op.Len)
	case OpFree:
		return h.Free(op.Addr)
	case OpRead, OpWrite, OpGrowStack, OpShrinkStack:
		return h.t.Apply(op)
	default:
		return fmt.Errorf("shadow: unsupported operation %v", op.Kind)
	}
}
