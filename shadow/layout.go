package shadow

import (
	"fmt"
	"math"
)

// MaxMemSize caps the address space. The tracker keeps one byte of state per
// address, so larger layouts are rejected up front.
const MaxMemSize uint64 = 1 << 32

// Layout fixes the address space: [0, MaxStackSize) is the stack region and
// [MaxStackSize, MemSize) is the heap region.
type Layout struct {
	MemSize      uint64
	MaxStackSize uint64
}

// DefaultLayout is a 640 KiB address space with a 1 KiB stack.
func DefaultLayout() Layout {
	return Layout{MemSize: 640 * 1024, MaxStackSize: 1024}
}

// Validate checks the layout can back a tracker.
func (l Layout) Validate() error {
	if l.MemSize == 0 {
		return fmt.Errorf("%w: mem_size must be positive", ErrBadLayout)
	}
	if l.MemSize > MaxMemSize || l.MemSize > math.MaxInt {
		return fmt.Errorf("%w: mem_size %d exceeds maximum %d", ErrBadLayout, l.MemSize, min(MaxMemSize, uint64(math.MaxInt)))
	}
	if l.MaxStackSize > l.MemSize {
		return fmt.Errorf("%w: max_stack_size %d exceeds mem_size %d", ErrBadLayout, l.MaxStackSize, l.MemSize)
	}
	return nil
}

// InBounds reports whether [addr, addr+n) is a non-empty range inside
// [0, MemSize). The check never computes addr+n, so it cannot wrap.
func (l Layout) InBounds(addr, n uint64) bool {
	if n == 0 || addr >= l.MemSize {
		return false
	}
	return n <= l.MemSize-addr
}

// InHeap reports whether [addr, addr+n) may be heap-allocated: in bounds and
// starting strictly above MaxStackSize.
func (l Layout) InHeap(addr, n uint64) bool {
	return addr > l.MaxStackSize && l.InBounds(addr, n)
}

// HeapSize returns the number of bytes in the heap region.
func (l Layout) HeapSize() uint64 { return l.MemSize - l.MaxStackSize }
