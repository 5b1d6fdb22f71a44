package shadow

import "fmt"

// Tracker holds one State per address and the stack pointer.
//
// Every mutator validates its whole range before touching any byte, so a
// rejected call leaves the tracker unchanged.
//
// NOT thread-safe.
type Tracker struct {
	layout Layout
	states []State
	sp     uint64

	// allocated counts bytes not in state Unallocated.
	allocated uint64
}

// New creates a tracker with every byte Unallocated and an empty stack.
func New(layout Layout) (*Tracker, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{
		layout: layout,
		states: make([]State, layout.MemSize),
		sp:     layout.MaxStackSize,
	}, nil
}

// MustNew is like New but panics on an invalid layout.
func MustNew(layout Layout) *Tracker {
	t, err := New(layout)
	if err != nil {
		panic(err)
	}
	return t
}

// Layout returns the fixed region layout.
func (t *Tracker) Layout() Layout { return t.layout }

// StackPointer returns the lowest address of the live stack frame.
func (t *Tracker) StackPointer() uint64 { return t.sp }

// State returns the state of addr; ok is false when addr is out of range.
func (t *Tracker) State(addr uint64) (State, bool) {
	if addr >= t.layout.MemSize {
		return Unallocated, false
	}
	return t.states[addr], true
}

// Allocate marks [addr, addr+n) ValidToWrite.
func (t *Tracker) Allocate(addr, n uint64) error {
	if err := t.checkAllocate(addr, n); err != nil {
		return err
	}
	t.fill(addr, n, ValidToWrite)
	return nil
}

// Read validates a read of [addr, addr+n). State is never changed.
func (t *Tracker) Read(addr, n uint64) error {
	return t.checkRead(addr, n)
}

// Write marks [addr, addr+n) ValidToReadWrite.
func (t *Tracker) Write(addr, n uint64) error {
	if err := t.checkWrite(addr, n); err != nil {
		return err
	}
	t.fill(addr, n, ValidToReadWrite)
	return nil
}

// Free marks [addr, addr+n) Unallocated. The caller supplies the length; see
// Heap for freeing by start address.
func (t *Tracker) Free(addr, n uint64) error {
	if err := t.checkFree(addr, n); err != nil {
		return err
	}
	t.fill(addr, n, Unallocated)
	return nil
}

// GrowStack extends the stack frame downward by n bytes.
func (t *Tracker) GrowStack(n uint64) error {
	if err := t.checkGrow(n); err != nil {
		return err
	}
	t.fill(t.sp-n, n, ValidToReadWrite)
	t.sp -= n
	return nil
}

// ShrinkStack releases n bytes from the bottom of the stack frame.
func (t *Tracker) ShrinkStack(n uint64) error {
	if err := t.checkShrink(n); err != nil {
		return err
	}
	t.fill(t.sp, n, Unallocated)
	t.sp += n
	return nil
}

// Predict returns the verdict Apply would produce, without side effects.
func (t *Tracker) Predict(op Op) error {
	switch op.Kind {
	case OpMalloc:
		return t.checkAllocate(op.Addr, op.Len)
	case OpRead:
		return t.checkRead(op.Addr, op.Len)
	case OpWrite:
		return t.checkWrite(op.Addr, op.Len)
	case OpFree:
		return t.checkFree(op.Addr, op.Len)
	case OpGrowStack:
		return t.checkGrow(op.Len)
	case OpShrinkStack:
		return t.checkShrink(op.Len)
	default:
		return fmt.Errorf("shadow: unsupported operation %v", op.Kind)
	}
}

// Apply dispatches op to the matching mutator.
func (t *Tracker) Apply(op Op) error {
	switch op.Kind {
	case OpMalloc:
		return t.Allocate(op.Addr, op.Len)
	case OpRead:
		return t.Read(op.Addr, op.Len)
	case OpWrite:
		return t.Write(op.Addr, op.Len)
	case OpFree:
		return t.Free(op.Addr, op.Len)
	case OpGrowStack:
		return t.GrowStack(op.Len)
	case OpShrinkStack:
		return t.ShrinkStack(op.Len)
	default:
		return fmt.Errorf("shadow: unsupported operation %v", op.Kind)
	}
}

func (t *Tracker) checkAllocate(addr, n uint64) error {
	if !t.layout.InHeap(addr, n) {
		return accessErr(KindOutOfBounds, addr, n)
	}
	if !t.all(addr, n, Unallocated) {
		return accessErr(KindDoubleMalloc, addr, n)
	}
	return nil
}

func (t *Tracker) checkRead(addr, n uint64) error {
	if !t.layout.InBounds(addr, n) {
		return accessErr(KindOutOfBounds, addr, n)
	}
	if !t.all(addr, n, ValidToReadWrite) {
		return accessErr(KindInvalidRead, addr, n)
	}
	return nil
}

func (t *Tracker) checkWrite(addr, n uint64) error {
	if !t.layout.InBounds(addr, n) {
		return accessErr(KindOutOfBounds, addr, n)
	}
	if t.any(addr, n, Unallocated) {
		return accessErr(KindInvalidWrite, addr, n)
	}
	return nil
}

func (t *Tracker) checkFree(addr, n uint64) error {
	if !t.layout.InBounds(addr, n) {
		return accessErr(KindOutOfBounds, addr, n)
	}
	if t.any(addr, n, Unallocated) {
		return accessErr(KindDoubleFree, addr, n)
	}
	return nil
}

func (t *Tracker) checkGrow(n uint64) error {
	if t.sp < n {
		return accessErr(KindOutOfBounds, t.sp, n)
	}
	return nil
}

func (t *Tracker) checkShrink(n uint64) error {
	if n > t.layout.MaxStackSize-t.sp {
		return accessErr(KindOutOfBounds, t.sp, n)
	}
	return nil
}

// all reports whether every byte of an in-bounds range is in state s.
func (t *Tracker) all(addr, n uint64, s State) bool {
	for _, st := range t.states[addr : addr+n] {
		if st != s {
			return false
		}
	}
	return true
}

// any reports whether some byte of an in-bounds range is in state s.
func (t *Tracker) any(addr, n uint64, s State) bool {
	for _, st := range t.states[addr : addr+n] {
		if st == s {
			return true
		}
	}
	return false
}

func (t *Tracker) fill(addr, n uint64, s State) {
	r := t.states[addr : addr+n]
	for i, old := range r {
		switch {
		case old == Unallocated && s != Unallocated:
			t.allocated++
		case old != Unallocated && s == Unallocated:
			t.allocated--
		}
		r[i] = s
	}
}

// Allocated returns how many bytes are not Unallocated, stack frame included.
// It is maintained incrementally and costs nothing to call.
func (t *Tracker) Allocated() uint64 { return t.allocated }

// Spans returns the address space as maximal runs of equal state, in
// address order.
func (t *Tracker) Spans() []Span {
	var spans []Span
	var start uint64
	for i := 1; i <= len(t.states); i++ {
		if i < len(t.states) && t.states[i] == t.states[start] {
			continue
		}
		spans = append(spans, Span{Addr: start, Len: uint64(i) - start, State: t.states[start]})
		start = uint64(i)
	}
	return spans
}

// SpansIn returns the spans clipped to [addr, addr+n).
func (t *Tracker) SpansIn(addr, n uint64) []Span {
	if !t.layout.InBounds(addr, n) {
		return nil
	}
	end := addr + n
	var out []Span
	for _, sp := range t.Spans() {
		if sp.End() <= addr || sp.Addr >= end {
			continue
		}
		lo, hi := max(sp.Addr, addr), min(sp.End(), end)
		out = append(out, Span{Addr: lo, Len: hi - lo, State: sp.State})
	}
	return out
}

// Count returns how many bytes are in state s.
func (t *Tracker) Count(s State) int {
	c := 0
	for _, st := range t.states {
		if st == s {
			c++
		}
	}
	return c
}
