package oracle

import (
	"errors"
	"fmt"

	"github.com/joshuapare/shadowkit/shadow"
)

// ErrNotModeled is returned by Predict for operations the oracle does not
// model (reads and writes). Their verdicts come from the tracker alone.
var ErrNotModeled = errors.New("oracle: operation not modeled")

// Oracle recomputes allocate/free and stack verdicts from a registry of live
// allocations and a modeled stack pointer. Predictions are pure; state only
// changes through Commit or the registry's Insert/Remove.
//
// NOT thread-safe.
type Oracle struct {
	layout shadow.Layout
	reg    *Registry
	sp     uint64
}

// New returns an oracle with no allocations and an empty stack.
func New(layout shadow.Layout) (*Oracle, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Oracle{layout: layout, reg: NewRegistry(), sp: layout.MaxStackSize}, nil
}

// Layout returns the fixed region layout.
func (o *Oracle) Layout() shadow.Layout { return o.layout }

// Registry exposes the live allocation registry.
func (o *Oracle) Registry() *Registry { return o.reg }

// Allocations returns the live allocations in address order.
func (o *Oracle) Allocations() []Allocation { return o.reg.All() }

// StackPointer returns the modeled stack pointer.
func (o *Oracle) StackPointer() uint64 { return o.sp }

// PredictAllocate predicts the verdict of allocating [addr, addr+n).
func (o *Oracle) PredictAllocate(addr, n uint64) error {
	if !o.layout.InHeap(addr, n) {
		return &shadow.AccessError{Kind: shadow.KindOutOfBounds, Addr: addr, Len: n}
	}
	if _, ok := o.reg.Overlapping(addr, n); ok {
		return &shadow.AccessError{Kind: shadow.KindDoubleMalloc, Addr: addr, Len: n}
	}
	return nil
}

// PredictFree predicts the verdict of freeing the allocation starting at addr.
func (o *Oracle) PredictFree(addr uint64) error {
	if _, ok := o.reg.Lookup(addr); !ok {
		return &shadow.AccessError{Kind: shadow.KindInvalidFree, Addr: addr}
	}
	return nil
}

// PredictGrowStack predicts the verdict of growing the stack by n bytes.
func (o *Oracle) PredictGrowStack(n uint64) error {
	if n > o.sp {
		return &shadow.AccessError{Kind: shadow.KindOutOfBounds, Addr: o.sp, Len: n}
	}
	return nil
}

// PredictShrinkStack predicts the verdict of shrinking the stack by n bytes.
func (o *Oracle) PredictShrinkStack(n uint64) error {
	if n > o.layout.MaxStackSize-o.sp {
		return &shadow.AccessError{Kind: shadow.KindOutOfBounds, Addr: o.sp, Len: n}
	}
	return nil
}

// Predict dispatches op to the matching prediction.
func (o *Oracle) Predict(op shadow.Op) error {
	switch op.Kind {
	case shadow.OpMalloc:
		return o.PredictAllocate(op.Addr, op.Len)
	case shadow.OpFree:
		return o.PredictFree(op.Addr)
	case shadow.OpGrowStack:
		return o.PredictGrowStack(op.Len)
	case shadow.OpShrinkStack:
		return o.PredictShrinkStack(op.Len)
	case shadow.OpRead, shadow.OpWrite:
		return ErrNotModeled
	default:
		return fmt.Errorf("oracle: unsupported operation %v", op.Kind)
	}
}

// Commit records an operation whose success has already been established.
// Committing an op that Predict rejects is an error and changes nothing.
func (o *Oracle) Commit(op shadow.Op) error {
	if err := o.Predict(op); err != nil {
		if errors.Is(err, ErrNotModeled) {
			return nil
		}
		return fmt.Errorf("oracle: commit %v: %w", op, err)
	}
	switch op.Kind {
	case shadow.OpMalloc:
		o.reg.Insert(Allocation{Addr: op.Addr, Len: op.Len})
	case shadow.OpFree:
		o.reg.Remove(op.Addr)
	case shadow.OpGrowStack:
		o.sp -= op.Len
	case shadow.OpShrinkStack:
		o.sp += op.Len
	}
	return nil
}
