package shadow

import "fmt"

// OpKind names an operation the tracker validates.
type OpKind int

const (
	OpMalloc OpKind = iota + 1
	OpRead
	OpWrite
	OpFree
	OpGrowStack
	OpShrinkStack
)

var opNames = map[OpKind]string{
	OpMalloc:      "malloc",
	OpRead:        "read",
	OpWrite:       "write",
	OpFree:        "free",
	OpGrowStack:   "grow-stack",
	OpShrinkStack: "shrink-stack",
}

// OpKinds lists every operation kind in declaration order.
func OpKinds() []OpKind {
	return []OpKind{OpMalloc, OpRead, OpWrite, OpFree, OpGrowStack, OpShrinkStack}
}

func (k OpKind) String() string {
	if name, ok := opNames[k]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// ParseOpKind resolves an operation kind from its String form.
func ParseOpKind(s string) (OpKind, error) {
	for k, name := range opNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("shadow: unknown operation %q", s)
}

// Op is one candidate operation.
//
// For stack operations Len is the byte count and Addr is ignored. For OpFree,
// Len is only used by Tracker; Heap and the oracle free by address.
type Op struct {
	Kind OpKind
	Addr uint64
	Len  uint64
}

// Malloc returns an allocate operation.
func Malloc(addr, n uint64) Op { return Op{Kind: OpMalloc, Addr: addr, Len: n} }

// Read returns a read operation.
func Read(addr, n uint64) Op { return Op{Kind: OpRead, Addr: addr, Len: n} }

// Write returns a write operation.
func Write(addr, n uint64) Op { return Op{Kind: OpWrite, Addr: addr, Len: n} }

// Free returns a free operation. n may be zero when freeing through Heap.
func Free(addr, n uint64) Op { return Op{Kind: OpFree, Addr: addr, Len: n} }

// GrowStack returns a stack growth operation of n bytes.
func GrowStack(n uint64) Op { return Op{Kind: OpGrowStack, Len: n} }

// ShrinkStack returns a stack shrink operation of n bytes.
func ShrinkStack(n uint64) Op { return Op{Kind: OpShrinkStack, Len: n} }

func (o Op) String() string {
	switch o.Kind {
	case OpGrowStack, OpShrinkStack:
		return fmt.Sprintf("%s %d", o.Kind, o.Len)
	case OpFree:
		if o.Len == 0 {
			return fmt.Sprintf("free 0x%X", o.Addr)
		}
	}
	return fmt.Sprintf("%s 0x%X %d", o.Kind, o.Addr, o.Len)
}

// Predictor computes the verdict an operation would receive without
// applying it.
type Predictor interface {
	Predict(op Op) error
}

// Applier applies an operation and returns its verdict.
type Applier interface {
	Apply(op Op) error
}

var (
	_ Predictor = (*Tracker)(nil)
	_ Predictor = (*Heap)(nil)
	_ Applier   = (*Tracker)(nil)
	_ Applier   = (*Heap)(nil)
)
