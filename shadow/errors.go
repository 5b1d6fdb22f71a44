package shadow

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds indicates a byte range outside the addressable region,
	// or an allocation that does not lie strictly above the stack region.
	ErrOutOfBounds = errors.New("shadow: out of bounds")

	// ErrDoubleMalloc indicates an allocation overlapping a live allocation.
	ErrDoubleMalloc = errors.New("shadow: double malloc")

	// ErrInvalidRead indicates a read of unallocated or uninitialized bytes.
	ErrInvalidRead = errors.New("shadow: invalid read")

	// ErrInvalidWrite indicates a write to unallocated bytes.
	ErrInvalidWrite = errors.New("shadow: invalid write")

	// ErrDoubleFree indicates a free of a range holding unallocated bytes.
	ErrDoubleFree = errors.New("shadow: double free")

	// ErrInvalidFree indicates an address-only free with no live allocation
	// starting at that address.
	ErrInvalidFree = errors.New("shadow: invalid free")

	// ErrBadLayout indicates an unusable mem_size/max_stack_size pair.
	ErrBadLayout = errors.New("shadow: bad layout")
)

// Kind classifies a rejected operation.
type Kind int

const (
	KindOutOfBounds Kind = iota + 1
	KindDoubleMalloc
	KindInvalidRead
	KindInvalidWrite
	KindDoubleFree
	KindInvalidFree
)

var kindNames = map[Kind]string{
	KindOutOfBounds:  "out-of-bounds",
	KindDoubleMalloc: "double-malloc",
	KindInvalidRead:  "invalid-read",
	KindInvalidWrite: "invalid-write",
	KindDoubleFree:   "double-free",
	KindInvalidFree:  "invalid-free",
}

// Kinds lists every error kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindOutOfBounds,
		KindDoubleMalloc,
		KindInvalidRead,
		KindInvalidWrite,
		KindDoubleFree,
		KindInvalidFree,
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind resolves a kind from its String form.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("shadow: unknown error kind %q", s)
}

// sentinel returns the package-level error a kind unwraps to.
func (k Kind) sentinel() error {
	switch k {
	case KindOutOfBounds:
		return ErrOutOfBounds
	case KindDoubleMalloc:
		return ErrDoubleMalloc
	case KindInvalidRead:
		return ErrInvalidRead
	case KindInvalidWrite:
		return ErrInvalidWrite
	case KindDoubleFree:
		return ErrDoubleFree
	case KindInvalidFree:
		return ErrInvalidFree
	default:
		return nil
	}
}

// AccessError reports a rejected operation together with the requested
// range (not the first conflicting byte).
type AccessError struct {
	Kind Kind
	Addr uint64
	Len  uint64
}

func (e *AccessError) Error() string {
	if e.Kind == KindInvalidFree {
		return fmt.Sprintf("%s at 0x%X", e.Kind, e.Addr)
	}
	return fmt.Sprintf("%s at 0x%X (%d bytes)", e.Kind, e.Addr, e.Len)
}

// Unwrap lets errors.Is match the sentinel for the error's kind.
func (e *AccessError) Unwrap() error {
	return e.Kind.sentinel()
}

func accessErr(k Kind, addr, n uint64) error {
	return &AccessError{Kind: k, Addr: addr, Len: n}
}

// KindOf returns the kind of err, or 0 when err is not an *AccessError.
func KindOf(err error) Kind {
	var ae *AccessError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}

// SameVerdict reports whether two operation results are identical: both nil,
// or both access errors with equal kind, address and length.
func SameVerdict(a, b error) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	var ea, eb *AccessError
	if !errors.As(a, &ea) || !errors.As(b, &eb) {
		return false
	}
	return *ea == *eb
}
