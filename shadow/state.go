package shadow

// State is the shadow state of a single byte.
type State uint8

const (
	// Unallocated bytes belong to no live allocation or stack frame.
	Unallocated State = iota
	// ValidToWrite bytes are allocated but have never been written.
	ValidToWrite
	// ValidToReadWrite bytes are allocated and initialized.
	ValidToReadWrite
)

func (s State) String() string {
	switch s {
	case Unallocated:
		return "unallocated"
	case ValidToWrite:
		return "valid-to-write"
	case ValidToReadWrite:
		return "valid-to-read-write"
	default:
		return "unknown"
	}
}

// Span is a maximal run of bytes sharing one state.
type Span struct {
	Addr  uint64
	Len   uint64
	State State
}

// End returns the first address past the span.
func (s Span) End() uint64 { return s.Addr + s.Len }
