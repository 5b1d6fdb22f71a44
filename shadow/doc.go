// Package shadow implements a byte-granularity memory-access validator.
//
// # Overview
//
// A Tracker shadows a fixed address space [0, MemSize). The low part
// [0, MaxStackSize) is the stack region and grows downward from
// MaxStackSize; the rest is the heap region. Every byte is in one of three
// states:
//
//	Unallocated       no owner; reading, writing or freeing it is an error
//	ValidToWrite      allocated, never written; reading it is an error
//	ValidToReadWrite  allocated and initialized
//
// The tracker never performs the accesses it validates. It only decides
// whether they are legal and updates shadow state when they are.
//
// # Operations
//
//	t, err := shadow.New(shadow.DefaultLayout())
//	if err != nil {
//	    return err
//	}
//
//	_ = t.Allocate(0x1000, 32) // bytes become ValidToWrite
//	_ = t.Write(0x1000, 4)     // first four become ValidToReadWrite
//	_ = t.Read(0x1000, 4)      // ok
//	err = t.Read(0x1004, 4)    // invalid-read: uninitialized
//	_ = t.Free(0x1000, 32)     // everything back to Unallocated
//
// Stack frames are reserved with GrowStack and released with ShrinkStack.
// Bytes of the live frame [StackPointer, MaxStackSize) are ValidToReadWrite.
//
// # Errors
//
// Rejected operations return *AccessError carrying the kind and the requested
// range. Each kind unwraps to a sentinel:
//
//	if errors.Is(err, shadow.ErrDoubleFree) { ... }
//
// # Freeing by address
//
// The tracker keeps no allocation identity, so Free needs the original
// length. Heap wraps a tracker with a side table of lengths and frees by
// start address, returning ErrInvalidFree for unknown addresses.
//
// # Prediction
//
// Tracker, Heap and the oracle package implement Predictor. Predict returns
// the verdict an operation would get without applying it; the driver package
// uses this to check a tracker against an independent model.
//
// # Thread Safety
//
// Nothing in this package is safe for concurrent use.
package shadow
