package oracle

import (
	"math"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
)

// Allocation is one live heap allocation.
type Allocation struct {
	Addr uint64
	Len  uint64
}

// End returns the first address past the allocation.
func (a Allocation) End() uint64 { return a.Addr + a.Len }

// Overlaps reports whether the half-open ranges intersect.
func (a Allocation) Overlaps(b Allocation) bool {
	return !(a.End() <= b.Addr || b.End() <= a.Addr)
}

// Registry is a set of non-overlapping allocations ordered by address.
type Registry struct {
	m *treemap.Map // uint64 addr -> uint64 len
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: treemap.NewWith(utils.UInt64Comparator)}
}

// Len returns the number of live allocations.
func (r *Registry) Len() int { return r.m.Size() }

// Lookup returns the allocation starting exactly at addr.
func (r *Registry) Lookup(addr uint64) (Allocation, bool) {
	v, ok := r.m.Get(addr)
	if !ok {
		return Allocation{}, false
	}
	return Allocation{Addr: addr, Len: v.(uint64)}, true
}

// Insert adds a. It does not check for overlap; callers insert only what
// PredictAllocate accepted.
func (r *Registry) Insert(a Allocation) {
	r.m.Put(a.Addr, a.Len)
}

// Remove deletes the allocation starting at addr.
func (r *Registry) Remove(addr uint64) bool {
	if _, ok := r.m.Get(addr); !ok {
		return false
	}
	r.m.Remove(addr)
	return true
}

// Overlapping returns a live allocation intersecting [addr, addr+n), if any.
// Records never overlap each other, so only the record with the greatest
// start at or below the last byte can intersect.
func (r *Registry) Overlapping(addr, n uint64) (Allocation, bool) {
	if n == 0 {
		return Allocation{}, false
	}
	last := addr + n - 1
	if last < addr {
		last = math.MaxUint64
	}
	k, v := r.m.Floor(last)
	if k == nil {
		return Allocation{}, false
	}
	a := Allocation{Addr: k.(uint64), Len: v.(uint64)}
	if a.End() <= addr {
		return Allocation{}, false
	}
	return a, true
}

// Containing returns the live allocation holding addr, if any.
func (r *Registry) Containing(addr uint64) (Allocation, bool) {
	return r.Overlapping(addr, 1)
}

// Next returns the first allocation starting at or after addr.
func (r *Registry) Next(addr uint64) (Allocation, bool) {
	k, v := r.m.Ceiling(addr)
	if k == nil {
		return Allocation{}, false
	}
	return Allocation{Addr: k.(uint64), Len: v.(uint64)}, true
}

// At returns the i-th allocation in address order.
func (r *Registry) At(i int) (Allocation, bool) {
	if i < 0 || i >= r.m.Size() {
		return Allocation{}, false
	}
	it := r.m.Iterator()
	for j := 0; it.Next(); j++ {
		if j == i {
			return Allocation{Addr: it.Key().(uint64), Len: it.Value().(uint64)}, true
		}
	}
	return Allocation{}, false
}

// All returns every allocation in address order.
func (r *Registry) All() []Allocation {
	out := make([]Allocation, 0, r.m.Size())
	it := r.m.Iterator()
	for it.Next() {
		out = append(out, Allocation{Addr: it.Key().(uint64), Len: it.Value().(uint64)})
	}
	return out
}
