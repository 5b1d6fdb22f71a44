package opseq

import (
	"errors"

	"github.com/joshuapare/shadowkit/shadow"
	"github.com/joshuapare/shadowkit/shadow/oracle"
)

// errNoRoom stops a valid sequence when no free heap range can be found.
var errNoRoom = errors.New("opseq: no free heap range")

// generator picks operations from live state, tracked with its own oracle.
type generator struct {
	cfg   Config
	src   Source
	model *oracle.Oracle

	// written maps a live allocation to the length of its initialized prefix.
	written map[uint64]uint64
}

func newGenerator(cfg Config, src Source) *generator {
	model, err := oracle.New(cfg.Layout)
	if err != nil {
		// Config.Validate already checked the layout.
		panic(err)
	}
	return &generator{cfg: cfg, src: src, model: model, written: make(map[uint64]uint64)}
}

func (g *generator) next() (shadow.Op, error) {
	var (
		op  shadow.Op
		err error
	)
	if g.cfg.Mode == ModeBuggy {
		op, err = g.nextBuggy()
	} else {
		op, err = g.nextValid()
	}
	if err != nil {
		return shadow.Op{}, err
	}
	g.observe(op)
	return op, nil
}

// observe advances the generator's model past op.
func (g *generator) observe(op shadow.Op) {
	switch op.Kind {
	case shadow.OpWrite:
		if a, ok := g.model.Registry().Lookup(op.Addr); ok && op.Len <= a.Len {
			g.written[op.Addr] = max(g.written[op.Addr], op.Len)
		}
		return
	case shadow.OpRead:
		return
	}
	if g.model.Predict(op) != nil {
		return
	}
	_ = g.model.Commit(op)
	switch op.Kind {
	case shadow.OpMalloc:
		g.written[op.Addr] = 0
	case shadow.OpFree:
		delete(g.written, op.Addr)
	}
}

func (g *generator) layout() shadow.Layout { return g.cfg.Layout }

func (g *generator) nextBuggy() (shadow.Op, error) {
	l := g.layout()
	choice, err := between(g.src, 0, 5)
	if err != nil {
		return shadow.Op{}, err
	}
	switch choice {
	case 0, 1:
		addr, err := g.anyAddr(1)
		if err != nil {
			return shadow.Op{}, err
		}
		n, err := g.anyLen()
		if err != nil {
			return shadow.Op{}, err
		}
		return shadow.Malloc(addr, n), nil
	case 2:
		random, err := ratio(g.src, 1, 2)
		if err != nil {
			return shadow.Op{}, err
		}
		if !random && g.model.Registry().Len() > 0 {
			a, err := g.liveAllocation()
			if err != nil {
				return shadow.Op{}, err
			}
			return shadow.Free(a.Addr, 0), nil
		}
		addr, err := g.anyAddr(0)
		if err != nil {
			return shadow.Op{}, err
		}
		return shadow.Free(addr, 0), nil
	case 3:
		write, err := ratio(g.src, 1, 2)
		if err != nil {
			return shadow.Op{}, err
		}
		addr, err := g.anyAddr(0)
		if err != nil {
			return shadow.Op{}, err
		}
		n, err := g.anyLen()
		if err != nil {
			return shadow.Op{}, err
		}
		if write {
			return shadow.Write(addr, n), nil
		}
		return shadow.Read(addr, n), nil
	default:
		n, err := between(g.src, 0, l.MaxStackSize)
		if err != nil {
			return shadow.Op{}, err
		}
		if choice == 4 {
			return shadow.GrowStack(n), nil
		}
		return shadow.ShrinkStack(n), nil
	}
}

// anyAddr returns an address in [lo, mem_size-1].
func (g *generator) anyAddr(lo uint64) (uint64, error) {
	hi := g.layout().MemSize - 1
	if lo > hi {
		lo = hi
	}
	return between(g.src, lo, hi)
}

// anyLen returns either a short length or one spanning the address space.
func (g *generator) anyLen() (uint64, error) {
	short, err := ratio(g.src, 1, 2)
	if err != nil {
		return 0, err
	}
	hi := max(g.layout().MemSize-1, 1)
	if short {
		hi = min(hi, g.cfg.MaxLen)
	}
	return between(g.src, 1, hi)
}

type validKind int

const (
	validMalloc validKind = iota
	validFree
	validWrite
	validRead
	validGrow
	validShrink
	validStackAccess
)

func (g *generator) nextValid() (shadow.Op, error) {
	l := g.layout()
	sp := g.model.StackPointer()
	live := g.model.Registry().Len()

	kinds := []validKind{}
	// The first heap byte is never allocatable.
	if l.HeapSize() > 1 {
		kinds = append(kinds, validMalloc)
	}
	if live > 0 {
		kinds = append(kinds, validFree, validWrite)
		if g.anyWritten() {
			kinds = append(kinds, validRead)
		}
	}
	if sp > 0 {
		kinds = append(kinds, validGrow)
	}
	if sp < l.MaxStackSize {
		kinds = append(kinds, validShrink, validStackAccess)
	}
	if len(kinds) == 0 {
		return shadow.Op{}, errNoRoom
	}

	i, err := g.src.Uint64n(uint64(len(kinds)))
	if err != nil {
		return shadow.Op{}, err
	}
	switch kinds[i] {
	case validMalloc:
		op, err := g.pickFreeRange()
		if errors.Is(err, errNoRoom) && live > 0 {
			a, err := g.liveAllocation()
			if err != nil {
				return shadow.Op{}, err
			}
			return shadow.Free(a.Addr, 0), nil
		}
		return op, err
	case validFree:
		a, err := g.liveAllocation()
		if err != nil {
			return shadow.Op{}, err
		}
		return shadow.Free(a.Addr, 0), nil
	case validWrite:
		a, err := g.liveAllocation()
		if err != nil {
			return shadow.Op{}, err
		}
		n, err := between(g.src, 1, min(a.Len, g.cfg.MaxLen))
		if err != nil {
			return shadow.Op{}, err
		}
		return shadow.Write(a.Addr, n), nil
	case validRead:
		return g.pickReadable()
	case validGrow:
		n, err := between(g.src, 1, sp)
		if err != nil {
			return shadow.Op{}, err
		}
		return shadow.GrowStack(n), nil
	case validShrink:
		n, err := between(g.src, 1, l.MaxStackSize-sp)
		if err != nil {
			return shadow.Op{}, err
		}
		return shadow.ShrinkStack(n), nil
	default:
		return g.pickStackAccess()
	}
}

func (g *generator) anyWritten() bool {
	for _, n := range g.written {
		if n > 0 {
			return true
		}
	}
	return false
}

func (g *generator) liveAllocation() (oracle.Allocation, error) {
	reg := g.model.Registry()
	i, err := g.src.Uint64n(uint64(reg.Len()))
	if err != nil {
		return oracle.Allocation{}, err
	}
	a, _ := reg.At(int(i))
	return a, nil
}

// pickFreeRange finds an unallocated heap address and a length that stays
// clear of the next allocation.
func (g *generator) pickFreeRange() (shadow.Op, error) {
	l := g.layout()
	reg := g.model.Registry()
	lo, hi := l.MaxStackSize+1, l.MemSize-1
	for range mallocAttempts {
		addr, err := between(g.src, lo, hi)
		if err != nil {
			return shadow.Op{}, err
		}
		if _, taken := reg.Containing(addr); taken {
			continue
		}
		limit := l.MemSize
		if next, ok := reg.Next(addr); ok {
			limit = next.Addr
		}
		n, err := between(g.src, 1, min(limit-addr, g.cfg.MaxLen))
		if err != nil {
			return shadow.Op{}, err
		}
		return shadow.Malloc(addr, n), nil
	}
	return shadow.Op{}, errNoRoom
}

// pickReadable returns a read inside an initialized prefix.
func (g *generator) pickReadable() (shadow.Op, error) {
	var candidates []oracle.Allocation
	for _, a := range g.model.Allocations() {
		if w := g.written[a.Addr]; w > 0 {
			candidates = append(candidates, oracle.Allocation{Addr: a.Addr, Len: w})
		}
	}
	i, err := g.src.Uint64n(uint64(len(candidates)))
	if err != nil {
		return shadow.Op{}, err
	}
	a := candidates[i]
	off, err := between(g.src, 0, a.Len-1)
	if err != nil {
		return shadow.Op{}, err
	}
	n, err := between(g.src, 1, min(a.Len-off, g.cfg.MaxLen))
	if err != nil {
		return shadow.Op{}, err
	}
	return shadow.Read(a.Addr+off, n), nil
}

// pickStackAccess returns a read or write inside the live stack frame.
func (g *generator) pickStackAccess() (shadow.Op, error) {
	l := g.layout()
	sp := g.model.StackPointer()
	addr, err := between(g.src, sp, l.MaxStackSize-1)
	if err != nil {
		return shadow.Op{}, err
	}
	n, err := between(g.src, 1, min(l.MaxStackSize-addr, g.cfg.MaxLen))
	if err != nil {
		return shadow.Op{}, err
	}
	write, err := ratio(g.src, 1, 2)
	if err != nil {
		return shadow.Op{}, err
	}
	if write {
		return shadow.Write(addr, n), nil
	}
	return shadow.Read(addr, n), nil
}
