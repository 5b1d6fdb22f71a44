package opseq

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/joshuapare/shadowkit/shadow"
)

// Mode selects what kind of sequence to generate.
type Mode int

const (
	// ModeValid generates only operations that must succeed.
	ModeValid Mode = iota + 1
	// ModeBuggy generates a mix of valid and invalid operations.
	ModeBuggy
)

func (m Mode) String() string {
	switch m {
	case ModeValid:
		return "valid"
	case ModeBuggy:
		return "buggy"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode resolves a mode from its String form.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "valid":
		return ModeValid, nil
	case "buggy":
		return ModeBuggy, nil
	default:
		return 0, fmt.Errorf("opseq: unknown mode %q (must be valid or buggy)", s)
	}
}

const (
	DefaultMaxOps = 20
	DefaultMaxLen = 4096

	// mallocAttempts bounds the search for an unallocated start address.
	mallocAttempts = 10
)

// Config parameterizes generation.
type Config struct {
	Layout shadow.Layout
	Mode   Mode

	// MaxOps bounds the sequence length; the length is drawn from [1, MaxOps].
	MaxOps int

	// MaxLen bounds the size of allocations and accesses picked from live
	// state. Buggy mode also draws lengths across the whole address space.
	MaxLen uint64
}

// DefaultConfig returns a valid-mode config over the default layout.
func DefaultConfig() Config {
	return Config{
		Layout: shadow.DefaultLayout(),
		Mode:   ModeValid,
		MaxOps: DefaultMaxOps,
		MaxLen: DefaultMaxLen,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	if c.Mode != ModeValid && c.Mode != ModeBuggy {
		return fmt.Errorf("opseq: invalid mode %d", int(c.Mode))
	}
	if c.MaxOps <= 0 {
		return errors.New("opseq: MaxOps must be positive")
	}
	if c.MaxLen == 0 {
		return errors.New("opseq: MaxLen must be positive")
	}
	return nil
}

// Sequence is a finite, lazily generated, restartable operation sequence.
// Every call to All starts over from the same seed or input bytes.
type Sequence struct {
	cfg       Config
	newSource func() Source
}

// FromSeed returns a sequence driven by a seeded PRNG.
func FromSeed(cfg Config, seed uint64) (*Sequence, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sequence{cfg: cfg, newSource: func() Source { return NewSeedSource(seed) }}, nil
}

// FromBytes returns a sequence driven by raw input, as from a fuzzer. The
// sequence ends early when data runs out.
func FromBytes(cfg Config, data []byte) (*Sequence, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	data = slices.Clone(data)
	return &Sequence{cfg: cfg, newSource: func() Source { return NewByteSource(data) }}, nil
}

// Config returns the generation parameters.
func (s *Sequence) Config() Config { return s.cfg }

// All yields the operations of the sequence.
func (s *Sequence) All() iter.Seq[shadow.Op] {
	return func(yield func(shadow.Op) bool) {
		src := s.newSource()
		n, err := between(src, 1, uint64(s.cfg.MaxOps))
		if err != nil {
			return
		}
		g := newGenerator(s.cfg, src)
		for range n {
			op, err := g.next()
			if err != nil {
				return
			}
			if !yield(op) {
				return
			}
		}
	}
}

// Collect materializes the sequence.
func (s *Sequence) Collect() []shadow.Op {
	return slices.Collect(s.All())
}
