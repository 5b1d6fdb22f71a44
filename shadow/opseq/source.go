package opseq

import (
	"errors"
	"math/bits"
	"math/rand/v2"
)

// ErrExhausted is returned by a byte-driven Source once its input is used up.
var ErrExhausted = errors.New("opseq: source exhausted")

// Source yields bounded random integers.
type Source interface {
	// Uint64n returns a value in [0, n). n must be positive.
	Uint64n(n uint64) (uint64, error)
}

// NewSeedSource returns an endless Source seeded with seed.
func NewSeedSource(seed uint64) Source {
	return &seedSource{r: rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))}
}

type seedSource struct {
	r *rand.Rand
}

func (s *seedSource) Uint64n(n uint64) (uint64, error) {
	if n == 0 {
		return 0, errors.New("opseq: empty range")
	}
	return s.r.Uint64N(n), nil
}

// NewByteSource returns a Source that draws from data, as fuzz input. Each
// draw consumes just enough bytes to cover n; a range of one consumes none.
func NewByteSource(data []byte) Source {
	return &byteSource{data: data}
}

type byteSource struct {
	data []byte
}

func (s *byteSource) Uint64n(n uint64) (uint64, error) {
	if n == 0 {
		return 0, errors.New("opseq: empty range")
	}
	if n == 1 {
		return 0, nil
	}
	need := (bits.Len64(n-1) + 7) / 8
	if len(s.data) < need {
		s.data = nil
		return 0, ErrExhausted
	}
	var v uint64
	for _, b := range s.data[:need] {
		v = v<<8 | uint64(b)
	}
	s.data = s.data[need:]
	return v % n, nil
}

// between returns a value in [lo, hi].
func between(src Source, lo, hi uint64) (uint64, error) {
	if hi < lo {
		return 0, errors.New("opseq: inverted range")
	}
	span := hi - lo
	if span == ^uint64(0) {
		v, err := src.Uint64n(span)
		return lo + v, err
	}
	v, err := src.Uint64n(span + 1)
	return lo + v, err
}

// ratio returns true with probability num/den.
func ratio(src Source, num, den uint64) (bool, error) {
	v, err := src.Uint64n(den)
	return v < num, err
}
