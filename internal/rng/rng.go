// Package rng provides a seeded random source with independent named
// substreams. A substream is a pure function of (seed, name), so adding or
// reordering draws in one part of the engine cannot shift the values another
// part observes. That property is what makes whole-session output
// reproducible from a single seed.
package rng

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
)

// Source derives substreams from a fixed seed.
type Source struct {
	seed int64
}

// New constructs a Source for the given seed.
func New(seed int64) *Source {
	return &Source{seed: seed}
}

// Seed returns the seed this source was built from.
func (s *Source) Seed() int64 { return s.seed }

// Substream returns an independent deterministic stream identified by name.
// Streams for distinct names do not share state; calling Substream twice with
// the same name yields streams that produce identical sequences.
func (s *Source) Substream(name string) *Stream {
	h := fnv.New64a()
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(uint64(s.seed) >> (8 * i))
	}
	h.Write(buf[:])
	h.Write([]byte(name))
	hi := h.Sum64()
	// Second word from a domain-separated hash so the PCG state is not
	// seeded with a duplicated value.
	h.Write([]byte{0xff})
	lo := h.Sum64()

	return &Stream{rand: rand.New(rand.NewPCG(hi, lo))}
}

// Stream is a deterministic generator for one (signal type, entity) pair.
type Stream struct {
	rand *rand.Rand
}

// Float64 returns a uniform value in [0, 1).
func (st *Stream) Float64() float64 { return st.rand.Float64() }

// IntN returns a uniform int in [0, n). n must be positive.
func (st *Stream) IntN(n int) int { return st.rand.IntN(n) }

// Int64Range returns a uniform int64 in [lo, hi]. Swapped bounds are
// normalised.
func (st *Stream) Int64Range(lo, hi int64) int64 {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + st.rand.Int64N(hi-lo+1)
}

// Range returns a uniform float64 in [lo, hi).
func (st *Stream) Range(lo, hi float64) float64 {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + st.rand.Float64()*(hi-lo)
}

// Normal returns a normally distributed value with the given mean and
// standard deviation.
func (st *Stream) Normal(mean, stddev float64) float64 {
	return mean + st.rand.NormFloat64()*stddev
}

// LogNormal samples a log-normal distribution; used for response-time style
// jitter where long tails are expected.
func (st *Stream) LogNormal(mu, sigma float64) float64 {
	return math.Exp(mu + sigma*st.rand.NormFloat64())
}

// WeightedIndex draws an index proportionally to the supplied weights.
// Non-positive weights are treated as zero; if all weights are zero the
// first index is returned.
func (st *Stream) WeightedIndex(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return 0
	}
	target := st.rand.Float64() * total
	acc := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		if target < acc {
			return i
		}
	}
	return len(weights) - 1
}

// Read fills p with deterministic bytes, satisfying io.Reader so UUIDs can
// be minted from the stream. It never fails.
func (st *Stream) Read(p []byte) (int, error) {
	for i := 0; i < len(p); i += 8 {
		v := st.rand.Uint64()
		for j := 0; j < 8 && i+j < len(p); j++ {
			p[i+j] = byte(v >> (8 * j))
		}
	}
	return len(p), nil
}

const hexDigits = "0123456789abcdef"

// Hex returns n deterministic lower-case hex characters, the id material for
// trace and span ids.
func (st *Stream) Hex(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = hexDigits[st.rand.IntN(16)]
	}
	return string(b)
}
