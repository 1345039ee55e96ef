// Package entropy provides deterministic random streams for the simulation.
// Every stochastic draw (machine-lifetime jitter, dividend-remainder order,
// shareholder sampling) comes from a firm-local or sector-local stream seeded
// from the run seed, so a run is exactly reproducible for a fixed seed.
package entropy

import "math/rand"

// Stream is a seeded random source owned by exactly one component. It is not
// safe for concurrent use; the simulation is single-threaded by design.
type Stream struct {
	rng *rand.Rand
}

// NewStream creates a stream from a seed.
func NewStream(seed int64) *Stream {
	return &Stream{rng: rand.New(rand.NewSource(seed))}
}

// Derive creates a child stream whose seed mixes this stream's state with a
// component tag. Used to hand each firm its own stream without the draw order
// of one firm perturbing another.
func (s *Stream) Derive(tag int64) *Stream {
	return NewStream(s.rng.Int63() ^ tag)
}

// Float returns a float64 in [0, 1).
func (s *Stream) Float() float64 {
	return s.rng.Float64()
}

// Intn returns an int in [0, n).
func (s *Stream) Intn(n int) int {
	return s.rng.Intn(n)
}

// NormalInt returns a normally distributed integer around mean with the given
// standard deviation, floored at min.
func (s *Stream) NormalInt(mean int, stdev float64, min int) int {
	v := int(float64(mean) + s.rng.NormFloat64()*stdev)
	if v < min {
		v = min
	}
	return v
}

// Perm returns a random permutation of [0, n).
func (s *Stream) Perm(n int) []int {
	return s.rng.Perm(n)
}
