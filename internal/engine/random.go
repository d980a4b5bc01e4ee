package engine

import "math/rand/v2"

// Source supplies the random draws used by the day allocator.
type Source interface {
	// IntN returns a value in [0, n). n is always positive.
	IntN(n int) int
}

type systemSource struct{}

func (systemSource) IntN(n int) int {
	return rand.IntN(n)
}

// SystemSource returns the unseeded runtime source.
func SystemSource() Source {
	return systemSource{}
}

// NewSource returns a deterministic source for the given seed.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
