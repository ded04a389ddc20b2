package fakergw

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

const bigPrime = 136279841

// Rand is an immutable pseudo-random number generator. For a given instance,
// [Rand.Uint64] always returns the same number; derive fresh instances with
// [Rand.Next] or [Rand.NextString] to walk the deterministic tree of values
// a seed spans.
type Rand struct {
	rng rand.PCG
}

var _ rand.Source = Rand{}

func NewRand(seed uint64) Rand {
	return Rand{rng: *rand.NewPCG(seed, 0)}
}

// Uint64 returns a pseudo-random uint64. For a given instance of [Rand],
// this always returns the same number.
func (r Rand) Uint64() uint64 {
	return r.rng.Uint64()
}

// Next derives a new [Rand] from this one and the given integer. The same
// instance and integer always derive the same new instance.
func (r Rand) Next(i uint64) Rand {
	seed := r.rng.Uint64()
	return Rand{rng: *rand.NewPCG(seed, i)}
}

// NextString derives a new [Rand] from this one and the given string. The
// same instance and string always derive the same new instance.
func (r Rand) NextString(s string) Rand {
	hash := md5.Sum([]byte(s))
	return r.Next(binary.BigEndian.Uint64(hash[:8]))
}

// Pick returns a pseudo-random element from the given list. Pick simulates
// picking element i from a shuffled version of the list, so for a fixed
// [Rand] and list, distinct indexes pick distinct elements.
func Pick[T any](r Rand, elements []T, i int) T {
	if len(elements) == 0 {
		panic("cannot pick from empty list")
	}
	if i >= len(elements) {
		panic(fmt.Sprintf("cannot pick item %d from list of size %d", i, len(elements)))
	}

	rng := r.rng
	index := ((bigPrime * i) + rand.New(&rng).Int()) % len(elements)
	return elements[index]
}
