// Package seededrand provides a reproducible random stream derived from a seed string.
//
// The same seed string always yields the same sequence of draws, on every
// platform. A Source is not safe for concurrent use.
package seededrand

import (
	"math"
	"unicode/utf16"
)

const (
	multiplier = 1664525
	increment  = 1013904223
	modulus    = 1 << 32
)

// Source is a linear-congruential generator seeded from a string
type Source struct {
	state uint32
}

// New creates a source seeded from seed
func New(seed string) *Source {
	s := &Source{}
	s.Reset(seed)
	return s
}

// Reset reinitializes the source as if freshly constructed with seed
func (s *Source) Reset(seed string) {
	s.state = HashSeed(seed)
}

// HashSeed maps a seed string to the generator's initial state. Each UTF-16
// code unit is folded in order with h = h*31 + c in 32-bit arithmetic; the
// magnitude is kept and zero is bumped to 1.
func HashSeed(seed string) uint32 {
	var h int32
	for _, c := range utf16.Encode([]rune(seed)) {
		h = h*31 + int32(c)
	}
	mag := int64(h)
	if mag < 0 {
		mag = -mag
	}
	if mag == 0 {
		return 1
	}
	return uint32(mag)
}

// Next returns a float in [0,1) and advances the state
func (s *Source) Next() float64 {
	s.state = uint32((uint64(multiplier)*uint64(s.state) + increment) % modulus)
	return float64(s.state) / modulus
}

// NextInt returns min + floor(Next()*(max-min)), an integer in [min,max)
// when min < max. Reversed bounds round down as well, into (max,min].
func (s *Source) NextInt(min, max int) int {
	return min + int(math.Floor(s.Next()*float64(max-min)))
}

// Shuffle returns a shuffled copy of items. items is left untouched.
func Shuffle[T any](s *Source, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := s.NextInt(0, i+1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Choice returns one element of items. An empty slice yields the zero value
// without consuming a draw.
func Choice[T any](s *Source, items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[s.NextInt(0, len(items))]
}

// Sample returns n elements without replacement. When n covers the whole
// slice a copy in original order is returned and no draws are consumed.
func Sample[T any](s *Source, items []T, n int) []T {
	if n >= len(items) {
		out := make([]T, len(items))
		copy(out, items)
		return out
	}
	// a shuffle still runs for n <= 0 so the draw count depends only on len(items)
	return Shuffle(s, items)[:max(n, 0)]
}
