package marble

import "unicode/utf16"

// StringHash folds a string into 32-bit state and yields avalanche-mixed
// values from it. Only the first value is used as a stream seed.
type StringHash struct {
	h uint32
}

// NewStringHash hashes key one UTF-16 code unit at a time so that keys
// outside the BMP hash the same way as in browser implementations.
func NewStringHash(key string) *StringHash {
	units := utf16.Encode([]rune(key))

	h := uint32(1779033703) ^ uint32(len(units))
	for _, c := range units {
		h = (h ^ uint32(c)) * 3432918353
		h = h<<13 | h>>19
	}
	return &StringHash{h: h}
}

// Next finalizes the current state and returns it. Each call mutates the
// state, so successive calls return different values.
func (s *StringHash) Next() uint32 {
	h := s.h
	h = (h ^ h>>16) * 2246822507
	h = (h ^ h>>13) * 3266489909
	h ^= h >> 16
	s.h = h
	return h
}

// SeedFromString returns the first finalized value of key's hash.
func SeedFromString(key string) uint32 {
	return NewStringHash(key).Next()
}

// Stream is a small counter-based generator producing uniform floats in
// [0,1). It is not safe for concurrent use and must not be shared between
// generation runs.
type Stream struct {
	state uint32
	draws int
}

func NewStream(seed uint32) *Stream {
	return &Stream{state: seed}
}

func NewStreamFromKey(key string) *Stream {
	return NewStream(SeedFromString(key))
}

func (s *Stream) Uint32() uint32 {
	s.state += 0x6D2B79F5
	s.draws++

	t := s.state
	t = (t ^ t>>15) * (t | 1)
	t ^= t + (t^t>>7)*(t|61)
	return t ^ t>>14
}

func (s *Stream) Float64() float64 {
	return float64(s.Uint32()) / 4294967296
}

// Draws reports how many values have been consumed.
func (s *Stream) Draws() int {
	return s.draws
}
