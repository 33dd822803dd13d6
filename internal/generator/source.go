package generator

import "math/rand"

// Source is a seeded rand.Source that counts the values it has produced.
// A generator serialized with its seed and Draws resumes the same sequence
// when reloaded, instead of replaying candidates it already proposed.
//
// Source does not implement rand.Source64, so every value a
// rand.Rand consumes goes through Int63 and is counted.
type Source struct {
	src   rand.Source
	draws int64
}

// NewSource seeds a source and advances it past draws values.
func NewSource(seed, draws int64) *Source {
	s := &Source{src: rand.NewSource(seed)}
	for s.draws < draws {
		s.Int63()
	}
	return s
}

// Int63 implements rand.Source.
func (s *Source) Int63() int64 {
	s.draws++
	return s.src.Int63()
}

// Seed implements rand.Source and resets the count.
func (s *Source) Seed(seed int64) {
	s.src.Seed(seed)
	s.draws = 0
}

// Draws returns the number of values produced since seeding.
func (s *Source) Draws() int64 { return s.draws }
