package generator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSource_ResumesSequence(t *testing.T) {
	src := NewSource(9, 0)
	rng := rand.New(src)
	for i := 0; i < 7; i++ {
		rng.Float64()
	}
	rng.Intn(10)
	rng.NormFloat64()
	want := []float64{rng.Float64(), rng.Float64()}

	resumed := NewSource(9, src.Draws()-2)
	rr := rand.New(resumed)
	assert.Equal(t, want, []float64{rr.Float64(), rr.Float64()})
	assert.Equal(t, src.Draws(), resumed.Draws())
}

func TestSource_SeedResetsCount(t *testing.T) {
	src := NewSource(1, 5)
	assert.Equal(t, int64(5), src.Draws())

	src.Seed(1)
	assert.Equal(t, int64(0), src.Draws())
	assert.Equal(t, rand.NewSource(1).Int63(), src.Int63())
}
