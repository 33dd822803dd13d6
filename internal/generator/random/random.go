// Package random provides a generator that samples uniformly from the
// variable domain. It ignores completed data for proposals, but records it.
package random

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/roach88/xopt/internal/blob"
	"github.com/roach88/xopt/internal/generator"
	"github.com/roach88/xopt/internal/table"
	"github.com/roach88/xopt/internal/vocs"
)

// Name is the registered type name.
const Name = "random"

func init() {
	generator.MustRegister(Name, func(v *vocs.VOCS, params generator.Params, _ blob.Store) (generator.Generator, error) {
		var cfg Config
		if err := generator.DecodeParams(params, &cfg); err != nil {
			return nil, err
		}
		return New(v, cfg)
	})
}

// Config holds the random generator params.
type Config struct {
	// Seed fixes the sample sequence. Unset means seeded from the clock.
	Seed *int64 `yaml:"seed,omitempty" json:"seed,omitempty"`
	// Limit stops the generator after this many candidates. Zero is
	// unlimited.
	Limit int `yaml:"limit,omitempty" json:"limit,omitempty"`
	// Generated is the number of candidates already proposed, counted
	// against Limit.
	Generated int `yaml:"generated,omitempty" json:"generated,omitempty"`
	// Draws advances the seeded sequence past values already consumed.
	Draws int64 `yaml:"draws,omitempty" json:"draws,omitempty"`
}

// Generator draws uniform samples.
type Generator struct {
	vocs      *vocs.VOCS
	seed      int64
	limit     int
	generated int
	src       *generator.Source
	rng       *rand.Rand
	data      *generator.Dataset
}

// New creates a random generator for v.
func New(v *vocs.VOCS, cfg Config) (*Generator, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("limit must be >= 0, got %d", cfg.Limit)
	}
	if cfg.Generated < 0 || cfg.Draws < 0 {
		return nil, fmt.Errorf("generated and draws must be >= 0, got %d and %d", cfg.Generated, cfg.Draws)
	}
	seed := time.Now().UnixNano()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	src := generator.NewSource(seed, cfg.Draws)
	return &Generator{
		vocs:      v,
		seed:      seed,
		limit:     cfg.Limit,
		generated: cfg.Generated,
		src:       src,
		rng:       rand.New(src),
		data:      generator.NewDataset(),
	}, nil
}

// Generate implements generator.Generator.
func (g *Generator) Generate(n int) ([]table.Record, error) {
	if n < 0 {
		return nil, fmt.Errorf("candidate count must be >= 0, got %d", n)
	}
	if g.limit > 0 {
		n = min(n, g.limit-g.generated)
	}
	if n <= 0 {
		return nil, nil
	}
	g.generated += n
	return g.vocs.RandomInputs(g.rng, n, true), nil
}

// AddData implements generator.Generator.
func (g *Generator) AddData(rows []table.Row) error {
	_, err := g.data.Add(rows)
	return err
}

// Done implements generator.Finisher. Never true without a limit.
func (g *Generator) Done() bool {
	return g.limit > 0 && g.generated >= g.limit
}

// Data returns the rows seen so far.
func (g *Generator) Data() *table.Table { return g.data.Table() }

// Type implements generator.Serializable.
func (g *Generator) Type() string { return Name }

// Config implements generator.Serializable. The seed actually used is
// recorded together with the position in its sequence, so a reload
// continues where this generator stopped.
func (g *Generator) Config(blob.Store) (any, error) {
	seed := g.seed
	return Config{Seed: &seed, Limit: g.limit, Generated: g.generated, Draws: g.src.Draws()}, nil
}
