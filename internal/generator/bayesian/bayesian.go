// Package bayesian provides model-based generators: a Gaussian-process
// surrogate per output and an acquisition function maximized over a random
// candidate set.
//
// Three variants are registered, differing only in the acquisition function:
// upper_confidence_bound, expected_improvement and probability_of_improvement.
// Each supports exactly one objective. Constraints are modelled like the
// objective and enter the acquisition as a feasibility probability.
//
// Kernel hyperparameters are fixed, not fitted. They are saved as blob files
// next to the config document and reloaded from the same path.
package bayesian

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/roach88/xopt/internal/blob"
	"github.com/roach88/xopt/internal/generator"
	"github.com/roach88/xopt/internal/table"
	"github.com/roach88/xopt/internal/vocs"
)

// Registered type names.
const (
	UpperConfidenceBound     = "upper_confidence_bound"
	ExpectedImprovement      = "expected_improvement"
	ProbabilityOfImprovement = "probability_of_improvement"
)

// VarianceSuffix marks an optional column holding the observation variance
// of the output it is appended to, e.g. "y_var" for "y".
const VarianceSuffix = "_var"

// Defaults applied to zero-valued Config fields.
const (
	DefaultNInitial      = 3
	DefaultNumCandidates = 256
	DefaultBeta          = 2.0
	DefaultXi            = 0.01
)

func init() {
	for _, kind := range []string{UpperConfidenceBound, ExpectedImprovement, ProbabilityOfImprovement} {
		generator.MustRegister(kind, factory(kind))
	}
}

func factory(kind string) generator.Factory {
	return func(v *vocs.VOCS, params generator.Params, blobs blob.Store) (generator.Generator, error) {
		var cfg Config
		if err := generator.DecodeParams(params, &cfg); err != nil {
			return nil, err
		}
		return New(kind, v, cfg, blobs)
	}
}

// Config holds the params shared by the Bayesian variants.
type Config struct {
	// NInitial is the number of valid observations required before the
	// model is used. Fewer falls back to random sampling.
	NInitial int `yaml:"n_initial,omitempty" json:"n_initial,omitempty"`
	// NumCandidates is the size of the random set the acquisition function
	// is maximized over.
	NumCandidates int `yaml:"num_candidates,omitempty" json:"num_candidates,omitempty"`
	// Beta trades exploration for exploitation in upper_confidence_bound.
	Beta float64 `yaml:"beta,omitempty" json:"beta,omitempty"`
	// Xi is the improvement margin for the improvement-based variants.
	Xi   float64 `yaml:"xi,omitempty" json:"xi,omitempty"`
	Seed *int64  `yaml:"seed,omitempty" json:"seed,omitempty"`
	// Draws advances the seeded sequence past values already consumed.
	Draws int64 `yaml:"draws,omitempty" json:"draws,omitempty"`
	// Kernels maps output names to stored kernel hyperparameters.
	Kernels map[string]blob.Ref `yaml:"kernels,omitempty" json:"kernels,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.NInitial == 0 {
		c.NInitial = DefaultNInitial
	}
	if c.NumCandidates == 0 {
		c.NumCandidates = DefaultNumCandidates
	}
	if c.Beta == 0 {
		c.Beta = DefaultBeta
	}
	if c.Xi == 0 {
		c.Xi = DefaultXi
	}
}

func (c *Config) validate() error {
	switch {
	case c.NInitial < 1:
		return fmt.Errorf("n_initial must be >= 1, got %d", c.NInitial)
	case c.NumCandidates < 1:
		return fmt.Errorf("num_candidates must be >= 1, got %d", c.NumCandidates)
	case c.Beta < 0 || math.IsNaN(c.Beta):
		return fmt.Errorf("beta must be >= 0, got %v", c.Beta)
	case c.Xi < 0 || math.IsNaN(c.Xi):
		return fmt.Errorf("xi must be >= 0, got %v", c.Xi)
	case c.Draws < 0:
		return fmt.Errorf("draws must be >= 0, got %d", c.Draws)
	}
	return nil
}

// Generator is a single-objective Bayesian optimization generator.
type Generator struct {
	kind      string
	vocs      *vocs.VOCS
	cfg       Config
	objective string
	weight    float64
	seed      int64
	kernels   map[string]Kernel
	src       *generator.Source
	rng       *rand.Rand
	data      *generator.Dataset
}

// New creates a Bayesian generator of the given kind.
func New(kind string, v *vocs.VOCS, cfg Config, blobs blob.Store) (*Generator, error) {
	switch kind {
	case UpperConfidenceBound, ExpectedImprovement, ProbabilityOfImprovement:
	default:
		return nil, fmt.Errorf("unknown acquisition %q", kind)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if len(v.Objectives) != 1 {
		return nil, fmt.Errorf("%s supports exactly one objective, got %d", kind, len(v.Objectives))
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	g := &Generator{
		kind:      kind,
		vocs:      v,
		cfg:       cfg,
		objective: v.ObjectiveNames()[0],
		weight:    v.ObjectiveWeights()[0],
		kernels:   make(map[string]Kernel),
		data:      generator.NewDataset(),
	}

	outputs := g.modelOutputs()
	for _, name := range outputs {
		g.kernels[name] = DefaultKernel()
	}
	for name, ref := range cfg.Kernels {
		if _, ok := g.kernels[name]; !ok {
			return nil, fmt.Errorf("kernel for %q: not an objective or constraint", name)
		}
		var k Kernel
		if err := blobs.Load(ref, &k); err != nil {
			return nil, fmt.Errorf("kernel for %q: %w", name, err)
		}
		if err := k.validate(); err != nil {
			return nil, fmt.Errorf("kernel for %q: %w", name, err)
		}
		g.kernels[name] = k
	}

	g.seed = time.Now().UnixNano()
	if cfg.Seed != nil {
		g.seed = *cfg.Seed
	}
	g.src = generator.NewSource(g.seed, cfg.Draws)
	g.rng = rand.New(g.src)
	return g, nil
}

// modelOutputs lists the objective followed by constraints.
func (g *Generator) modelOutputs() []string {
	return append([]string{g.objective}, g.vocs.ConstraintNames()...)
}

// SetKernel replaces the kernel hyperparameters for an output.
func (g *Generator) SetKernel(output string, k Kernel) error {
	if _, ok := g.kernels[output]; !ok {
		return fmt.Errorf("kernel for %q: not an objective or constraint", output)
	}
	if err := k.validate(); err != nil {
		return err
	}
	g.kernels[output] = k
	return nil
}

// Kernel returns the hyperparameters used for an output.
func (g *Generator) Kernel(output string) (Kernel, bool) {
	k, ok := g.kernels[output]
	return k, ok
}

// AddData implements generator.Generator.
func (g *Generator) AddData(rows []table.Row) error {
	_, err := g.data.Add(rows)
	return err
}

// Data returns the rows seen so far.
func (g *Generator) Data() *table.Table { return g.data.Table() }

// Generate implements generator.Generator. Until NInitial valid objective
// observations exist, candidates are drawn uniformly.
func (g *Generator) Generate(n int) ([]table.Record, error) {
	if n < 0 {
		return nil, fmt.Errorf("candidate count must be >= 0, got %d", n)
	}
	if n == 0 {
		return nil, nil
	}

	obj := g.trainingData(g.objective)
	if len(obj.y) < g.cfg.NInitial {
		return g.vocs.RandomInputs(g.rng, n, true), nil
	}

	objModel, err := fitGP(g.kernels[g.objective], obj.x, obj.y, obj.yvar)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", g.objective, err)
	}

	type constraintModel struct {
		c  vocs.Constraint
		gp *gaussianProcess
	}
	var cons []constraintModel
	for _, name := range g.vocs.ConstraintNames() {
		td := g.trainingData(name)
		if len(td.y) == 0 {
			continue
		}
		gp, err := fitGP(g.kernels[name], td.x, td.y, td.yvar)
		if err != nil {
			return nil, fmt.Errorf("fit %s: %w", name, err)
		}
		cons = append(cons, constraintModel{c: g.vocs.Constraints[name], gp: gp})
	}

	best := g.bestObserved()
	dim := g.vocs.NVariables()
	m := max(g.cfg.NumCandidates, n)

	cands := make([][]float64, m)
	scores := make([]float64, m)
	for i := range cands {
		x := make([]float64, dim)
		for j := range x {
			x[j] = g.rng.Float64()
		}
		cands[i] = x

		mean, variance := objModel.predict(x)
		scores[i] = g.acquire(g.weight*mean, math.Sqrt(variance), best)
	}

	if len(cons) > 0 {
		// UCB can be negative; shift so feasibility weighting keeps order.
		if g.kind == UpperConfidenceBound {
			lo := scores[0]
			for _, s := range scores[1:] {
				lo = math.Min(lo, s)
			}
			for i := range scores {
				scores[i] -= lo
			}
		}
		for i, x := range cands {
			for _, cm := range cons {
				mean, variance := cm.gp.predict(x)
				scores[i] *= feasibility(cm.c, mean, math.Sqrt(variance))
			}
		}
	}

	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	out := make([]table.Record, n)
	for i := range out {
		rec := g.vocs.Denormalize(cands[order[i]])
		for k, c := range g.vocs.Constants {
			rec[k] = c
		}
		out[i] = rec
	}
	return out, nil
}

func (g *Generator) acquire(mean, sd, best float64) float64 {
	switch g.kind {
	case UpperConfidenceBound:
		return upperConfidenceBound(mean, sd, g.cfg.Beta)
	case ExpectedImprovement:
		return expectedImprovement(mean, sd, best, g.cfg.Xi)
	default:
		return probabilityOfImprovement(mean, sd, best, g.cfg.Xi)
	}
}

type trainingSet struct {
	x    [][]float64
	y    []float64
	yvar []float64
	recs []table.Record
}

// trainingData collects rows with all variables and the named output
// present. Missing, NaN or infinite values exclude a row.
func (g *Generator) trainingData(output string) trainingSet {
	var ts trainingSet
	hasVar := false
	for _, row := range g.data.Table().Rows() {
		x, ok := g.vocs.Normalize(row.Values)
		if !ok {
			continue
		}
		y, ok := row.Values.Float(output)
		if !ok || math.IsInf(y, 0) {
			continue
		}
		yv, ok := row.Values.Float(output + VarianceSuffix)
		if ok {
			hasVar = true
		} else {
			yv = 0
		}
		ts.x = append(ts.x, x)
		ts.y = append(ts.y, y)
		ts.yvar = append(ts.yvar, math.Max(yv, 0))
		ts.recs = append(ts.recs, row.Values)
	}
	if !hasVar {
		ts.yvar = nil
	}
	return ts
}

// bestObserved returns the best weighted objective value, preferring
// feasible observations.
func (g *Generator) bestObserved() float64 {
	td := g.trainingData(g.objective)
	best, bestFeasible := math.Inf(-1), math.Inf(-1)
	for i, y := range td.y {
		wy := g.weight * y
		best = math.Max(best, wy)
		if g.vocs.Feasible(td.recs[i]) {
			bestFeasible = math.Max(bestFeasible, wy)
		}
	}
	if !math.IsInf(bestFeasible, -1) {
		return bestFeasible
	}
	return best
}

// Type implements generator.Serializable.
func (g *Generator) Type() string { return g.kind }

// Config implements generator.Serializable. Kernels are written to blobs
// named after their output and referenced by path. The sequence position is
// recorded so a reload does not repeat earlier random candidates.
func (g *Generator) Config(blobs blob.Store) (any, error) {
	cfg := g.cfg
	seed := g.seed
	cfg.Seed = &seed
	cfg.Draws = g.src.Draws()
	cfg.Kernels = make(map[string]blob.Ref, len(g.kernels))

	var errs []error
	for _, name := range g.modelOutputs() {
		ref, err := blobs.Save("kernel_"+name, g.kernels[name])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cfg.Kernels[name] = ref
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}
