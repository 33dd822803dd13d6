// Package vocs describes an optimization problem: its input variables and
// their domains, the objectives to minimize or maximize, the constraints on
// outputs, and any extra observables to record.
//
// Names are returned sorted so every consumer sees the same column order.
package vocs

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/xopt/internal/table"
)

// Direction is an objective's optimization direction.
type Direction string

const (
	Minimize Direction = "MINIMIZE"
	Maximize Direction = "MAXIMIZE"
)

// ConstraintKind selects the comparison a constraint applies.
type ConstraintKind string

const (
	LessThan    ConstraintKind = "LESS_THAN"
	GreaterThan ConstraintKind = "GREATER_THAN"
)

// Bounds is an inclusive [lower, upper] variable domain.
type Bounds [2]float64

// Lower returns the lower bound.
func (b Bounds) Lower() float64 { return b[0] }

// Upper returns the upper bound.
func (b Bounds) Upper() float64 { return b[1] }

// Width returns upper - lower.
func (b Bounds) Width() float64 { return b[1] - b[0] }

// Constraint requires an output to stay on one side of Value.
type Constraint struct {
	Kind  ConstraintKind
	Value float64
}

// Satisfied reports whether v meets the constraint. NaN never does.
func (c Constraint) Satisfied(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	switch c.Kind {
	case LessThan:
		return v < c.Value
	case GreaterThan:
		return v > c.Value
	default:
		return false
	}
}

// Violation returns a signed distance that is <= 0 when satisfied.
func (c Constraint) Violation(v float64) float64 {
	if c.Kind == GreaterThan {
		return c.Value - v
	}
	return v - c.Value
}

// ErrInvalid marks VOCS validation failures.
var ErrInvalid = errors.New("invalid vocs")

// VOCS is the declarative problem description.
type VOCS struct {
	Variables   map[string]Bounds     `yaml:"variables" json:"variables"`
	Constants   map[string]any        `yaml:"constants,omitempty" json:"constants,omitempty"`
	Objectives  map[string]Direction  `yaml:"objectives,omitempty" json:"objectives,omitempty"`
	Constraints map[string]Constraint `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Observables []string              `yaml:"observables,omitempty" json:"observables,omitempty"`
}

// Validate checks domains, directions and naming.
func (v *VOCS) Validate() error {
	if v == nil {
		return fmt.Errorf("%w: nil", ErrInvalid)
	}
	if len(v.Variables) == 0 {
		return fmt.Errorf("%w: at least one variable is required", ErrInvalid)
	}

	for name, b := range v.Variables {
		if err := checkName(name); err != nil {
			return err
		}
		if math.IsNaN(b[0]) || math.IsNaN(b[1]) || math.IsInf(b[0], 0) || math.IsInf(b[1], 0) {
			return fmt.Errorf("%w: variable %q has non-finite bounds", ErrInvalid, name)
		}
		if b[0] >= b[1] {
			return fmt.Errorf("%w: variable %q lower bound %g must be less than upper bound %g", ErrInvalid, name, b[0], b[1])
		}
	}
	for name := range v.Constants {
		if err := checkName(name); err != nil {
			return err
		}
		if _, ok := v.Variables[name]; ok {
			return fmt.Errorf("%w: %q is both a variable and a constant", ErrInvalid, name)
		}
	}
	for name, d := range v.Objectives {
		if err := checkName(name); err != nil {
			return err
		}
		if d != Minimize && d != Maximize {
			return fmt.Errorf("%w: objective %q has unknown direction %q", ErrInvalid, name, d)
		}
	}
	for name, c := range v.Constraints {
		if err := checkName(name); err != nil {
			return err
		}
		if c.Kind != LessThan && c.Kind != GreaterThan {
			return fmt.Errorf("%w: constraint %q has unknown kind %q", ErrInvalid, name, c.Kind)
		}
	}
	for _, name := range v.Observables {
		if err := checkName(name); err != nil {
			return err
		}
	}
	for _, name := range v.OutputNames() {
		if _, ok := v.Variables[name]; ok {
			return fmt.Errorf("%w: %q is both a variable and an output", ErrInvalid, name)
		}
	}
	return nil
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalid)
	}
	if !norm.NFC.IsNormalString(name) {
		return fmt.Errorf("%w: name %q is not NFC normalized", ErrInvalid, name)
	}
	if name == table.ErrorFlagColumn || name == table.ErrorMessageColumn {
		return fmt.Errorf("%w: name %q is reserved", ErrInvalid, name)
	}
	return nil
}

// NormalizeNames rewrites every name to NFC form. Decoded documents may carry
// decomposed unicode that would otherwise fail Validate.
func (v *VOCS) NormalizeNames() {
	v.Variables = normalizeKeys(v.Variables)
	v.Constants = normalizeKeys(v.Constants)
	v.Objectives = normalizeKeys(v.Objectives)
	v.Constraints = normalizeKeys(v.Constraints)
	for i, name := range v.Observables {
		v.Observables[i] = norm.NFC.String(name)
	}
}

func normalizeKeys[T any](m map[string]T) map[string]T {
	if m == nil {
		return nil
	}
	out := make(map[string]T, len(m))
	for k, val := range m {
		out[norm.NFC.String(k)] = val
	}
	return out
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// VariableNames returns the sorted variable names.
func (v *VOCS) VariableNames() []string { return sortedKeys(v.Variables) }

// ConstantNames returns the sorted constant names.
func (v *VOCS) ConstantNames() []string { return sortedKeys(v.Constants) }

// ObjectiveNames returns the sorted objective names.
func (v *VOCS) ObjectiveNames() []string { return sortedKeys(v.Objectives) }

// ConstraintNames returns the sorted constraint names.
func (v *VOCS) ConstraintNames() []string { return sortedKeys(v.Constraints) }

// OutputNames returns objectives, then constraints, then observables,
// without duplicates.
func (v *VOCS) OutputNames() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(names ...string) {
		for _, n := range names {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	add(v.ObjectiveNames()...)
	add(v.ConstraintNames()...)
	add(v.Observables...)
	return out
}

// NVariables returns the number of variables.
func (v *VOCS) NVariables() int { return len(v.Variables) }

// Bounds returns variable bounds in VariableNames order.
func (v *VOCS) Bounds() []Bounds {
	names := v.VariableNames()
	out := make([]Bounds, len(names))
	for i, n := range names {
		out[i] = v.Variables[n]
	}
	return out
}

// RandomInputs draws n uniform samples from the variable domain.
func (v *VOCS) RandomInputs(rng *rand.Rand, n int, includeConstants bool) []table.Record {
	names := v.VariableNames()
	out := make([]table.Record, n)
	for i := range out {
		rec := make(table.Record, len(names)+len(v.Constants))
		for _, name := range names {
			b := v.Variables[name]
			rec[name] = b.Lower() + rng.Float64()*b.Width()
		}
		if includeConstants {
			for k, c := range v.Constants {
				rec[k] = c
			}
		}
		out[i] = rec
	}
	return out
}

// ObjectiveWeights returns +1 for MAXIMIZE and -1 for MINIMIZE objectives in
// ObjectiveNames order, so that weighted sums are always maximized.
func (v *VOCS) ObjectiveWeights() []float64 {
	names := v.ObjectiveNames()
	w := make([]float64, len(names))
	for i, n := range names {
		if v.Objectives[n] == Maximize {
			w[i] = 1
		} else {
			w[i] = -1
		}
	}
	return w
}

// Feasible reports whether every constraint holds for rec.
// Missing constraint outputs count as infeasible.
func (v *VOCS) Feasible(rec table.Record) bool {
	for name, c := range v.Constraints {
		f, ok := rec.Float(name)
		if !ok || !c.Satisfied(f) {
			return false
		}
	}
	return true
}

// Normalize maps variable values into the unit cube, in VariableNames order.
// ok is false if any variable is missing or non-numeric.
func (v *VOCS) Normalize(rec table.Record) (x []float64, ok bool) {
	names := v.VariableNames()
	x = make([]float64, len(names))
	for i, n := range names {
		f, present := rec.Float(n)
		if !present {
			return nil, false
		}
		b := v.Variables[n]
		x[i] = (f - b.Lower()) / b.Width()
	}
	return x, true
}

// Denormalize maps a unit-cube point back into a record of variable values.
func (v *VOCS) Denormalize(x []float64) table.Record {
	names := v.VariableNames()
	rec := make(table.Record, len(names))
	for i, n := range names {
		b := v.Variables[n]
		rec[n] = b.Lower() + x[i]*b.Width()
	}
	return rec
}

// Clone returns a deep copy.
func (v *VOCS) Clone() *VOCS {
	if v == nil {
		return nil
	}
	out := &VOCS{
		Variables:   make(map[string]Bounds, len(v.Variables)),
		Observables: append([]string(nil), v.Observables...),
	}
	for k, b := range v.Variables {
		out.Variables[k] = b
	}
	if v.Constants != nil {
		out.Constants = make(map[string]any, len(v.Constants))
		for k, c := range v.Constants {
			out.Constants[k] = c
		}
	}
	if v.Objectives != nil {
		out.Objectives = make(map[string]Direction, len(v.Objectives))
		for k, d := range v.Objectives {
			out.Objectives[k] = d
		}
	}
	if v.Constraints != nil {
		out.Constraints = make(map[string]Constraint, len(v.Constraints))
		for k, c := range v.Constraints {
			out.Constraints[k] = c
		}
	}
	return out
}
