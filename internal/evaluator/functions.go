package evaluator

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/roach88/xopt/internal/table"
)

// Built-in test functions. Each reads every numeric input in name order and
// ignores the rest, so constants such as labels pass through harmlessly.
func init() {
	mustRegister("sphere", Sphere)
	mustRegister("rosenbrock", Rosenbrock)
	mustRegister("constrained_quadratic", ConstrainedQuadratic)
}

// Sphere returns y = sum(x_i^2).
func Sphere(ctx context.Context, inputs table.Record) (table.Record, error) {
	xs, err := numericInputs(inputs)
	if err != nil {
		return nil, err
	}
	var y float64
	for _, x := range xs {
		y += x * x
	}
	return table.Record{"y": y}, nil
}

// Rosenbrock returns y = sum(100(x_{i+1} - x_i^2)^2 + (1 - x_i)^2).
// Needs at least two numeric inputs.
func Rosenbrock(ctx context.Context, inputs table.Record) (table.Record, error) {
	xs, err := numericInputs(inputs)
	if err != nil {
		return nil, err
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("rosenbrock needs at least 2 numeric inputs, got %d", len(xs))
	}
	var y float64
	for i := 0; i < len(xs)-1; i++ {
		a := xs[i+1] - xs[i]*xs[i]
		b := 1 - xs[i]
		y += 100*a*a + b*b
	}
	return table.Record{"y": y}, nil
}

// ConstrainedQuadratic returns y = sum((x_i - 0.5)^2) and c = sum(x_i).
// Pair it with a constraint on c to exercise feasibility handling.
func ConstrainedQuadratic(ctx context.Context, inputs table.Record) (table.Record, error) {
	xs, err := numericInputs(inputs)
	if err != nil {
		return nil, err
	}
	var y, c float64
	for _, x := range xs {
		d := x - 0.5
		y += d * d
		c += x
	}
	return table.Record{"y": y, "c": c}, nil
}

func numericInputs(inputs table.Record) ([]float64, error) {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	xs := make([]float64, 0, len(names))
	for _, name := range names {
		v, ok := table.ToFloat(inputs[name])
		if !ok {
			continue
		}
		if math.IsInf(v, 0) {
			return nil, fmt.Errorf("input %s is infinite", name)
		}
		xs = append(xs, v)
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("no numeric inputs")
	}
	return xs, nil
}
