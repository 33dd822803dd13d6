package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xopt/internal/table"
)

func TestBuiltins(t *testing.T) {
	ctx := context.Background()

	out, err := Sphere(ctx, table.Record{"x1": 1.0, "x2": 2, "label": "a"})
	require.NoError(t, err)
	assert.Equal(t, 5.0, out["y"])

	out, err = Rosenbrock(ctx, table.Record{"x1": 1.0, "x2": 1.0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out["y"])

	out, err = Rosenbrock(ctx, table.Record{"x1": 0.0, "x2": 0.0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out["y"])

	_, err = Rosenbrock(ctx, table.Record{"x1": 0.0})
	assert.Error(t, err)

	out, err = ConstrainedQuadratic(ctx, table.Record{"x1": 0.5, "x2": 1.0})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, out["y"], 1e-12)
	assert.InDelta(t, 1.5, out["c"], 1e-12)

	_, err = Sphere(ctx, table.Record{"label": "a"})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{"sphere", "rosenbrock", "constrained_quadratic"} {
		fn, err := LookupFunc(name)
		require.NoError(t, err, name)
		assert.NotNil(t, fn)
	}
	assert.Subset(t, FuncNames(), []string{"constrained_quadratic", "rosenbrock", "sphere"})

	_, err := LookupFunc("nope")
	assert.ErrorIs(t, err, ErrFuncNotFound)

	assert.ErrorIs(t, RegisterFunc("sphere", Sphere), ErrFuncExists)
	assert.Error(t, RegisterFunc("", Sphere))
	assert.Error(t, RegisterFunc("nil_func", nil))
}
