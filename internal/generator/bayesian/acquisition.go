package bayesian

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/roach88/xopt/internal/vocs"
)

// Acquisition functions work in maximization form: callers multiply the
// objective mean by its direction weight first.

func upperConfidenceBound(mean, sd, beta float64) float64 {
	return mean + math.Sqrt(beta)*sd
}

func expectedImprovement(mean, sd, best, xi float64) float64 {
	imp := mean - best - xi
	if sd <= 0 {
		return math.Max(imp, 0)
	}
	z := imp / sd
	return imp*distuv.UnitNormal.CDF(z) + sd*distuv.UnitNormal.Prob(z)
}

func probabilityOfImprovement(mean, sd, best, xi float64) float64 {
	imp := mean - best - xi
	if sd <= 0 {
		if imp > 0 {
			return 1
		}
		return 0
	}
	return distuv.UnitNormal.CDF(imp / sd)
}

// feasibility is the probability that a constraint holds under a normal
// posterior with the given mean and standard deviation.
func feasibility(c vocs.Constraint, mean, sd float64) float64 {
	if sd <= 0 {
		if c.Satisfied(mean) {
			return 1
		}
		return 0
	}
	p := distuv.UnitNormal.CDF((c.Value - mean) / sd)
	if c.Kind == vocs.GreaterThan {
		return 1 - p
	}
	return p
}
