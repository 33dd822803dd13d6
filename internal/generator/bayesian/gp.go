package bayesian

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minVariance keeps predictive variance strictly positive.
const minVariance = 1e-12

// Kernel holds fixed RBF hyperparameters for one output model, in the unit
// cube input space and standardized output space.
type Kernel struct {
	Lengthscale float64 `json:"lengthscale"`
	Variance    float64 `json:"variance"`
	Noise       float64 `json:"noise"`
}

// DefaultKernel is used for outputs without a stored kernel.
func DefaultKernel() Kernel {
	return Kernel{Lengthscale: 0.25, Variance: 1, Noise: 1e-4}
}

func (k Kernel) validate() error {
	if !(k.Lengthscale > 0) || math.IsInf(k.Lengthscale, 0) {
		return fmt.Errorf("kernel lengthscale must be positive, got %v", k.Lengthscale)
	}
	if !(k.Variance > 0) || math.IsInf(k.Variance, 0) {
		return fmt.Errorf("kernel variance must be positive, got %v", k.Variance)
	}
	if !(k.Noise >= 0) || math.IsInf(k.Noise, 0) {
		return fmt.Errorf("kernel noise must be >= 0, got %v", k.Noise)
	}
	return nil
}

// eval is the RBF kernel k(a, b) = variance * exp(-|a-b|^2 / (2 l^2)).
func (k Kernel) eval(a, b []float64) float64 {
	var d2 float64
	for i := range a {
		d := (a[i] - b[i]) / k.Lengthscale
		d2 += d * d
	}
	return k.Variance * math.Exp(-0.5*d2)
}

// gaussianProcess is an exact GP regression model fitted once on a fixed
// training set. Not safe for concurrent fitting; prediction is read-only.
type gaussianProcess struct {
	kernel Kernel
	x      [][]float64
	alpha  *mat.VecDense
	chol   mat.Cholesky

	// Output standardization.
	mean, scale float64
}

// fitGP conditions a GP on (x, y). yvar, if non-nil, adds per-point
// observation variance on top of the kernel noise.
func fitGP(k Kernel, x [][]float64, y, yvar []float64) (*gaussianProcess, error) {
	n := len(x)
	if n == 0 {
		return nil, errors.New("no training data")
	}
	if len(y) != n || (yvar != nil && len(yvar) != n) {
		return nil, fmt.Errorf("training data length mismatch: x=%d y=%d", n, len(y))
	}

	mean, scale := stat.MeanStdDev(y, nil)
	if n < 2 || !(scale > 0) || math.IsInf(scale, 0) {
		scale = 1
	}

	gp := &gaussianProcess{kernel: k, x: x, mean: mean, scale: scale}

	ys := make([]float64, n)
	for i, v := range y {
		ys[i] = (v - mean) / scale
	}

	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := k.eval(x[i], x[j])
			if i == j {
				v += k.Noise + minVariance
				if yvar != nil {
					v += yvar[i] / (scale * scale)
				}
			}
			K.SetSym(i, j, v)
		}
	}
	if ok := gp.chol.Factorize(K); !ok {
		return nil, errors.New("kernel matrix is not positive definite")
	}

	gp.alpha = mat.NewVecDense(n, nil)
	if err := gp.chol.SolveVecTo(gp.alpha, mat.NewVecDense(n, ys)); err != nil {
		return nil, fmt.Errorf("solve for weights: %w", err)
	}
	return gp, nil
}

// predict returns the posterior mean and variance at x in output units.
func (gp *gaussianProcess) predict(x []float64) (mean, variance float64) {
	n := len(gp.x)
	ks := mat.NewVecDense(n, nil)
	for i := range gp.x {
		ks.SetVec(i, gp.kernel.eval(x, gp.x[i]))
	}

	mu := mat.Dot(ks, gp.alpha)

	variance = gp.kernel.Variance
	v := mat.NewVecDense(n, nil)
	if err := gp.chol.SolveVecTo(v, ks); err == nil {
		variance -= mat.Dot(ks, v)
	}
	variance = math.Max(variance, minVariance)

	return mu*gp.scale + gp.mean, variance * gp.scale * gp.scale
}
