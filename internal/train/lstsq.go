package train

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"traffic-predictor/internal/features"
)

// rankTolerance is the singular-value cutoff relative to the largest one.
// Standardized columns keep genuine singular values far above it, while
// exactly collinear columns land near machine epsilon.
const rankTolerance = 1e-10

// leastSquares fits y ≈ intercept + Σ w_c x_c over the given columns. Inputs
// are centered first so the intercept is not shrunk, then the minimum-norm
// solution is taken from an SVD. Corpora built from a handful of fixed routes
// are rank deficient in the coordinate columns, so a plain normal-equation
// solve would be singular.
func leastSquares(xs []features.Vector, ys []float64, cols []int) ([]float64, float64, error) {
	n := len(xs)
	if n == 0 || len(ys) != n {
		return nil, 0, fmt.Errorf("least squares: %d rows and %d targets", n, len(ys))
	}
	weights := make([]float64, features.Dim)

	xMean := make([]float64, len(cols))
	for _, x := range xs {
		for j, c := range cols {
			xMean[j] += x[c]
		}
	}
	for j := range xMean {
		xMean[j] /= float64(n)
	}
	var yMean float64
	for _, y := range ys {
		yMean += y
	}
	yMean /= float64(n)

	if len(cols) == 0 {
		return weights, yMean, nil
	}

	a := mat.NewDense(n, len(cols), nil)
	b := mat.NewVecDense(n, nil)
	for i, x := range xs {
		for j, c := range cols {
			a.Set(i, j, x[c]-xMean[j])
		}
		b.SetVec(i, ys[i]-yMean)
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, 0, errors.New("least squares: SVD factorization failed")
	}
	rank := svd.Rank(rankTolerance)

	intercept := yMean
	if rank > 0 {
		var w mat.VecDense
		svd.SolveVecTo(&w, b, rank)
		for j, c := range cols {
			weights[c] = w.AtVec(j)
			intercept -= weights[c] * xMean[j]
		}
	}
	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, 0, errors.New("least squares: non-finite coefficient")
		}
	}
	return weights, intercept, nil
}
