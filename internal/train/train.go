// Package train fits the scaler and the linear traffic-time model over a
// historical corpus and evaluates it on a held-out split.
package train

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"traffic-predictor/internal/features"
	"traffic-predictor/internal/model"
	"traffic-predictor/internal/scaler"
	"traffic-predictor/internal/traffic"
)

// Target is the feature the model is trained to predict.
const Target = features.TrafficTime

// Options controls the split and the feature set.
type Options struct {
	// TestFraction of rows held out for evaluation, in (0,1).
	TestFraction float64
	// Seed makes the split reproducible.
	Seed uint64
	// ExcludeTarget keeps traffic_time out of its own regressors. The column
	// stays in the vector and the scaler so the artifact keeps 7 dimensions;
	// only its weight is pinned to zero.
	ExcludeTarget bool
}

// DefaultOptions returns an 80/20 split with seed 42 and the target excluded.
func DefaultOptions() Options {
	return Options{TestFraction: 0.2, Seed: 42, ExcludeTarget: true}
}

// Metrics are computed on the held-out rows.
type Metrics struct {
	MAE       float64 `json:"mae"`
	MSE       float64 `json:"mse"`
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
}

// Result is a trained artifact and its evaluation.
type Result struct {
	Artifact *model.Artifact
	Metrics  Metrics
}

// Train builds features for every observation, fits the scaler over the whole
// corpus, splits, fits the regressor on the training rows and evaluates on
// the rest.
func Train(corpus []traffic.Observation, opts Options) (*Result, error) {
	vecs, err := features.BuildAll(corpus)
	if err != nil {
		return nil, err
	}
	if len(vecs) < 2 {
		return nil, fmt.Errorf("%w: %d observations, need at least 2 to split", traffic.ErrDegenerateTrainingData, len(vecs))
	}
	params, err := scaler.Fit(vecs)
	if err != nil {
		return nil, err
	}
	scaled, err := params.TransformAll(vecs)
	if err != nil {
		return nil, err
	}
	targets := make([]float64, len(vecs))
	for i, v := range vecs {
		targets[i] = v[Target]
	}

	trainIdx, testIdx, err := Split(len(vecs), opts.TestFraction, opts.Seed)
	if err != nil {
		return nil, err
	}

	cols := make([]int, 0, features.Dim)
	var excluded []string
	for d := 0; d < features.Dim; d++ {
		if opts.ExcludeTarget && d == Target {
			excluded = append(excluded, features.Names()[d])
			continue
		}
		cols = append(cols, d)
	}

	weights, intercept, err := leastSquares(pick(scaled, trainIdx), pickF(targets, trainIdx), cols)
	if err != nil {
		return nil, err
	}
	m := model.Linear{
		Features:  features.Names(),
		Weights:   weights,
		Intercept: intercept,
		Excluded:  excluded,
	}
	metrics, err := evaluate(m, pick(scaled, testIdx), pickF(targets, testIdx))
	if err != nil {
		return nil, err
	}
	metrics.TrainRows = len(trainIdx)

	return &Result{
		Artifact: &model.Artifact{Model: m, Scaler: params},
		Metrics:  metrics,
	}, nil
}

// Split returns disjoint train and test row indices. The test side has
// ceil(n*testFraction) rows; both sides must be non-empty.
func Split(n int, testFraction float64, seed uint64) (train, test []int, err error) {
	if !(testFraction > 0 && testFraction < 1) {
		return nil, nil, fmt.Errorf("%w: test fraction %v not in (0,1)", traffic.ErrInvalidInput, testFraction)
	}
	nTest := int(math.Ceil(float64(n) * testFraction))
	if nTest < 1 || n-nTest < 1 {
		return nil, nil, fmt.Errorf("%w: %d observations cannot be split with test fraction %v", traffic.ErrDegenerateTrainingData, n, testFraction)
	}
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	test = slices.Clone(perm[:nTest])
	train = slices.Clone(perm[nTest:])
	return train, test, nil
}

func evaluate(m model.Linear, xs []features.Vector, ys []float64) (Metrics, error) {
	var absSum, sqSum float64
	for i, x := range xs {
		// metrics are taken on the model's raw output, as the regressor sees it
		pred, err := m.Raw(x)
		if err != nil {
			return Metrics{}, err
		}
		diff := pred - ys[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
	}
	n := float64(len(xs))
	return Metrics{MAE: absSum / n, MSE: sqSum / n, TestRows: len(xs)}, nil
}

func pick(vs []features.Vector, idx []int) []features.Vector {
	out := make([]features.Vector, len(idx))
	for i, j := range idx {
		out[i] = vs[j]
	}
	return out
}

func pickF(vs []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = vs[j]
	}
	return out
}
