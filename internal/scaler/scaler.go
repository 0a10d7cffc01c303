// Package scaler standardizes feature vectors with per-dimension statistics
// fit once over a training corpus.
//
// Params must only be applied to vectors built with the same feature schema
// they were fit on. Dimension order cannot be detected at runtime; length and
// the persisted feature names can, and both are checked.
package scaler

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"traffic-predictor/internal/features"
	"traffic-predictor/internal/traffic"
)

// constantTolerance bounds the relative spread under which a dimension is
// treated as constant.
const constantTolerance = 1e-12

// Params holds the fitted mean and population standard deviation per dimension.
type Params struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Std      []float64 `json:"std"`
}

// Fit computes per-dimension mean and standard deviation over samples.
// An empty corpus or a zero-variance dimension yields ErrDegenerateTrainingData.
func Fit(samples []features.Vector) (Params, error) {
	if len(samples) == 0 {
		return Params{}, fmt.Errorf("%w: empty corpus", traffic.ErrDegenerateTrainingData)
	}
	col := make([]float64, len(samples))
	p := Params{
		Features: features.Names(),
		Mean:     make([]float64, features.Dim),
		Std:      make([]float64, features.Dim),
	}
	for d := 0; d < features.Dim; d++ {
		for i, v := range samples {
			if len(v) != features.Dim {
				return Params{}, fmt.Errorf("%w: sample %d has %d dimensions, want %d", traffic.ErrSchemaMismatch, i, len(v), features.Dim)
			}
			col[i] = v[d]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if isConstant(mean, std) {
			return Params{}, fmt.Errorf("%w: feature %q has zero variance across %d samples", traffic.ErrDegenerateTrainingData, p.Features[d], len(samples))
		}
		p.Mean[d] = mean
		p.Std[d] = std
	}
	return p, nil
}

// Transform applies (x - mean) / std per dimension.
func (p Params) Transform(v features.Vector) (features.Vector, error) {
	if len(v) != len(p.Mean) || len(v) != len(p.Std) {
		return nil, fmt.Errorf("%w: vector has %d dimensions, scaler was fit on %d", traffic.ErrSchemaMismatch, len(v), len(p.Mean))
	}
	out := make(features.Vector, len(v))
	for i, x := range v {
		out[i] = (x - p.Mean[i]) / p.Std[i]
	}
	return out, nil
}

// TransformAll transforms every vector in order.
func (p Params) TransformAll(vs []features.Vector) ([]features.Vector, error) {
	out := make([]features.Vector, len(vs))
	for i, v := range vs {
		s, err := p.Transform(v)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// Validate checks a deserialized Params against the current feature schema.
func (p Params) Validate() error {
	if err := features.CheckSchema(p.Features); err != nil {
		return fmt.Errorf("scaler: %w", err)
	}
	if len(p.Mean) != features.Dim || len(p.Std) != features.Dim {
		return fmt.Errorf("%w: scaler has %d means and %d deviations, want %d", traffic.ErrSchemaMismatch, len(p.Mean), len(p.Std), features.Dim)
	}
	for i, s := range p.Std {
		if !(s > 0) || math.IsInf(s, 0) || math.IsNaN(p.Mean[i]) {
			return fmt.Errorf("%w: scaler dimension %q has std %v", traffic.ErrDegenerateTrainingData, p.Features[i], s)
		}
	}
	return nil
}

func isConstant(mean, std float64) bool {
	return std <= constantTolerance*math.Max(1, math.Abs(mean))
}
