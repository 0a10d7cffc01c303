package model

import (
	"fmt"
	"math"

	"traffic-predictor/internal/features"
	"traffic-predictor/internal/traffic"
)

// Linear maps a scaled feature vector to a predicted traffic time in seconds.
type Linear struct {
	Features  []string  `json:"features"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	// Excluded lists features held out of the fit; their weights are zero.
	Excluded []string `json:"excluded_features,omitempty"`
}

// Raw returns intercept + Σ weight_i * scaled_i without clamping.
func (m Linear) Raw(scaled features.Vector) (float64, error) {
	if len(scaled) != len(m.Weights) {
		return 0, fmt.Errorf("%w: vector has %d dimensions, model has %d weights", traffic.ErrSchemaMismatch, len(scaled), len(m.Weights))
	}
	sum := m.Intercept
	for i, w := range m.Weights {
		sum += w * scaled[i]
	}
	return sum, nil
}

// Predict returns the linear prediction floored at zero seconds.
func (m Linear) Predict(scaled features.Vector) (float64, error) {
	raw, err := m.Raw(scaled)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(raw) {
		return 0, fmt.Errorf("model produced NaN for input %v", scaled)
	}
	return math.Max(0, raw), nil
}

// Validate checks a deserialized model against the current feature schema.
func (m Linear) Validate() error {
	if err := features.CheckSchema(m.Features); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if len(m.Weights) != features.Dim {
		return fmt.Errorf("%w: model has %d weights, want %d", traffic.ErrSchemaMismatch, len(m.Weights), features.Dim)
	}
	for _, name := range m.Excluded {
		i := features.Index(name)
		if i < 0 {
			return fmt.Errorf("%w: unknown excluded feature %q", traffic.ErrSchemaMismatch, name)
		}
		if m.Weights[i] != 0 {
			return fmt.Errorf("model: excluded feature %q has non-zero weight %v", name, m.Weights[i])
		}
	}
	return nil
}
