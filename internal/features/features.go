// Package features turns route observations into the fixed-order numeric
// vector consumed by the scaler and the regression model.
package features

import (
	"fmt"
	"math"

	"traffic-predictor/internal/traffic"
)

// Dim is the number of features in every vector.
const Dim = 7

// Positions of each feature inside a Vector. The scaler and the model are
// fit positionally; never reorder these.
const (
	OriginLat = iota
	OriginLng
	DestinationLat
	DestinationLng
	TravelTime
	TrafficTime
	Distance
)

var names = [Dim]string{
	OriginLat:      "origin_lat",
	OriginLng:      "origin_lng",
	DestinationLat: "destination_lat",
	DestinationLng: "destination_lng",
	TravelTime:     "travel_time",
	TrafficTime:    "traffic_time",
	Distance:       "distance",
}

// Vector is an ordered feature vector. Length is Dim for any vector produced by Build.
type Vector []float64

// Names returns the feature names in vector order.
func Names() []string {
	out := make([]string, Dim)
	copy(out, names[:])
	return out
}

// Index returns the position of the named feature, or -1.
func Index(name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// CheckSchema verifies that a persisted feature-name list matches this build's ordering.
func CheckSchema(got []string) error {
	if len(got) != Dim {
		return fmt.Errorf("%w: %d feature names, want %d", traffic.ErrSchemaMismatch, len(got), Dim)
	}
	for i, n := range got {
		if n != names[i] {
			return fmt.Errorf("%w: feature %d is %q, want %q", traffic.ErrSchemaMismatch, i, n, names[i])
		}
	}
	return nil
}

// Build assembles the feature vector for obs. Every field is required; the
// traffic-time fallback is the provider adapter's job, not this one.
func Build(obs traffic.Observation) (Vector, error) {
	switch {
	case obs.Origin == nil:
		return nil, fmt.Errorf("%w: origin coordinates", traffic.ErrMissingInput)
	case obs.Destination == nil:
		return nil, fmt.Errorf("%w: destination coordinates", traffic.ErrMissingInput)
	case obs.TravelTime == nil:
		return nil, fmt.Errorf("%w: travel_time", traffic.ErrMissingInput)
	case obs.TrafficTime == nil:
		return nil, fmt.Errorf("%w: traffic_time", traffic.ErrMissingInput)
	}
	if err := obs.Origin.Validate(); err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	if err := obs.Destination.Validate(); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	if err := nonNegative("travel_time", *obs.TravelTime); err != nil {
		return nil, err
	}
	if err := nonNegative("traffic_time", *obs.TrafficTime); err != nil {
		return nil, err
	}
	if err := nonNegative("distance", obs.Distance); err != nil {
		return nil, err
	}

	v := make(Vector, Dim)
	v[OriginLat] = obs.Origin.Lat
	v[OriginLng] = obs.Origin.Lng
	v[DestinationLat] = obs.Destination.Lat
	v[DestinationLng] = obs.Destination.Lng
	v[TravelTime] = *obs.TravelTime
	v[TrafficTime] = *obs.TrafficTime
	v[Distance] = obs.Distance
	return v, nil
}

// BuildAll builds one vector per observation, failing on the first bad one.
func BuildAll(obs []traffic.Observation) ([]Vector, error) {
	out := make([]Vector, 0, len(obs))
	for i, o := range obs {
		v, err := Build(o)
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func nonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s must be a finite non-negative number, got %v", traffic.ErrInvalidInput, name, v)
	}
	return nil
}
