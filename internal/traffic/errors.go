package traffic

import "errors"

// ErrMissingInput marks a request or observation lacking a required field.
var ErrMissingInput = errors.New("missing required input")

// ErrInvalidInput marks a field that is present but outside its domain.
var ErrInvalidInput = errors.New("invalid input")

// ErrUpstreamUnavailable marks a failed provider call or a non-OK provider status.
var ErrUpstreamUnavailable = errors.New("routing provider unavailable")

// ErrNoRoute marks a provider answer that is OK at the transport level but has no route.
var ErrNoRoute = errors.New("no route found")

// ErrDegenerateTrainingData marks a corpus that cannot produce a usable model
// (empty, too small to split, or a zero-variance feature dimension).
var ErrDegenerateTrainingData = errors.New("degenerate training data")

// ErrSchemaMismatch marks a feature vector whose dimensionality or ordering
// does not match what the scaler and model were fit with.
var ErrSchemaMismatch = errors.New("feature schema mismatch")

// Kind names the error class of err for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMissingInput):
		return "missing_input"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, ErrNoRoute):
		return "no_route"
	case errors.Is(err, ErrDegenerateTrainingData):
		return "degenerate_training_data"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	default:
		return "internal"
	}
}
