package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-predictor/internal/traffic"
)

func observation() traffic.Observation {
	return traffic.Observation{
		Origin:      &traffic.Coordinate{Lat: 43.6532, Lng: -79.3832},
		Destination: &traffic.Coordinate{Lat: 43.7001, Lng: -79.4163},
		TravelTime:  traffic.Seconds(600),
		TrafficTime: traffic.Seconds(780),
		Distance:    5.8,
	}
}

func TestBuildOrder(t *testing.T) {
	v, err := Build(observation())
	require.NoError(t, err)
	require.Len(t, v, Dim)
	assert.Equal(t, Vector{43.6532, -79.3832, 43.7001, -79.4163, 600, 780, 5.8}, v)
}

func TestBuildFieldsAreIndependent(t *testing.T) {
	base, err := Build(observation())
	require.NoError(t, err)

	obs := observation()
	obs.TravelTime, obs.TrafficTime = obs.TrafficTime, obs.TravelTime
	swapped, err := Build(obs)
	require.NoError(t, err)

	for i := range base {
		switch i {
		case TravelTime:
			assert.Equal(t, base[TrafficTime], swapped[i])
		case TrafficTime:
			assert.Equal(t, base[TravelTime], swapped[i])
		default:
			assert.Equal(t, base[i], swapped[i], "position %s changed", names[i])
		}
	}
}

func TestBuildIdenticalEndpoints(t *testing.T) {
	obs := observation()
	same := *obs.Origin
	obs.Destination = &same
	obs.Distance = 0

	v, err := Build(obs)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v[Distance])
	assert.Equal(t, v[OriginLat], v[DestinationLat])
}

func TestBuildMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*traffic.Observation)
	}{
		{"origin", func(o *traffic.Observation) { o.Origin = nil }},
		{"destination", func(o *traffic.Observation) { o.Destination = nil }},
		{"travel_time", func(o *traffic.Observation) { o.TravelTime = nil }},
		{"traffic_time", func(o *traffic.Observation) { o.TrafficTime = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := observation()
			tt.mutate(&obs)
			_, err := Build(obs)
			require.ErrorIs(t, err, traffic.ErrMissingInput)
			assert.Contains(t, err.Error(), tt.name)
		})
	}
}

func TestBuildInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*traffic.Observation)
	}{
		{"latitude out of range", func(o *traffic.Observation) { o.Origin = &traffic.Coordinate{Lat: 91, Lng: 0} }},
		{"longitude out of range", func(o *traffic.Observation) { o.Destination = &traffic.Coordinate{Lat: 0, Lng: -181} }},
		{"negative travel time", func(o *traffic.Observation) { o.TravelTime = traffic.Seconds(-1) }},
		{"negative distance", func(o *traffic.Observation) { o.Distance = -0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := observation()
			tt.mutate(&obs)
			_, err := Build(obs)
			require.ErrorIs(t, err, traffic.ErrInvalidInput)
		})
	}
}

func TestCheckSchema(t *testing.T) {
	require.NoError(t, CheckSchema(Names()))

	reordered := Names()
	reordered[0], reordered[1] = reordered[1], reordered[0]
	assert.ErrorIs(t, CheckSchema(reordered), traffic.ErrSchemaMismatch)
	assert.ErrorIs(t, CheckSchema(Names()[:6]), traffic.ErrSchemaMismatch)
}

func TestIndex(t *testing.T) {
	assert.Equal(t, TrafficTime, Index("traffic_time"))
	assert.Equal(t, -1, Index("hour"))
}
