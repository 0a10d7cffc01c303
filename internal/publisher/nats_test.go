package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-predictor/internal/traffic"
)

func TestSubject(t *testing.T) {
	cases := []struct {
		origin, dest string
		want         string
	}{
		{"Union Station", "CN Tower", "traffic.observations.Union_Station.CN_Tower"},
		{"  1 Yonge St., Toronto ", "a>b*c", "traffic.observations.1_Yonge_St__Toronto.a_b_c"},
		{"", "  ", "traffic.observations._._"},
		{"43.6/-79.3", "x\ty", "traffic.observations.43_6_-79_3.x_y"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Subject(DefaultPrefix, "observations", c.origin, c.dest))
	}
}

func TestNewObservationMessage(t *testing.T) {
	ts := time.Date(2024, 3, 4, 8, 30, 0, 0, time.UTC)
	s := traffic.Sample{
		Timestamp:   ts,
		Origin:      "A",
		Destination: "B",
		Start:       traffic.Coordinate{Lat: 43.64, Lng: -79.38},
		End:         traffic.Coordinate{Lat: 43.66, Lng: -79.39},
		TravelTime:  600,
		TrafficTime: 720,
		Hour:        8,
		DayOfWeek:   0,
		Distance:    2.4,
	}
	a := NewObservationMessage(s)
	b := NewObservationMessage(s)
	_, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	raw, err := json.Marshal(a)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 720.0, got["trafficTime"])
	assert.Equal(t, 2.4, got["distanceKm"])
	assert.Equal(t, map[string]any{"lat": 43.64, "lng": -79.38}, got["start"])
}
