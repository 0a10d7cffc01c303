package traffic

import (
	"fmt"
	"math"
	"time"
)

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports ErrInvalidInput when the coordinate is outside the WGS84 range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90,90]", ErrInvalidInput, c.Lat)
	}
	if math.IsNaN(c.Lng) || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180,180]", ErrInvalidInput, c.Lng)
	}
	return nil
}

// Observation is one route sample, live or historical.
// Nil pointers mark fields the source did not supply.
type Observation struct {
	Origin      *Coordinate
	Destination *Coordinate
	TravelTime  *float64 // seconds, free-flow
	TrafficTime *float64 // seconds, current conditions
	Distance    float64  // kilometers
}

// Seconds returns a pointer to v, for building observations inline.
func Seconds(v float64) *float64 { return &v }

// RouteData is the adapted provider answer for one origin/destination pair.
type RouteData struct {
	TravelTime      float64    `json:"travel_time"`  // seconds
	TrafficTime     float64    `json:"traffic_time"` // seconds, equals TravelTime when not reported
	TrafficReported bool       `json:"traffic_reported"`
	TravelText      string     `json:"travel_text,omitempty"`
	TrafficText     string     `json:"traffic_text,omitempty"`
	Start           Coordinate `json:"start"`
	End             Coordinate `json:"end"`
}

// Validate rejects provider answers that cannot describe a real route. The
// data came from upstream, so failures are ErrUpstreamUnavailable.
func (rd RouteData) Validate() error {
	for _, d := range []struct {
		name string
		v    float64
	}{{"travel_time", rd.TravelTime}, {"traffic_time", rd.TrafficTime}} {
		if math.IsNaN(d.v) || math.IsInf(d.v, 0) || d.v < 0 {
			return fmt.Errorf("%w: provider returned %s %v", ErrUpstreamUnavailable, d.name, d.v)
		}
	}
	if err := rd.Start.Validate(); err != nil {
		return fmt.Errorf("%w: provider start location: %v", ErrUpstreamUnavailable, err)
	}
	if err := rd.End.Validate(); err != nil {
		return fmt.Errorf("%w: provider end location: %v", ErrUpstreamUnavailable, err)
	}
	return nil
}

// Sample is a persisted historical observation (one row of the corpus log).
type Sample struct {
	Timestamp   time.Time
	Origin      string
	Destination string
	Start       Coordinate
	End         Coordinate
	TravelTime  float64 // seconds
	TrafficTime float64 // seconds
	Hour        int
	DayOfWeek   int     // 0 = Monday
	Distance    float64 // kilometers
}

// Observation converts the sample into the feature-builder input.
func (s Sample) Observation() Observation {
	start, end := s.Start, s.End
	return Observation{
		Origin:      &start,
		Destination: &end,
		TravelTime:  Seconds(s.TravelTime),
		TrafficTime: Seconds(s.TrafficTime),
		Distance:    s.Distance,
	}
}

// WeekdayIndex maps time.Weekday to a Monday=0 index.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
