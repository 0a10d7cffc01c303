package geo

import (
	"math"

	"traffic-predictor/internal/traffic"
)

// EarthRadiusKm is the mean Earth radius used by every distance in the pipeline.
const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between two points
// given in decimal degrees. Collection and serving must share this exact math.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// Between is Haversine over two coordinates.
func Between(a, b traffic.Coordinate) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}
