// internal/search/geoutil/geo.go
package geoutil

import (
	"math"

	"search-orchestrator/internal/models"
)

const (
	earthRadiusKm = 6371.0

	// metersThreshold: engine-derived distance values above this are assumed
	// to be meters and divided down. A local search never legitimately
	// returns a thousand-plus kilometer distance.
	metersThreshold = 1000.0

	// averageSpeedKmph is the rough urban delivery speed used for
	// travel-time estimates.
	averageSpeedKmph = 25.0
)

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// HaversineKm returns the great-circle distance between two points in
// kilometers.
func HaversineKm(a, b models.GeoPoint) float64 {
	latA := DegToRad(a.Lat)
	latB := DegToRad(b.Lat)
	dLat := DegToRad(b.Lat - a.Lat)
	dLon := DegToRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// NormalizeKm coerces a raw engine distance into kilometers. Script fields
// and sort values may arrive in meters depending on the engine version.
func NormalizeKm(raw float64) float64 {
	if raw > metersThreshold {
		return raw / 1000.0
	}
	return raw
}

// TravelMinutes estimates travel time for a distance in kilometers.
func TravelMinutes(distanceKm float64) float64 {
	if distanceKm <= 0 {
		return 0
	}
	return distanceKm / averageSpeedKmph * 60.0
}
