// Package geofence decides whether a coordinate lies within the circular
// admission region around the office point. It is pure computation with no
// state beyond the configured fence.
package geofence

import (
	"errors"
	"math"
)

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000

// ErrInvalidCoordinate is returned for NaN, infinite, or out-of-range
// latitude/longitude values.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Validator checks coordinates against a fixed office fence.
type Validator struct {
	Lat          float64
	Lon          float64
	RadiusMeters float64
}

// New constructs a Validator for the office point and radius.
func New(lat, lon, radiusMeters float64) *Validator {
	return &Validator{Lat: lat, Lon: lon, RadiusMeters: radiusMeters}
}

// Distance returns the great-circle distance in meters between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dphi := (lat2 - lat1) * math.Pi / 180
	dlambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dphi/2)*math.Sin(dphi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dlambda/2)*math.Sin(dlambda/2)

	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ValidateCoordinates rejects malformed numeric input: NaN, infinities,
// latitude outside [-90, 90], longitude outside [-180, 180].
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return ErrInvalidCoordinate
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

// IsWithinFence reports whether (lat, lon) lies within the fence.
// The boundary at exactly RadiusMeters is inclusive.
func (v *Validator) IsWithinFence(lat, lon float64) bool {
	return Distance(lat, lon, v.Lat, v.Lon) <= v.RadiusMeters
}
