// Package geo evaluates classroom geofences.
package geo

import (
	"math"
	"regexp"
	"strconv"

	"github.com/zulandar/rollcall/internal/apperr"
)

// EarthRadiusMeters is the mean Earth radius used by DistanceMeters.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine great-circle distance between two
// coordinates given in degrees. Non-finite input yields NaN.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceTo returns the distance in meters from p to q.
func (p Point) DistanceTo(q Point) float64 {
	return DistanceMeters(p.Lat, p.Lon, q.Lat, q.Lon)
}

// Valid reports whether p is finite and within coordinate ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

var pointRe = regexp.MustCompile(`^\s*(?:(?i:loc(?:ation)?)\s*:\s*)?(-?\d+(?:\.\d+)?)\s*[, ]\s*(-?\d+(?:\.\d+)?)\s*$`)

// ParsePoint parses a "lat,lon" text payload, optionally prefixed with
// "loc:" or "location:". It returns a ValidationError for malformed or
// out-of-range coordinates.
func ParsePoint(s string) (Point, error) {
	m := pointRe.FindStringSubmatch(s)
	if m == nil {
		return Point{}, apperr.NewValidationError("location", "expected \"lat,lon\"")
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Point{}, apperr.NewValidationError("location", "invalid latitude %q", m[1])
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Point{}, apperr.NewValidationError("location", "invalid longitude %q", m[2])
	}
	p := Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return Point{}, apperr.NewValidationError("location", "coordinates out of range")
	}
	return p, nil
}

// LooksLikePoint reports whether s has the shape of a location payload.
func LooksLikePoint(s string) bool {
	return pointRe.MatchString(s)
}
