package models

import (
	"fmt"

	"github.com/golang/geo/s2"
)

// Position is a WGS 84 coordinate in degrees.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// LatLng converts the position to an s2 coordinate.
func (p Position) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Latitude, p.Longitude)
}

// Valid reports whether the position is a finite coordinate within the latitude and longitude ranges.
func (p Position) Valid() bool {
	return p.LatLng().IsValid()
}

// String formats the position with six decimals, roughly 10 cm precision.
func (p Position) String() string {
	return fmt.Sprintf("%.6f, %.6f", p.Latitude, p.Longitude)
}
