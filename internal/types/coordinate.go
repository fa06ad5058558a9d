// README: WGS84 coordinate value object.
package types

import "math"

// Coordinate is a latitude/longitude pair in WGS84 degrees.
type Coordinate struct {
	Lat float64 `json:"lat" validate:"lat"`
	Lng float64 `json:"lng" validate:"lng"`
}

// Valid reports whether both components are finite and in range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func (c Coordinate) IsZero() bool { return c.Lat == 0 && c.Lng == 0 }
