// Package location: geo_utils contains pure geographic computation helpers.
package location

import (
	"math"

	"ridesafe/internal/types"
)

const (
	earthRadiusKm     = 6371.0
	earthRadiusMeters = earthRadiusKm * 1000
)

// DistanceMeters returns the great-circle distance in metres between a and b
// using the haversine formula on a spherical Earth. NaN inputs yield NaN.
func DistanceMeters(a, b types.Coordinate) float64 {
	return haversine(a.Lat, a.Lng, b.Lat, b.Lng) * earthRadiusMeters
}

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return haversine(lat1, lng1, lat2, lng2) * earthRadiusKm
}

// haversine returns the central angle in radians.
func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// sortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func sortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
