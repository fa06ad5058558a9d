package location

import (
	"math"
	"testing"

	"ridesafe/internal/types"
)

func TestDistanceMeters_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Coordinate
		wantM     float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Coordinate{Lat: 20.6050, Lng: -103.5820},
			b:         types.Coordinate{Lat: 20.6050, Lng: -103.5820},
			wantM:     0,
			tolerance: 1e-9,
		},
		{
			name:      "one ten-thousandth of a degree of latitude (~11.12m)",
			a:         types.Coordinate{Lat: 20.6050, Lng: -103.5820},
			b:         types.Coordinate{Lat: 20.6051, Lng: -103.5820},
			wantM:     11.12,
			tolerance: 0.05,
		},
		{
			name:      "Guadalajara cathedral to Zapopan basilica (~6.7km)",
			a:         types.Coordinate{Lat: 20.6767, Lng: -103.3475},
			b:         types.Coordinate{Lat: 20.7209, Lng: -103.3914},
			wantM:     6700,
			tolerance: 600,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Coordinate{Lat: 40.7128, Lng: -74.0060},
			b:         types.Coordinate{Lat: 34.0522, Lng: -118.2437},
			wantM:     3944000,
			tolerance: 50000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.a, tt.b)
			if math.Abs(got-tt.wantM) > tt.tolerance {
				t.Errorf("DistanceMeters() = %f, want %f (±%f)", got, tt.wantM, tt.tolerance)
			}
		})
	}
}

func TestDistanceMeters_Identity(t *testing.T) {
	points := []types.Coordinate{
		{Lat: 0, Lng: 0},
		{Lat: 89.9, Lng: 179.9},
		{Lat: -45.5, Lng: -120.25},
		{Lat: 20.6050, Lng: -103.5820},
	}
	for _, p := range points {
		if d := DistanceMeters(p, p); d != 0 {
			t.Errorf("DistanceMeters(%v, %v) = %f, want 0", p, p, d)
		}
	}
}

func TestDistanceMeters_Symmetry(t *testing.T) {
	pairs := [][2]types.Coordinate{
		{{Lat: 25.0, Lng: 121.0}, {Lat: 26.0, Lng: 122.0}},
		{{Lat: -33.9, Lng: 18.4}, {Lat: 51.5, Lng: -0.12}},
		{{Lat: 20.6050, Lng: -103.5820}, {Lat: 20.6051, Lng: -103.5820}},
	}
	for _, p := range pairs {
		d1 := DistanceMeters(p[0], p[1])
		d2 := DistanceMeters(p[1], p[0])
		if math.Abs(d1-d2) > 1e-6 {
			t.Errorf("distance is not symmetric: %f vs %f", d1, d2)
		}
	}
}

func TestDistanceMeters_NaNPropagates(t *testing.T) {
	d := DistanceMeters(types.Coordinate{Lat: math.NaN(), Lng: 0}, types.Coordinate{Lat: 1, Lng: 1})
	if !math.IsNaN(d) {
		t.Errorf("expected NaN, got %f", d)
	}
}

func TestHaversineKm_MatchesMeters(t *testing.T) {
	a := types.Coordinate{Lat: 25.0340, Lng: 121.5645}
	b := types.Coordinate{Lat: 25.0478, Lng: 121.5170}
	km := haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
	if math.Abs(km*1000-DistanceMeters(a, b)) > 1e-6 {
		t.Errorf("km and metre variants disagree: %f km vs %f m", km, DistanceMeters(a, b))
	}
}

func TestSortByDistance_Riders(t *testing.T) {
	riders := []RiderLocation{
		{RiderID: types.ID("c"), DistanceKm: 5.0},
		{RiderID: types.ID("a"), DistanceKm: 1.0},
		{RiderID: types.ID("b"), DistanceKm: 3.0},
	}

	sortByDistance(riders, func(r RiderLocation) float64 { return r.DistanceKm })

	if riders[0].RiderID != "a" || riders[1].RiderID != "b" || riders[2].RiderID != "c" {
		t.Errorf("unexpected sort order: %v", riders)
	}
}

func TestSortByDistance_Empty(t *testing.T) {
	var riders []RiderLocation
	sortByDistance(riders, func(r RiderLocation) float64 { return r.DistanceKm })
}
