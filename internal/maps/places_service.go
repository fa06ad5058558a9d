package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"ridesafe/internal/types"
)

// Place represents a simplified location result.
type Place struct {
	Name     string           `json:"name"`
	Address  string           `json:"address"`
	PlaceID  string           `json:"place_id"`
	Location types.Coordinate `json:"location"`
}

const defaultHospitalRadiusM = 5000

// NearestHospital returns the first hospital the Places API ranks near c
// within radiusM meters (5 km when radiusM is 0).
func (s *Service) NearestHospital(ctx context.Context, c types.Coordinate, radiusM uint) (*Place, error) {
	if radiusM == 0 {
		radiusM = defaultHospitalRadiusM
	}
	resp, err := s.client.NearbySearch(ctx, &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: c.Lat, Lng: c.Lng},
		Radius:   radiusM,
		Type:     maps.PlaceTypeHospital,
		Language: s.language,
	})
	if err != nil {
		return nil, fmt.Errorf("places api error: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, ErrNoResult
	}
	r := resp.Results[0]
	return &Place{
		Name:     r.Name,
		Address:  r.Vicinity,
		PlaceID:  r.PlaceID,
		Location: types.Coordinate{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
	}, nil
}
