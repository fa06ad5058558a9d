// README: Google Maps lookups used to enrich SOS events (address, nearest hospital).
package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"ridesafe/internal/types"
)

var ErrNoResult = errors.New("maps: no result")

// Service wraps the Google Maps client.
type Service struct {
	client   *maps.Client
	language string
}

// NewService creates a Service with the given API key. Extra client options
// (base URL, HTTP client) are passed through.
func NewService(apiKey string, opts ...maps.ClientOption) (*Service, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Service{client: client, language: "es"}, nil
}

// ReverseGeocode returns the formatted address closest to c.
func (s *Service) ReverseGeocode(ctx context.Context, c types.Coordinate) (string, error) {
	results, err := s.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: c.Lat, Lng: c.Lng},
		Language: s.language,
	})
	if err != nil {
		return "", fmt.Errorf("maps api error: %w", err)
	}
	if len(results) == 0 {
		return "", ErrNoResult
	}
	return results[0].FormattedAddress, nil
}
