// README: Location service publishes live rider positions and answers nearby queries.
package location

import (
	"context"
	"errors"
	"time"

	"ridesafe/internal/types"
)

const maxNearbyRadiusKm = 50.0

var ErrBadRadius = errors.New("radius must be within (0, 50] km")

type Service struct {
	store *Store
	now   func() time.Time
}

func NewService(store *Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Publish records the rider's live position. Called from ride mirroring.
func (s *Service) Publish(ctx context.Context, riderID types.ID, pos types.Coordinate) error {
	return s.store.SetLive(ctx, riderID, pos, s.now())
}

// Withdraw drops the rider from the live index when the ride ends.
func (s *Service) Withdraw(ctx context.Context, riderID types.ID) error {
	return s.store.RemoveLive(ctx, riderID)
}

// Nearby lists live riders within radiusKm of origin, closest first.
func (s *Service) Nearby(ctx context.Context, origin types.Coordinate, radiusKm float64) ([]RiderLocation, error) {
	if radiusKm <= 0 || radiusKm > maxNearbyRadiusKm {
		return nil, ErrBadRadius
	}
	riders, err := s.store.Nearby(ctx, origin, radiusKm)
	if err != nil {
		return nil, err
	}
	for i := range riders {
		riders[i].DistanceKm = haversineKm(origin.Lat, origin.Lng, riders[i].Position.Lat, riders[i].Position.Lng)
	}
	sortByDistance(riders, func(r RiderLocation) float64 { return r.DistanceKm })
	return riders, nil
}
