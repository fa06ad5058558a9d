// README: Live rider location index backed by Redis GEO.
package location

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ridesafe/internal/types"
)

const (
	liveGeoKey     = "geo:riders:active"
	liveSeenKeyFmt = "geo:riders:%s:seen_at"
	liveSeenTTL    = 10 * time.Minute
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) SetLive(ctx context.Context, riderID types.ID, pos types.Coordinate, at time.Time) error {
	pipe := s.redis.TxPipeline()
	pipe.GeoAdd(ctx, liveGeoKey, &redis.GeoLocation{
		Name:      string(riderID),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	})
	pipe.Set(ctx, seenKey(riderID), at.UTC().Format(time.RFC3339), liveSeenTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) RemoveLive(ctx context.Context, riderID types.ID) error {
	pipe := s.redis.TxPipeline()
	pipe.ZRem(ctx, liveGeoKey, string(riderID))
	pipe.Del(ctx, seenKey(riderID))
	_, err := pipe.Exec(ctx)
	return err
}

// LastSeen returns when the rider's live position was last written.
func (s *Store) LastSeen(ctx context.Context, riderID types.ID) (time.Time, bool, error) {
	val, err := s.redis.Get(ctx, seenKey(riderID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (s *Store) Nearby(ctx context.Context, origin types.Coordinate, radiusKm float64) ([]RiderLocation, error) {
	results, err := s.redis.GeoRadius(ctx, liveGeoKey, origin.Lng, origin.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]RiderLocation, len(results))
	for i, r := range results {
		out[i] = RiderLocation{
			RiderID:    types.ID(r.Name),
			Position:   types.Coordinate{Lat: r.Latitude, Lng: r.Longitude},
			DistanceKm: r.Dist,
		}
	}
	return out, nil
}

func seenKey(riderID types.ID) string {
	return fmt.Sprintf(liveSeenKeyFmt, string(riderID))
}
