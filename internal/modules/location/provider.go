// README: Position provider contract consumed by the ride tracker.
package location

import (
	"context"
	"errors"

	"ridesafe/internal/types"
)

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
)

// Provider is the device location source. Watch delivers samples to
// onSample in arrival order from a single goroutine.
type Provider interface {
	CurrentPosition(ctx context.Context) (types.Coordinate, error)
	Watch(ctx context.Context, cfg WatchConfig, onSample func(Sample)) (Subscription, error)
}

// Subscription is released with Remove. Remove must not be called from
// inside onSample.
type Subscription interface {
	Remove()
}
