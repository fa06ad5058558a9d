// README: Position samples, watch settings and live rider locations.
package location

import (
	"time"

	"ridesafe/internal/types"
)

// Accuracy is the requested provider accuracy. The device honours it; the
// feed only carries it.
type Accuracy string

const (
	AccuracyHigh     Accuracy = "high"
	AccuracyBalanced Accuracy = "balanced"
	AccuracyLow      Accuracy = "low"
)

// Sample is one position fix from the device.
type Sample struct {
	Coordinate types.Coordinate `json:"coordinate"`
	CapturedAt time.Time        `json:"captured_at"`
}

// WatchConfig controls which samples a subscription receives.
type WatchConfig struct {
	Accuracy     Accuracy
	MinInterval  time.Duration
	MinDistanceM float64
}

// RiderLocation is a rider found in the live index, with distance from the
// queried origin.
type RiderLocation struct {
	RiderID    types.ID         `json:"rider_id"`
	Position   types.Coordinate `json:"position"`
	DistanceKm float64          `json:"distance_km"`
}
