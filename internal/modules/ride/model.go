// README: Ride session model (sessions, accepted points, commands).
package ride

import (
	"errors"
	"time"

	"ridesafe/internal/types"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrSessionActive = errors.New("ride session already active")
	ErrNotFound      = errors.New("ride session not found")
	ErrBadRequest    = errors.New("bad request")
)

// Session is one ride. ID is assigned by the remote store.
type Session struct {
	ID             types.ID           `json:"id"`
	RiderID        types.ID           `json:"rider_id"`
	Status         Status             `json:"status"`
	StartedAt      time.Time          `json:"started_at"`
	EndedAt        *time.Time         `json:"ended_at,omitempty"`
	LastKnown      types.Coordinate   `json:"last_known"`
	DistanceMeters float64            `json:"distance_m"`
	ElapsedSeconds int64              `json:"elapsed_s"`
	Route          []types.Coordinate `json:"route,omitempty"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	c.Route = append([]types.Coordinate(nil), s.Route...)
	return &c
}

// Point is an accepted position sample.
type Point struct {
	SessionID  types.ID         `json:"session_id"`
	Coordinate types.Coordinate `json:"coordinate"`
	CapturedAt time.Time        `json:"captured_at"`
}

// Snapshot is the tracker's in-process view of the running session.
type Snapshot struct {
	Session  *Session `json:"session"`
	Points   int      `json:"points"`
	InFlight int64    `json:"in_flight_mirrors"`
}

type ActivateCommand struct {
	RiderID   types.ID
	At        types.Coordinate
	StartedAt time.Time
}

type ProgressCommand struct {
	ID             types.ID
	LastKnown      types.Coordinate
	DistanceMeters float64
}

type EndCommand struct {
	ID             types.ID
	EndedAt        time.Time
	LastKnown      types.Coordinate
	DistanceMeters float64
	ElapsedSeconds int64
	Route          []types.Coordinate
}
