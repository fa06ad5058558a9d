// README: Emergency (SOS) incidents and the events recorded against them.
package emergency

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ridesafe/internal/types"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

const EventSOSTriggered = "sos_triggered"

var (
	ErrNotFound     = errors.New("emergency not found")
	ErrInvalidState = errors.New("emergency is not pending")
	ErrBadRequest   = errors.New("bad request")
)

// Incident is one SOS activation. ID is assigned by the remote store.
type Incident struct {
	ID            types.ID         `json:"id"`
	TriggerUserID types.ID         `json:"trigger_user_id"`
	Status        Status           `json:"status"`
	Location      types.Coordinate `json:"location"`
	Geohash       string           `json:"geohash"`
	CreatedAt     time.Time        `json:"created_at"`
	ResolvedAt    *time.Time       `json:"resolved_at,omitempty"`
	ResolvedBy    types.ID         `json:"resolved_by,omitempty"`
}

type Event struct {
	ID          int64           `json:"id"`
	EmergencyID types.ID        `json:"emergency_id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SOSPayload is denormalized so responders can act without joins.
type SOSPayload struct {
	UserID       types.ID         `json:"user_id" validate:"required"`
	Name         string           `json:"name,omitempty" validate:"max=120"`
	Phone        string           `json:"phone,omitempty" validate:"max=32"`
	RouteContext string           `json:"route_context,omitempty" validate:"max=200"`
	Coordinate   types.Coordinate `json:"coordinate"`
	Address      string           `json:"address,omitempty"`
	Medical      *MedicalSummary  `json:"medical,omitempty"`
	TriggeredAt  time.Time        `json:"triggered_at" validate:"required"`
}

type MedicalSummary struct {
	BloodType                string `json:"blood_type,omitempty"`
	Allergies                string `json:"allergies,omitempty"`
	Medications              string `json:"medications,omitempty"`
	Conditions               string `json:"conditions,omitempty"`
	Age                      int    `json:"age,omitempty"`
	EmergencyContactRelation string `json:"emergency_contact_relation,omitempty"`
	EmergencyContactPhone    string `json:"emergency_contact_phone,omitempty"`
}

// PartialFailureError reports an incident that was recorded while its event
// was not. The incident is left pending and is not retried.
type PartialFailureError struct {
	IncidentID types.ID
	Err        error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("emergency %s recorded but event write failed: %v", e.IncidentID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
