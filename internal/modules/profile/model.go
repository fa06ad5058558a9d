// README: User-owned records kept local-first (profile, medical record,
// paramedic on-duty status).
package profile

import (
	"errors"
	"time"

	"ridesafe/internal/types"
)

var (
	ErrNotFound   = errors.New("profile record not found")
	ErrBadRequest = errors.New("bad request")
)

// Record is a local-first row addressed by its owner's id.
type Record interface {
	Key() types.ID
}

type Profile struct {
	ID              types.ID `json:"id"`
	DisplayName     string   `json:"display_name" validate:"max=80"`
	Phone           string   `json:"phone" validate:"max=32"`
	AvatarURL       string   `json:"avatar_url" validate:"omitempty,url"`
	RealDisplayName string   `json:"real_display_name" validate:"max=120"`
}

func (p Profile) Key() types.ID { return p.ID }

type MedicalRecord struct {
	UserID                   types.ID  `json:"user_id"`
	BloodType                string    `json:"blood_type" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Allergies                string    `json:"allergies" validate:"max=500"`
	Medications              string    `json:"medications" validate:"max=500"`
	Conditions               string    `json:"conditions" validate:"max=500"`
	EmergencyContactRelation string    `json:"emergency_contact_relation" validate:"max=40"`
	EmergencyContactPhone    string    `json:"emergency_contact_phone" validate:"max=32"`
	UpdatedAt                time.Time `json:"updated_at"`
	Age                      int       `json:"age" validate:"gte=0,lte=130"`
}

func (m MedicalRecord) Key() types.ID { return m.UserID }

// ParamedicStatus is the on-duty flag of a paramedic.
type ParamedicStatus struct {
	UserID   types.ID `json:"user_id"`
	IsActive bool     `json:"is_active"`
}

func (s ParamedicStatus) Key() types.ID { return s.UserID }

// Local is a cached row plus its is_synced flag. Synced=false means the row
// holds edits the remote store has not acknowledged.
type Local[T any] struct {
	Record T
	Synced bool
}
