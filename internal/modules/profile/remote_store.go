// README: Authoritative copies of user-owned records in PostgreSQL.
package profile

import (
	"context"
	"errors"
	"time"

	"ridesafe/internal/infra"
	"ridesafe/internal/pkg/e"
	"ridesafe/internal/types"
)

// RemoteTable is the remote contract for one record kind. Fetch returns
// (nil, nil) when the row does not exist; Push is an idempotent full-row
// upsert.
type RemoteTable[T any] interface {
	Fetch(ctx context.Context, key types.ID) (*T, error)
	Push(ctx context.Context, rec T) error
}

type RemoteProfiles struct {
	db infra.Querier
}

func NewRemoteProfiles(db infra.Querier) *RemoteProfiles {
	return &RemoteProfiles{db: db}
}

func (s *RemoteProfiles) Fetch(ctx context.Context, key types.ID) (*Profile, error) {
	var (
		p  Profile
		id string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, display_name, phone, avatar_url, real_display_name
		FROM profiles WHERE id = $1`, string(key),
	).Scan(&id, &p.DisplayName, &p.Phone, &p.AvatarURL, &p.RealDisplayName)
	if err != nil {
		return nil, absentAsNil("profile.fetch", err)
	}
	p.ID = types.ID(id)
	return &p, nil
}

func (s *RemoteProfiles) Push(ctx context.Context, p Profile) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO profiles (id, display_name, phone, avatar_url, real_display_name, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			phone = EXCLUDED.phone,
			avatar_url = EXCLUDED.avatar_url,
			real_display_name = EXCLUDED.real_display_name,
			updated_at = NOW()`,
		string(p.ID), p.DisplayName, p.Phone, p.AvatarURL, p.RealDisplayName,
	)
	return e.WrapError("profile.push", err)
}

type RemoteMedical struct {
	db infra.Querier
}

func NewRemoteMedical(db infra.Querier) *RemoteMedical {
	return &RemoteMedical{db: db}
}

func (s *RemoteMedical) Fetch(ctx context.Context, key types.ID) (*MedicalRecord, error) {
	var (
		m         MedicalRecord
		id        string
		updatedAt time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT user_id, blood_type, allergies, medications, conditions,
		       emergency_contact_relation, emergency_contact_phone, updated_at, age
		FROM medical_profiles WHERE user_id = $1`, string(key),
	).Scan(&id, &m.BloodType, &m.Allergies, &m.Medications, &m.Conditions,
		&m.EmergencyContactRelation, &m.EmergencyContactPhone, &updatedAt, &m.Age)
	if err != nil {
		return nil, absentAsNil("medical.fetch", err)
	}
	m.UserID = types.ID(id)
	m.UpdatedAt = updatedAt
	return &m, nil
}

func (s *RemoteMedical) Push(ctx context.Context, m MedicalRecord) error {
	updatedAt := m.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO medical_profiles (
			user_id, blood_type, allergies, medications, conditions,
			emergency_contact_relation, emergency_contact_phone, updated_at, age
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			blood_type = EXCLUDED.blood_type,
			allergies = EXCLUDED.allergies,
			medications = EXCLUDED.medications,
			conditions = EXCLUDED.conditions,
			emergency_contact_relation = EXCLUDED.emergency_contact_relation,
			emergency_contact_phone = EXCLUDED.emergency_contact_phone,
			updated_at = EXCLUDED.updated_at,
			age = EXCLUDED.age`,
		string(m.UserID), m.BloodType, m.Allergies, m.Medications, m.Conditions,
		m.EmergencyContactRelation, m.EmergencyContactPhone, updatedAt, m.Age,
	)
	return e.WrapError("medical.push", err)
}

type RemoteStatus struct {
	db infra.Querier
}

func NewRemoteStatus(db infra.Querier) *RemoteStatus {
	return &RemoteStatus{db: db}
}

func (s *RemoteStatus) Fetch(ctx context.Context, key types.ID) (*ParamedicStatus, error) {
	var (
		st ParamedicStatus
		id string
	)
	err := s.db.QueryRow(ctx, `
		SELECT user_id, is_active FROM paramedic_status WHERE user_id = $1`, string(key),
	).Scan(&id, &st.IsActive)
	if err != nil {
		return nil, absentAsNil("paramedic_status.fetch", err)
	}
	st.UserID = types.ID(id)
	return &st, nil
}

func (s *RemoteStatus) Push(ctx context.Context, st ParamedicStatus) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO paramedic_status (user_id, is_active, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			is_active = EXCLUDED.is_active,
			updated_at = NOW()`,
		string(st.UserID), st.IsActive,
	)
	return e.WrapError("paramedic_status.push", err)
}

// absentAsNil turns a no-rows error into nil so Fetch reports absence as
// (nil, nil).
func absentAsNil(op string, err error) error {
	wrapped := e.WrapError(op, err)
	if errors.Is(wrapped, e.ErrNotFound) {
		return nil
	}
	return wrapped
}
