// README: Local cache tables on the embedded SQLite database.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ridesafe/internal/types"
)

// LocalTable is the local cache contract for one record kind. Get returns
// (nil, nil) when the row does not exist. MarkSynced flips is_synced only
// while the row still equals rec and reports whether it did.
type LocalTable[T any] interface {
	Get(ctx context.Context, key types.ID) (*Local[T], error)
	Upsert(ctx context.Context, rec T, synced bool) error
	MarkSynced(ctx context.Context, rec T) (bool, error)
}

type LocalProfiles struct {
	db *sql.DB
}

func NewLocalProfiles(db *sql.DB) *LocalProfiles {
	return &LocalProfiles{db: db}
}

func (s *LocalProfiles) Get(ctx context.Context, key types.ID) (*Local[Profile], error) {
	var (
		out    Local[Profile]
		id     string
		synced int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, phone, avatar_url, is_synced, real_display_name
		FROM profiles WHERE id = ?`, string(key),
	).Scan(&id, &out.Record.DisplayName, &out.Record.Phone, &out.Record.AvatarURL, &synced, &out.Record.RealDisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out.Record.ID = types.ID(id)
	out.Synced = synced == 1
	return &out, nil
}

func (s *LocalProfiles) Upsert(ctx context.Context, p Profile, synced bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO profiles (id, display_name, phone, avatar_url, is_synced, real_display_name)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(p.ID), p.DisplayName, p.Phone, p.AvatarURL, boolToInt(synced), p.RealDisplayName,
	)
	return err
}

func (s *LocalProfiles) MarkSynced(ctx context.Context, p Profile) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET is_synced = 1
		WHERE id = ? AND display_name = ? AND phone = ? AND avatar_url = ? AND real_display_name = ?`,
		string(p.ID), p.DisplayName, p.Phone, p.AvatarURL, p.RealDisplayName,
	)
	return affected(res, err)
}

type LocalMedical struct {
	db *sql.DB
}

func NewLocalMedical(db *sql.DB) *LocalMedical {
	return &LocalMedical{db: db}
}

func (s *LocalMedical) Get(ctx context.Context, key types.ID) (*Local[MedicalRecord], error) {
	var (
		out       Local[MedicalRecord]
		id        string
		updatedAt string
		synced    int
	)
	r := &out.Record
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, blood_type, allergies, medications, conditions,
		       emergency_contact_relation, emergency_contact_phone, updated_at, age, is_synced
		FROM medical_profiles WHERE user_id = ?`, string(key),
	).Scan(&id, &r.BloodType, &r.Allergies, &r.Medications, &r.Conditions,
		&r.EmergencyContactRelation, &r.EmergencyContactPhone, &updatedAt, &r.Age, &synced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.UserID = types.ID(id)
	if updatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, err
		}
		r.UpdatedAt = t
	}
	out.Synced = synced == 1
	return &out, nil
}

func (s *LocalMedical) Upsert(ctx context.Context, m MedicalRecord, synced bool) error {
	updatedAt := formatUpdatedAt(m.UpdatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO medical_profiles (
			user_id, blood_type, allergies, medications, conditions,
			emergency_contact_relation, emergency_contact_phone, updated_at, age, is_synced
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.UserID), m.BloodType, m.Allergies, m.Medications, m.Conditions,
		m.EmergencyContactRelation, m.EmergencyContactPhone, updatedAt, m.Age, boolToInt(synced),
	)
	return err
}

func (s *LocalMedical) MarkSynced(ctx context.Context, m MedicalRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE medical_profiles SET is_synced = 1
		WHERE user_id = ? AND blood_type = ? AND allergies = ? AND medications = ? AND conditions = ?
		  AND emergency_contact_relation = ? AND emergency_contact_phone = ? AND updated_at = ? AND age = ?`,
		string(m.UserID), m.BloodType, m.Allergies, m.Medications, m.Conditions,
		m.EmergencyContactRelation, m.EmergencyContactPhone, formatUpdatedAt(m.UpdatedAt), m.Age,
	)
	return affected(res, err)
}

func formatUpdatedAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

type LocalStatus struct {
	db *sql.DB
}

func NewLocalStatus(db *sql.DB) *LocalStatus {
	return &LocalStatus{db: db}
}

func (s *LocalStatus) Get(ctx context.Context, key types.ID) (*Local[ParamedicStatus], error) {
	var (
		out            Local[ParamedicStatus]
		id             string
		active, synced int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, is_active, is_synced FROM paramedic_status WHERE user_id = ?`, string(key),
	).Scan(&id, &active, &synced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out.Record = ParamedicStatus{UserID: types.ID(id), IsActive: active == 1}
	out.Synced = synced == 1
	return &out, nil
}

func (s *LocalStatus) Upsert(ctx context.Context, st ParamedicStatus, synced bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO paramedic_status (user_id, is_active, is_synced)
		VALUES (?, ?, ?)`,
		string(st.UserID), boolToInt(st.IsActive), boolToInt(synced),
	)
	return err
}

func (s *LocalStatus) MarkSynced(ctx context.Context, st ParamedicStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE paramedic_status SET is_synced = 1 WHERE user_id = ? AND is_active = ?`,
		string(st.UserID), boolToInt(st.IsActive),
	)
	return affected(res, err)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
