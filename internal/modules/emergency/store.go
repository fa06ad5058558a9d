// README: Emergency store backed by PostgreSQL.
package emergency

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ridesafe/internal/infra"
	"ridesafe/internal/pkg/e"
	"ridesafe/internal/types"
)

type Store struct {
	db infra.Querier
}

func NewStore(db infra.Querier) *Store {
	return &Store{db: db}
}

const incidentColumns = `id::text, trigger_user_id, status, lat, lng, geohash,
		       created_at, resolved_at, COALESCE(resolved_by, '')`

// CreateIncident inserts a pending incident and fills in its remote id and
// creation time.
func (s *Store) CreateIncident(ctx context.Context, inc *Incident) error {
	var id string
	var createdAt time.Time
	err := s.db.QueryRow(ctx, `
		INSERT INTO emergencies (trigger_user_id, status, lat, lng, geohash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text, created_at`,
		string(inc.TriggerUserID), string(inc.Status), inc.Location.Lat, inc.Location.Lng, inc.Geohash, inc.CreatedAt,
	).Scan(&id, &createdAt)
	if err != nil {
		return e.WrapError("emergency.create_incident", err)
	}
	inc.ID = types.ID(id)
	inc.CreatedAt = createdAt
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, ev *Event) error {
	var id int64
	var createdAt time.Time
	err := s.db.QueryRow(ctx, `
		INSERT INTO emergency_events (emergency_id, event_type, payload, created_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		RETURNING id, created_at`,
		string(ev.EmergencyID), ev.Type, string(ev.Payload),
	).Scan(&id, &createdAt)
	if err != nil {
		return e.WrapError("emergency.append_event", err)
	}
	ev.ID = id
	ev.CreatedAt = createdAt
	return nil
}

// Resolve moves a pending incident to resolved. It reports false when the
// incident is missing or no longer pending.
func (s *Store) Resolve(ctx context.Context, id, by types.ID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE emergencies
		SET status = 'resolved', resolved_at = $2, resolved_by = $3
		WHERE id = $1 AND status = 'pending'`,
		string(id), at, string(by),
	)
	if err != nil {
		return false, e.WrapError("emergency.resolve", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Incident, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+incidentColumns+`
		FROM emergencies
		WHERE id = $1`, string(id),
	)
	inc, err := scanIncident(row)
	if errors.Is(err, e.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, e.WrapError("emergency.get", err)
	}
	return inc, nil
}

// ListPending returns pending incidents newest first. A non-empty cells list
// restricts results to incidents whose geohash starts with one of the cells;
// all cells must share one precision.
func (s *Store) ListPending(ctx context.Context, cells []string, limit int) ([]Incident, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + incidentColumns + `
		FROM emergencies
		WHERE status = 'pending'
		ORDER BY created_at DESC
		LIMIT $1`
	args := []any{limit}
	if len(cells) > 0 {
		query = `
		SELECT ` + incidentColumns + `
		FROM emergencies
		WHERE status = 'pending' AND substr(geohash, 1, $2) = ANY($3)
		ORDER BY created_at DESC
		LIMIT $1`
		args = append(args, len(cells[0]), cells)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, e.WrapError("emergency.list_pending", err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	if err := rows.Err(); err != nil {
		return nil, e.WrapError("emergency.list_pending", err)
	}
	return out, nil
}

func (s *Store) Events(ctx context.Context, incidentID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, event_type, payload::text, created_at
		FROM emergency_events
		WHERE emergency_id = $1
		ORDER BY created_at, id`, string(incidentID),
	)
	if err != nil {
		return nil, e.WrapError("emergency.events", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev      Event
			payload string
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &payload, &ev.CreatedAt); err != nil {
			return nil, e.WrapError("emergency.events scan", err)
		}
		ev.EmergencyID = incidentID
		ev.Payload = []byte(payload)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, e.WrapError("emergency.events", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*Incident, error) {
	var (
		inc                            Incident
		id, userID, status, resolvedBy string
		resolvedAt                     sql.NullTime
	)
	err := row.Scan(&id, &userID, &status, &inc.Location.Lat, &inc.Location.Lng, &inc.Geohash,
		&inc.CreatedAt, &resolvedAt, &resolvedBy)
	if err != nil {
		return nil, e.WrapError("emergency.scan", err)
	}
	inc.ID = types.ID(id)
	inc.TriggerUserID = types.ID(userID)
	inc.Status = Status(status)
	inc.ResolvedBy = types.ID(resolvedBy)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		inc.ResolvedAt = &t
	}
	return &inc, nil
}
