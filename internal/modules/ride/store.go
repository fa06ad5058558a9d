// README: Ride session store backed by PostgreSQL.
package ride

import (
	"context"
	"database/sql"
	"encoding/json"
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

const sessionColumns = `id::text, rider_id, status, started_at, ended_at,
		       last_lat, last_lng, distance_m, elapsed_s, COALESCE(route::text, '[]')`

// Activate ends any active session of the rider and inserts a new active one
// in a single transaction.
func (s *Store) Activate(ctx context.Context, cmd ActivateCommand) (*Session, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, e.WrapError("ride.activate begin", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE ride_sessions
		SET status = 'ended', ended_at = $2, updated_at = NOW()
		WHERE rider_id = $1 AND status = 'active'`,
		string(cmd.RiderID), cmd.StartedAt,
	); err != nil {
		_ = tx.Rollback(ctx)
		return nil, e.WrapError("ride.activate deactivate", err)
	}

	var id string
	if err := tx.QueryRow(ctx, `
		INSERT INTO ride_sessions (rider_id, status, started_at, last_lat, last_lng, distance_m, elapsed_s)
		VALUES ($1, 'active', $2, $3, $4, 0, 0)
		RETURNING id::text`,
		string(cmd.RiderID), cmd.StartedAt, cmd.At.Lat, cmd.At.Lng,
	).Scan(&id); err != nil {
		_ = tx.Rollback(ctx)
		return nil, e.WrapError("ride.activate insert", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, e.WrapError("ride.activate commit", err)
	}

	return &Session{
		ID:        types.ID(id),
		RiderID:   cmd.RiderID,
		Status:    StatusActive,
		StartedAt: cmd.StartedAt,
		LastKnown: cmd.At,
	}, nil
}

func (s *Store) AppendPoint(ctx context.Context, p Point) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_points (session_id, lat, lng, captured_at)
		VALUES ($1, $2, $3, $4)`,
		string(p.SessionID), p.Coordinate.Lat, p.Coordinate.Lng, p.CapturedAt,
	)
	return e.WrapError("ride.append_point", err)
}

// UpdateProgress moves the last-known location forward. Distance never goes
// backwards even when mirrors land out of order.
func (s *Store) UpdateProgress(ctx context.Context, cmd ProgressCommand) error {
	_, err := s.db.Exec(ctx, `
		UPDATE ride_sessions
		SET last_lat = $2, last_lng = $3, distance_m = GREATEST(distance_m, $4), updated_at = NOW()
		WHERE id = $1 AND status = 'active'`,
		string(cmd.ID), cmd.LastKnown.Lat, cmd.LastKnown.Lng, cmd.DistanceMeters,
	)
	return e.WrapError("ride.update_progress", err)
}

func (s *Store) End(ctx context.Context, cmd EndCommand) error {
	route, err := json.Marshal(routeOrEmpty(cmd.Route))
	if err != nil {
		return e.WrapError("ride.end encode route", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE ride_sessions
		SET status = 'ended',
		    ended_at = COALESCE(ended_at, $2),
		    last_lat = $3,
		    last_lng = $4,
		    distance_m = GREATEST(distance_m, $5),
		    elapsed_s = $6,
		    route = $7::jsonb,
		    updated_at = NOW()
		WHERE id = $1`,
		string(cmd.ID), cmd.EndedAt, cmd.LastKnown.Lat, cmd.LastKnown.Lng,
		cmd.DistanceMeters, cmd.ElapsedSeconds, string(route),
	)
	if err != nil {
		return e.WrapError("ride.end", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM ride_sessions
		WHERE id = $1`, string(id),
	)
	sess, err := scanSession(row)
	if errors.Is(err, e.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, e.WrapError("ride.get", err)
	}
	return sess, nil
}

// ActiveByRider returns the rider's active session, or nil when none.
func (s *Store) ActiveByRider(ctx context.Context, riderID types.ID) (*Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM ride_sessions
		WHERE rider_id = $1 AND status = 'active'
		ORDER BY started_at DESC
		LIMIT 1`, string(riderID),
	)
	sess, err := scanSession(row)
	if errors.Is(err, e.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, e.WrapError("ride.active_by_rider", err)
	}
	return sess, nil
}

func (s *Store) Points(ctx context.Context, sessionID types.ID) ([]Point, error) {
	rows, err := s.db.Query(ctx, `
		SELECT lat, lng, captured_at
		FROM ride_points
		WHERE session_id = $1
		ORDER BY captured_at, id`, string(sessionID),
	)
	if err != nil {
		return nil, e.WrapError("ride.points", err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		p := Point{SessionID: sessionID}
		if err := rows.Scan(&p.Coordinate.Lat, &p.Coordinate.Lng, &p.CapturedAt); err != nil {
			return nil, e.WrapError("ride.points scan", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, e.WrapError("ride.points", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		id, riderID, status, route string
		startedAt                  time.Time
		endedAt                    sql.NullTime
		sess                       Session
	)
	err := row.Scan(
		&id, &riderID, &status, &startedAt, &endedAt,
		&sess.LastKnown.Lat, &sess.LastKnown.Lng, &sess.DistanceMeters, &sess.ElapsedSeconds, &route,
	)
	if err != nil {
		return nil, e.WrapError("ride.scan", err)
	}
	sess.ID = types.ID(id)
	sess.RiderID = types.ID(riderID)
	sess.Status = Status(status)
	sess.StartedAt = startedAt
	sess.EndedAt = toTimePtr(endedAt)
	if err := json.Unmarshal([]byte(route), &sess.Route); err != nil {
		return nil, e.WrapError("ride.scan route", err)
	}
	return &sess, nil
}

func routeOrEmpty(route []types.Coordinate) []types.Coordinate {
	if route == nil {
		return []types.Coordinate{}
	}
	return route
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
