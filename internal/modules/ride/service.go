// README: Ride service combines live trackers with the stored session history.
package ride

import (
	"context"

	"ridesafe/internal/types"
)

type Service struct {
	registry *Registry
	store    *Store
}

func NewService(registry *Registry, store *Store) *Service {
	return &Service{registry: registry, store: store}
}

func (s *Service) Start(ctx context.Context, riderID types.ID) (*Session, error) {
	return s.registry.Start(ctx, riderID)
}

func (s *Service) Stop(ctx context.Context, riderID types.ID) (*Session, error) {
	return s.registry.Stop(ctx, riderID)
}

// Current prefers the in-process session, which is authoritative until Stop,
// and falls back to the remote active row.
func (s *Service) Current(ctx context.Context, riderID types.ID) (*Session, error) {
	if snap, ok := s.registry.Snapshot(riderID); ok {
		return snap.Session, nil
	}
	return s.store.ActiveByRider(ctx, riderID)
}

func (s *Service) Snapshot(riderID types.ID) (Snapshot, bool) {
	return s.registry.Snapshot(riderID)
}

// Get loads a stored session owned by riderID together with its points.
func (s *Service) Get(ctx context.Context, riderID, id types.ID) (*Session, []Point, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if sess.RiderID != riderID {
		return nil, nil, ErrNotFound
	}
	points, err := s.store.Points(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return sess, points, nil
}

func (s *Service) LastPosition(riderID types.ID) (types.Coordinate, bool) {
	return s.registry.LastPosition(riderID)
}
