// README: Registry keeps one tracker per rider for the HTTP layer.
package ride

import (
	"context"
	"errors"
	"sync"

	"ridesafe/internal/modules/location"
	"ridesafe/internal/types"
)

// ProviderFactory returns the position source for a rider.
type ProviderFactory func(riderID types.ID) location.Provider

type Registry struct {
	mu        sync.Mutex
	trackers  map[types.ID]*Tracker
	deps      TrackerDeps
	providers ProviderFactory
}

// NewRegistry builds trackers from deps, taking each rider's provider from
// providers.
func NewRegistry(deps TrackerDeps, providers ProviderFactory) *Registry {
	return &Registry{
		trackers:  map[types.ID]*Tracker{},
		deps:      deps,
		providers: providers,
	}
}

func (r *Registry) tracker(riderID types.ID) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[riderID]
	if !ok {
		deps := r.deps
		deps.Provider = r.providers(riderID)
		t = NewTracker(deps)
		r.trackers[riderID] = t
	}
	return t
}

func (r *Registry) lookup(riderID types.ID) (*Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[riderID]
	return t, ok
}

func (r *Registry) Start(ctx context.Context, riderID types.ID) (*Session, error) {
	if riderID.Empty() {
		return nil, ErrBadRequest
	}
	return r.tracker(riderID).Start(ctx, riderID)
}

// Stop ends the rider's running session; (nil, nil) when none runs.
func (r *Registry) Stop(ctx context.Context, riderID types.ID) (*Session, error) {
	t, ok := r.lookup(riderID)
	if !ok {
		return nil, nil
	}
	return t.Stop(ctx)
}

func (r *Registry) Snapshot(riderID types.ID) (Snapshot, bool) {
	t, ok := r.lookup(riderID)
	if !ok {
		return Snapshot{}, false
	}
	return t.Snapshot()
}

func (r *Registry) LastPosition(riderID types.ID) (types.Coordinate, bool) {
	t, ok := r.lookup(riderID)
	if !ok {
		return types.Coordinate{}, false
	}
	return t.LastPosition()
}

// Close stops every running session.
func (r *Registry) Close() error {
	r.mu.Lock()
	trackers := make([]*Tracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		trackers = append(trackers, t)
	}
	r.mu.Unlock()

	var errs []error
	for _, t := range trackers {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
