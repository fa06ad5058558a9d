// README: Reconciler keeps one record kind in step between the local cache
// and the remote store. Last writer wins with full-row replace.
package profile

import (
	"context"
	"fmt"
	"log/slog"

	"ridesafe/internal/types"
)

// Probe reports whether the remote store is reachable.
type Probe interface {
	Online(ctx context.Context) bool
}

type Reconciler[T Record] struct {
	kind   string
	local  LocalTable[T]
	remote RemoteTable[T]
	probe  Probe
	logger *slog.Logger
}

// NewReconciler builds a reconciler for one record kind. A nil probe treats
// the remote store as always reachable.
func NewReconciler[T Record](kind string, local LocalTable[T], remote RemoteTable[T], probe Probe, logger *slog.Logger) *Reconciler[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler[T]{
		kind:   kind,
		local:  local,
		remote: remote,
		probe:  probe,
		logger: logger.With(slog.String("component", "profile.sync"), slog.String("kind", kind)),
	}
}

// Download pulls the remote row into the cache. A dirty local row is pushed
// first and never overwritten by the pull; if that push fails the local row
// is returned untouched and still dirty. Absent remotely means (nil, nil)
// with no local change.
func (r *Reconciler[T]) Download(ctx context.Context, key types.ID) (*T, error) {
	loc, err := r.local.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s local read: %w", r.kind, err)
	}
	if loc != nil && !loc.Synced {
		rec := loc.Record
		if err := r.push(ctx, rec); err != nil {
			r.logger.Warn("push before pull failed, keeping local edit",
				slog.String("key", key.String()), slog.Any("err", err))
		}
		return &rec, nil
	}

	remote, err := r.remote.Fetch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s remote fetch: %w", r.kind, err)
	}
	if remote == nil {
		return nil, nil
	}
	if err := r.local.Upsert(ctx, *remote, true); err != nil {
		return nil, fmt.Errorf("%s local write: %w", r.kind, err)
	}
	return remote, nil
}

// SyncPending pushes the local row when it is dirty and the remote store is
// reachable. A clean or missing row makes no remote call.
func (r *Reconciler[T]) SyncPending(ctx context.Context, key types.ID) error {
	loc, err := r.local.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%s local read: %w", r.kind, err)
	}
	if loc == nil || loc.Synced {
		return nil
	}
	if r.probe != nil && !r.probe.Online(ctx) {
		r.logger.Debug("offline, push deferred", slog.String("key", key.String()))
		return nil
	}
	if err := r.push(ctx, loc.Record); err != nil {
		r.logger.Error("push pending", slog.String("key", key.String()), slog.Any("err", err))
		return err
	}
	return nil
}

// Get reads through the cache: local first, then remote, warming the cache.
func (r *Reconciler[T]) Get(ctx context.Context, key types.ID) (*T, error) {
	loc, err := r.local.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s local read: %w", r.kind, err)
	}
	if loc != nil {
		rec := loc.Record
		return &rec, nil
	}
	remote, err := r.remote.Fetch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s remote fetch: %w", r.kind, err)
	}
	if remote == nil {
		return nil, nil
	}
	if err := r.local.Upsert(ctx, *remote, true); err != nil {
		r.logger.Warn("warm cache", slog.String("key", key.String()), slog.Any("err", err))
	}
	return remote, nil
}

// Save records a local edit and tries to push it. A failed push leaves the
// row dirty for the next SyncPending and is not an error.
func (r *Reconciler[T]) Save(ctx context.Context, rec T) error {
	if err := r.local.Upsert(ctx, rec, false); err != nil {
		return fmt.Errorf("%s local write: %w", r.kind, err)
	}
	if err := r.SyncPending(ctx, rec.Key()); err != nil {
		r.logger.Warn("saved locally, push deferred", slog.String("key", rec.Key().String()))
	}
	return nil
}

// Pending reports whether the local row holds unpushed edits.
func (r *Reconciler[T]) Pending(ctx context.Context, key types.ID) (bool, error) {
	loc, err := r.local.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%s local read: %w", r.kind, err)
	}
	return loc != nil && !loc.Synced, nil
}

func (r *Reconciler[T]) push(ctx context.Context, rec T) error {
	if err := r.remote.Push(ctx, rec); err != nil {
		return fmt.Errorf("%s remote push: %w", r.kind, err)
	}
	marked, err := r.local.MarkSynced(ctx, rec)
	if err != nil {
		return fmt.Errorf("%s mark synced: %w", r.kind, err)
	}
	if !marked {
		r.logger.Info("local row changed during push, left pending",
			slog.String("key", rec.Key().String()))
	}
	return nil
}
