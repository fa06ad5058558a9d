// README: Reconciler tests against a real in-memory local cache and a
// counting fake remote.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"ridesafe/internal/infra"
	"ridesafe/internal/types"
)

type fakeRemote[T Record] struct {
	mu      sync.Mutex
	rows    map[types.ID]T
	fetches int
	pushes  int
	pushErr error
	// afterPush runs once, after the next successful push is stored.
	afterPush func(rec T)
}

func newFakeRemote[T Record]() *fakeRemote[T] {
	return &fakeRemote[T]{rows: map[types.ID]T{}}
}

func (f *fakeRemote[T]) Fetch(_ context.Context, key types.ID) (*T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	rec, ok := f.rows[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeRemote[T]) Push(_ context.Context, rec T) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes++
	if f.pushErr != nil {
		return f.pushErr
	}
	f.rows[rec.Key()] = rec
	if hook := f.afterPush; hook != nil {
		f.afterPush = nil
		hook(rec)
	}
	return nil
}

func (f *fakeRemote[T]) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches + f.pushes
}

type fakeProbe struct {
	online bool
}

func (p *fakeProbe) Online(context.Context) bool { return p.online }

var errRemote = errors.New("remote unavailable")

func openLocal(t *testing.T) *sql.DB {
	t.Helper()
	db, err := infra.OpenLocal(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open local cache: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newProfileReconciler(t *testing.T) (*Reconciler[Profile], *LocalProfiles, *fakeRemote[Profile], *fakeProbe) {
	t.Helper()
	local := NewLocalProfiles(openLocal(t))
	remote := newFakeRemote[Profile]()
	probe := &fakeProbe{online: true}
	return NewReconciler[Profile]("profile", local, remote, probe, nil), local, remote, probe
}

func TestSyncPendingIsIdempotent(t *testing.T) {
	r, local, remote, _ := newProfileReconciler(t)
	ctx := context.Background()

	if err := local.Upsert(ctx, Profile{ID: "u1", DisplayName: "Ana"}, false); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := r.SyncPending(ctx, "u1"); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if remote.pushes != 1 {
		t.Fatalf("pushes = %d, want 1", remote.pushes)
	}

	before := remote.calls()
	if err := r.SyncPending(ctx, "u1"); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if got := remote.calls(); got != before {
		t.Fatalf("second sync made %d remote calls, want 0", got-before)
	}

	loc, err := local.Get(ctx, "u1")
	if err != nil || loc == nil || !loc.Synced {
		t.Fatalf("local row not marked synced: %+v, %v", loc, err)
	}
}

func TestSyncPendingMissingRowMakesNoRemoteCall(t *testing.T) {
	r, _, remote, _ := newProfileReconciler(t)

	if err := r.SyncPending(context.Background(), "nobody"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if remote.calls() != 0 {
		t.Fatalf("remote called for missing row")
	}
}

func TestSyncPendingOfflineIsNoop(t *testing.T) {
	r, local, remote, probe := newProfileReconciler(t)
	probe.online = false
	ctx := context.Background()

	if err := local.Upsert(ctx, Profile{ID: "u1", DisplayName: "Ana"}, false); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := r.SyncPending(ctx, "u1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if remote.calls() != 0 {
		t.Fatalf("pushed while offline")
	}
	loc, _ := local.Get(ctx, "u1")
	if loc.Synced {
		t.Fatalf("row marked synced while offline")
	}
}

func TestSyncPendingPushErrorKeepsDirty(t *testing.T) {
	r, local, remote, _ := newProfileReconciler(t)
	remote.pushErr = errRemote
	ctx := context.Background()

	if err := local.Upsert(ctx, Profile{ID: "u1"}, false); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := r.SyncPending(ctx, "u1"); !errors.Is(err, errRemote) {
		t.Fatalf("sync error = %v, want %v", err, errRemote)
	}
	loc, _ := local.Get(ctx, "u1")
	if loc.Synced {
		t.Fatalf("row marked synced after failed push")
	}
}

func TestDownloadKeepsDirtyLocalEdit(t *testing.T) {
	r, local, remote, _ := newProfileReconciler(t)
	remote.pushErr = errRemote
	remote.rows["u1"] = Profile{ID: "u1", DisplayName: "Server Name"}
	ctx := context.Background()

	if err := local.Upsert(ctx, Profile{ID: "u1", DisplayName: "Local Edit"}, false); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := r.Download(ctx, "u1")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if got.DisplayName != "Local Edit" {
		t.Fatalf("download returned %q, want local edit", got.DisplayName)
	}
	if remote.pushes != 1 {
		t.Fatalf("push attempts = %d, want 1", remote.pushes)
	}
	if remote.fetches != 0 {
		t.Fatalf("pulled over a dirty row")
	}

	loc, err := local.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("local get: %v", err)
	}
	if loc.Synced || loc.Record.DisplayName != "Local Edit" {
		t.Fatalf("local edit lost or marked synced: %+v", loc)
	}
}

func TestDownloadPushesDirtyRowFirst(t *testing.T) {
	r, local, remote, _ := newProfileReconciler(t)
	remote.rows["u1"] = Profile{ID: "u1", DisplayName: "Server Name"}
	ctx := context.Background()

	if err := local.Upsert(ctx, Profile{ID: "u1", DisplayName: "Local Edit"}, false); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := r.Download(ctx, "u1")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if got.DisplayName != "Local Edit" || remote.rows["u1"].DisplayName != "Local Edit" {
		t.Fatalf("local edit did not win: got %q, remote %q", got.DisplayName, remote.rows["u1"].DisplayName)
	}
	loc, _ := local.Get(ctx, "u1")
	if !loc.Synced {
		t.Fatalf("row not marked synced after successful push")
	}
}

func TestDownloadRemoteAbsentLeavesLocalUntouched(t *testing.T) {
	r, local, _, _ := newProfileReconciler(t)
	ctx := context.Background()

	got, err := r.Download(ctx, "u1")
	if err != nil || got != nil {
		t.Fatalf("download of absent row = (%v, %v), want (nil, nil)", got, err)
	}
	if loc, _ := local.Get(ctx, "u1"); loc != nil {
		t.Fatalf("local row created for absent remote: %+v", loc)
	}
}

func TestDownloadStoresRemoteAsSynced(t *testing.T) {
	r, local, remote, _ := newProfileReconciler(t)
	remote.rows["u1"] = Profile{ID: "u1", DisplayName: "Server Name", Phone: "+52 33"}
	ctx := context.Background()

	if _, err := r.Download(ctx, "u1"); err != nil {
		t.Fatalf("download: %v", err)
	}
	loc, err := local.Get(ctx, "u1")
	if err != nil || loc == nil {
		t.Fatalf("local get: %+v, %v", loc, err)
	}
	if !loc.Synced || loc.Record.Phone != "+52 33" {
		t.Fatalf("unexpected local row: %+v", loc)
	}
}

func TestGetReadsThroughAndWarmsCache(t *testing.T) {
	r, local, remote, _ := newProfileReconciler(t)
	remote.rows["u1"] = Profile{ID: "u1", DisplayName: "Ana"}
	ctx := context.Background()

	got, err := r.Get(ctx, "u1")
	if err != nil || got == nil || got.DisplayName != "Ana" {
		t.Fatalf("get = (%+v, %v)", got, err)
	}
	if remote.fetches != 1 {
		t.Fatalf("fetches = %d, want 1", remote.fetches)
	}
	if _, err := r.Get(ctx, "u1"); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if remote.fetches != 1 {
		t.Fatalf("second get went remote")
	}
	if loc, _ := local.Get(ctx, "u1"); loc == nil || !loc.Synced {
		t.Fatalf("cache not warmed: %+v", loc)
	}

	missing, err := r.Get(ctx, "nobody")
	if err != nil || missing != nil {
		t.Fatalf("get missing = (%v, %v), want (nil, nil)", missing, err)
	}
}

func TestSaveKeepsEditWhenPushFails(t *testing.T) {
	r, _, remote, _ := newProfileReconciler(t)
	remote.pushErr = errRemote
	ctx := context.Background()

	if err := r.Save(ctx, Profile{ID: "u1", DisplayName: "Ana"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	pending, err := r.Pending(ctx, "u1")
	if err != nil || !pending {
		t.Fatalf("pending = (%v, %v), want true", pending, err)
	}

	remote.pushErr = nil
	if err := r.SyncPending(ctx, "u1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if pending, _ := r.Pending(ctx, "u1"); pending {
		t.Fatalf("still pending after sync")
	}
	if remote.rows["u1"].DisplayName != "Ana" {
		t.Fatalf("remote not updated")
	}
}

func TestEditDuringPushStaysPending(t *testing.T) {
	r, local, remote, _ := newProfileReconciler(t)
	ctx := context.Background()

	if err := local.Upsert(ctx, Profile{ID: "u1", DisplayName: "A"}, false); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	remote.afterPush = func(Profile) {
		if err := local.Upsert(ctx, Profile{ID: "u1", DisplayName: "B"}, false); err != nil {
			t.Errorf("concurrent upsert: %v", err)
		}
	}
	if err := r.SyncPending(ctx, "u1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	loc, err := local.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("local get: %v", err)
	}
	if loc.Record.DisplayName != "B" || loc.Synced {
		t.Fatalf("edit made during push = %+v, want B still pending", loc)
	}

	if err := r.SyncPending(ctx, "u1"); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if remote.pushes != 2 || remote.rows["u1"].DisplayName != "B" {
		t.Fatalf("pushes=%d remote=%q, want 2 and B", remote.pushes, remote.rows["u1"].DisplayName)
	}
	if pending, _ := r.Pending(ctx, "u1"); pending {
		t.Fatalf("still pending after pushing B")
	}
}
