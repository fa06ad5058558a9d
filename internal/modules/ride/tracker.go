// README: Ride tracker samples the rider's position, accumulates distance and
// elapsed time, and mirrors accepted points to the remote store without
// blocking sampling.
package ride

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ridesafe/internal/config"
	"ridesafe/internal/modules/location"
	"ridesafe/internal/types"
)

// SessionStore is the remote persistence the tracker mirrors into.
// defaultNoiseThresholdM applies when the configured threshold is unset.
const defaultNoiseThresholdM = 1.0

type SessionStore interface {
	Activate(ctx context.Context, cmd ActivateCommand) (*Session, error)
	AppendPoint(ctx context.Context, p Point) error
	UpdateProgress(ctx context.Context, cmd ProgressCommand) error
	End(ctx context.Context, cmd EndCommand) error
}

// LivePublisher keeps the rider in the live nearby index.
type LivePublisher interface {
	Publish(ctx context.Context, riderID types.ID, pos types.Coordinate) error
	Withdraw(ctx context.Context, riderID types.ID) error
}

// Broadcaster pushes ride updates to stream listeners.
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionID types.ID, payload []byte) error
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (tt timeTicker) C() <-chan time.Time { return tt.t.C }
func (tt timeTicker) Stop()               { tt.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// TrackerDeps wires a Tracker. Live, Hub, Logger, Now and NewTicker are
// optional.
type TrackerDeps struct {
	Store     SessionStore
	Provider  location.Provider
	Live      LivePublisher
	Hub       Broadcaster
	Config    config.TrackingConfig
	Logger    *slog.Logger
	Now       func() time.Time
	NewTicker func(time.Duration) Ticker
}

// Tracker runs at most one session at a time: idle -> active -> idle.
type Tracker struct {
	store     SessionStore
	provider  location.Provider
	live      LivePublisher
	hub       Broadcaster
	cfg       config.TrackingConfig
	logger    *slog.Logger
	now       func() time.Time
	newTicker func(time.Duration) Ticker

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu        sync.Mutex
	session   *Session
	points    int
	mirrorCtx context.Context
	sub       location.Subscription
	ticker    Ticker
	tickStop  chan struct{}
	tickDone  chan struct{}

	mirrors mirrorGroup
}

func NewTracker(deps TrackerDeps) *Tracker {
	cfg := deps.Config
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.NoiseThresholdM <= 0 {
		cfg.NoiseThresholdM = defaultNoiseThresholdM
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	newTicker := deps.NewTicker
	if newTicker == nil {
		newTicker = newTimeTicker
	}
	return &Tracker{
		store:     deps.Store,
		provider:  deps.Provider,
		live:      deps.Live,
		hub:       deps.Hub,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "ride.tracker")),
		now:       now,
		newTicker: newTicker,
	}
}

// Start opens a new session at the rider's current position. On any failure
// the tracker stays idle and nothing acquired is left running.
func (t *Tracker) Start(ctx context.Context, riderID types.ID) (*Session, error) {
	if riderID.Empty() {
		return nil, ErrBadRequest
	}
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	t.mu.Lock()
	running := t.session != nil
	t.mu.Unlock()
	if running {
		return nil, ErrSessionActive
	}

	pos, err := t.provider.CurrentPosition(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial position: %w", err)
	}

	startedAt := t.now()
	sess, err := t.store.Activate(ctx, ActivateCommand{RiderID: riderID, At: pos, StartedAt: startedAt})
	if err != nil {
		return nil, fmt.Errorf("activate session: %w", err)
	}
	sess.Route = []types.Coordinate{pos}

	// the session outlives the request that started it
	runCtx := context.WithoutCancel(ctx)

	t.mu.Lock()
	t.session = sess
	t.points = 1
	t.mirrorCtx = runCtx
	t.mu.Unlock()

	sub, err := t.provider.Watch(runCtx, t.watchConfig(), t.handleSample)
	if err != nil {
		t.mu.Lock()
		t.session = nil
		t.points = 0
		t.mu.Unlock()
		if endErr := t.store.End(runCtx, EndCommand{
			ID:        sess.ID,
			EndedAt:   t.now(),
			LastKnown: pos,
			Route:     sess.Route,
		}); endErr != nil {
			t.logger.Error("close session after failed watch",
				slog.String("session_id", sess.ID.String()), slog.Any("err", endErr))
		}
		return nil, fmt.Errorf("watch position: %w", err)
	}

	tk := t.newTicker(t.cfg.TickInterval)
	stop := make(chan struct{})
	done := make(chan struct{})

	t.mu.Lock()
	t.sub = sub
	t.ticker = tk
	t.tickStop = stop
	t.tickDone = done
	initial := Point{SessionID: sess.ID, Coordinate: pos, CapturedAt: startedAt}
	progress := ProgressCommand{ID: sess.ID, LastKnown: pos}
	t.mirrors.Go(func() { t.mirrorPoint(runCtx, riderID, initial, progress) })
	out := sess.clone()
	t.mu.Unlock()

	go t.runTicker(tk, stop, done)

	t.logger.Info("ride started",
		slog.String("session_id", sess.ID.String()), slog.String("rider_id", riderID.String()))
	return out, nil
}

func (t *Tracker) watchConfig() location.WatchConfig {
	return location.WatchConfig{
		Accuracy:     location.Accuracy(t.cfg.WatchAccuracy),
		MinInterval:  t.cfg.WatchMinInterval,
		MinDistanceM: t.cfg.WatchMinDistanceM,
	}
}

// handleSample measures from the last accepted point, so drift below the
// noise threshold accumulates until it crosses it.
func (t *Tracker) handleSample(s location.Sample) {
	if !s.Coordinate.Valid() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	sess := t.session
	if sess == nil || len(sess.Route) == 0 {
		return
	}

	last := sess.Route[len(sess.Route)-1]
	d := location.DistanceMeters(last, s.Coordinate)
	if d < t.cfg.NoiseThresholdM {
		return
	}

	sess.Route = append(sess.Route, s.Coordinate)
	sess.DistanceMeters += d
	sess.LastKnown = s.Coordinate
	t.points++

	capturedAt := s.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = t.now()
	}
	p := Point{SessionID: sess.ID, Coordinate: s.Coordinate, CapturedAt: capturedAt}
	progress := ProgressCommand{ID: sess.ID, LastKnown: s.Coordinate, DistanceMeters: sess.DistanceMeters}
	riderID := sess.RiderID
	ctx := t.mirrorCtx
	t.mirrors.Go(func() { t.mirrorPoint(ctx, riderID, p, progress) })
}

type streamMessage struct {
	Type           string            `json:"type"`
	SessionID      types.ID          `json:"session_id"`
	RiderID        types.ID          `json:"rider_id"`
	Coordinate     *types.Coordinate `json:"coordinate,omitempty"`
	CapturedAt     *time.Time        `json:"captured_at,omitempty"`
	DistanceMeters float64           `json:"distance_m"`
	ElapsedSeconds int64             `json:"elapsed_s,omitempty"`
}

// mirrorPoint writes one accepted point everywhere it is mirrored. Each
// failure is logged and the rest still run.
func (t *Tracker) mirrorPoint(ctx context.Context, riderID types.ID, p Point, progress ProgressCommand) {
	attrs := []any{slog.String("session_id", p.SessionID.String())}

	if err := t.store.AppendPoint(ctx, p); err != nil {
		t.logger.Error("mirror point", append(attrs, slog.Any("err", err))...)
	}
	if err := t.store.UpdateProgress(ctx, progress); err != nil {
		t.logger.Error("mirror progress", append(attrs, slog.Any("err", err))...)
	}
	if t.live != nil {
		if err := t.live.Publish(ctx, riderID, p.Coordinate); err != nil {
			t.logger.Warn("publish live location", append(attrs, slog.Any("err", err))...)
		}
	}
	coord, at := p.Coordinate, p.CapturedAt
	t.broadcast(ctx, streamMessage{
		Type:           "point",
		SessionID:      p.SessionID,
		RiderID:        riderID,
		Coordinate:     &coord,
		CapturedAt:     &at,
		DistanceMeters: progress.DistanceMeters,
	})
}

func (t *Tracker) broadcast(ctx context.Context, msg streamMessage) {
	if t.hub == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		t.logger.Error("encode stream message", slog.Any("err", err))
		return
	}
	if err := t.hub.Broadcast(ctx, msg.SessionID, payload); err != nil {
		t.logger.Warn("broadcast ride update",
			slog.String("session_id", msg.SessionID.String()), slog.Any("err", err))
	}
}

func (t *Tracker) runTicker(tk Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-tk.C():
			t.mu.Lock()
			if t.session != nil {
				t.session.ElapsedSeconds++
			}
			t.mu.Unlock()
		}
	}
}

// Stop ends the running session. It is a no-op returning (nil, nil) when the
// tracker is idle.
func (t *Tracker) Stop(ctx context.Context) (*Session, error) {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	t.mu.Lock()
	running := t.session != nil
	sub, tk, stop, done := t.sub, t.ticker, t.tickStop, t.tickDone
	t.sub, t.ticker, t.tickStop, t.tickDone = nil, nil, nil, nil
	t.mu.Unlock()

	if sub != nil {
		sub.Remove()
	}
	if stop != nil {
		close(stop)
		<-done
	}
	if tk != nil {
		tk.Stop()
	}
	if !running {
		return nil, nil
	}

	if t.cfg.DrainOnStop {
		if err := t.mirrors.Wait(ctx); err != nil {
			t.logger.Warn("drain mirrors", slog.Int64("in_flight", t.mirrors.InFlight()), slog.Any("err", err))
		}
	}

	endedAt := t.now()
	t.mu.Lock()
	final := t.session.clone()
	t.session = nil
	t.points = 0
	t.mirrorCtx = nil
	t.mu.Unlock()

	final.Status = StatusEnded
	final.EndedAt = &endedAt

	err := t.store.End(ctx, EndCommand{
		ID:             final.ID,
		EndedAt:        endedAt,
		LastKnown:      final.LastKnown,
		DistanceMeters: final.DistanceMeters,
		ElapsedSeconds: final.ElapsedSeconds,
		Route:          final.Route,
	})
	if t.live != nil {
		if werr := t.live.Withdraw(ctx, final.RiderID); werr != nil {
			t.logger.Warn("withdraw live location",
				slog.String("rider_id", final.RiderID.String()), slog.Any("err", werr))
		}
	}
	t.broadcast(ctx, streamMessage{
		Type:           "ended",
		SessionID:      final.ID,
		RiderID:        final.RiderID,
		DistanceMeters: final.DistanceMeters,
		ElapsedSeconds: final.ElapsedSeconds,
	})
	if err != nil {
		t.logger.Error("end session", slog.String("session_id", final.ID.String()), slog.Any("err", err))
		return final, fmt.Errorf("end session: %w", err)
	}

	t.logger.Info("ride ended",
		slog.String("session_id", final.ID.String()),
		slog.Float64("distance_m", final.DistanceMeters),
		slog.Int64("elapsed_s", final.ElapsedSeconds))
	return final, nil
}

// Close is the teardown path.
func (t *Tracker) Close() error {
	_, err := t.Stop(context.Background())
	return err
}

func (t *Tracker) Snapshot() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		Session:  t.session.clone(),
		Points:   t.points,
		InFlight: t.mirrors.InFlight(),
	}, true
}

// LastPosition is the last accepted sample of the running session.
func (t *Tracker) LastPosition() (types.Coordinate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return types.Coordinate{}, false
	}
	return t.session.LastKnown, true
}
