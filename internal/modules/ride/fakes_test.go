package ride

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ridesafe/internal/modules/location"
	"ridesafe/internal/types"
)

// memStore is an in-memory SessionStore with the same activation semantics as
// the Postgres store.
type memStore struct {
	mu       sync.Mutex
	nextID   int
	sessions map[types.ID]*Session
	order    []types.ID
	points   []Point
	progress []ProgressCommand
	ended    []EndCommand

	// endPoints records how many points were stored when each End ran.
	endPoints []int

	// appendEntered is signalled and appendGate awaited on every AppendPoint
	// when set.
	appendEntered chan struct{}
	appendGate    chan struct{}

	activateErr error
	appendErr   error
	progressErr error
	endErr      error
}

func newMemStore() *memStore {
	return &memStore{sessions: map[types.ID]*Session{}}
}

func (m *memStore) Activate(_ context.Context, cmd ActivateCommand) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activateErr != nil {
		return nil, m.activateErr
	}
	for _, s := range m.sessions {
		if s.RiderID == cmd.RiderID && s.Status == StatusActive {
			s.Status = StatusEnded
			at := cmd.StartedAt
			s.EndedAt = &at
		}
	}
	m.nextID++
	id := types.ID(fmt.Sprintf("sess-%d", m.nextID))
	s := &Session{ID: id, RiderID: cmd.RiderID, Status: StatusActive, StartedAt: cmd.StartedAt, LastKnown: cmd.At}
	m.sessions[id] = s
	m.order = append(m.order, id)
	return s.clone(), nil
}

func (m *memStore) AppendPoint(_ context.Context, p Point) error {
	if m.appendEntered != nil {
		select {
		case m.appendEntered <- struct{}{}:
		default:
		}
	}
	if m.appendGate != nil {
		<-m.appendGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.points = append(m.points, p)
	return nil
}

func (m *memStore) UpdateProgress(_ context.Context, cmd ProgressCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.progressErr != nil {
		return m.progressErr
	}
	m.progress = append(m.progress, cmd)
	if s, ok := m.sessions[cmd.ID]; ok && s.Status == StatusActive {
		s.LastKnown = cmd.LastKnown
		if cmd.DistanceMeters > s.DistanceMeters {
			s.DistanceMeters = cmd.DistanceMeters
		}
	}
	return nil
}

func (m *memStore) End(_ context.Context, cmd EndCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.endErr != nil {
		return m.endErr
	}
	s, ok := m.sessions[cmd.ID]
	if !ok {
		return ErrNotFound
	}
	m.ended = append(m.ended, cmd)
	m.endPoints = append(m.endPoints, len(m.points))
	s.Status = StatusEnded
	if s.EndedAt == nil {
		at := cmd.EndedAt
		s.EndedAt = &at
	}
	s.LastKnown = cmd.LastKnown
	s.DistanceMeters = cmd.DistanceMeters
	s.ElapsedSeconds = cmd.ElapsedSeconds
	s.Route = append([]types.Coordinate(nil), cmd.Route...)
	return nil
}

func (m *memStore) session(id types.ID) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.sessions[id]
}

func (m *memStore) pointCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points)
}

func (m *memStore) pointsAtEnd() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.endPoints...)
}

func (m *memStore) endCommands() []EndCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EndCommand(nil), m.ended...)
}

// fakeProvider delivers samples synchronously from emit.
type fakeProvider struct {
	mu       sync.Mutex
	pos      types.Coordinate
	posErr   error
	watchErr error
	onSample func(location.Sample)
	removed  int
}

func (p *fakeProvider) CurrentPosition(ctx context.Context) (types.Coordinate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.posErr != nil {
		return types.Coordinate{}, p.posErr
	}
	return p.pos, nil
}

func (p *fakeProvider) Watch(_ context.Context, _ location.WatchConfig, onSample func(location.Sample)) (location.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watchErr != nil {
		return nil, p.watchErr
	}
	p.onSample = onSample
	return fakeSubscription{p: p}, nil
}

func (p *fakeProvider) emit(c types.Coordinate) {
	p.mu.Lock()
	fn := p.onSample
	p.mu.Unlock()
	if fn != nil {
		fn(location.Sample{Coordinate: c, CapturedAt: time.Now()})
	}
}

func (p *fakeProvider) watching() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onSample != nil
}

type fakeSubscription struct {
	p *fakeProvider
}

func (s fakeSubscription) Remove() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.onSample = nil
	s.p.removed++
}

// fakeTicker hands out ticks only when the test sends them.
type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

func (f *fakeTicker) tick(n int) {
	for i := 0; i < n; i++ {
		f.ch <- time.Now()
	}
}

type fakeLive struct {
	mu        sync.Mutex
	published int
	withdrawn int
	err       error
}

func (l *fakeLive) Publish(context.Context, types.ID, types.Coordinate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.published++
	return l.err
}

func (l *fakeLive) Withdraw(context.Context, types.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.withdrawn++
	return l.err
}

type fakeHub struct {
	mu       sync.Mutex
	messages [][]byte
}

func (h *fakeHub) Broadcast(_ context.Context, _ types.ID, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, payload)
	return nil
}

func (h *fakeHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

var errMirror = errors.New("remote unavailable")
