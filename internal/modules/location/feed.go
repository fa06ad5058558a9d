// README: Feed adapts samples posted by the rider's device into a Provider.
package location

import (
	"context"
	"log/slog"
	"sync"

	"ridesafe/internal/types"
)

const subscriptionBuffer = 256

// Feed is a per-rider Provider fed by Push. Samples reach each subscriber in
// the order they were pushed.
type Feed struct {
	mu      sync.Mutex
	granted bool
	last    *Sample
	subs    map[*feedSubscription]struct{}
	logger  *slog.Logger
}

func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		subs:   map[*feedSubscription]struct{}{},
		logger: logger.With(slog.String("component", "location.feed")),
	}
}

// SetPermission records whether the device granted location access.
func (f *Feed) SetPermission(granted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.granted = granted
}

func (f *Feed) Granted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.granted
}

// Push accepts a sample from the device and fans it out to subscribers. A
// subscriber whose buffer is full drops the sample.
func (f *Feed) Push(s Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.granted {
		return ErrPermissionDenied
	}
	sample := s
	f.last = &sample
	for sub := range f.subs {
		select {
		case sub.samples <- s:
		default:
			f.logger.Warn("subscriber buffer full, dropping sample",
				slog.Time("captured_at", s.CapturedAt))
		}
	}
	return nil
}

func (f *Feed) CurrentPosition(ctx context.Context) (types.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return types.Coordinate{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.granted {
		return types.Coordinate{}, ErrPermissionDenied
	}
	if f.last == nil {
		return types.Coordinate{}, ErrPositionUnavailable
	}
	return f.last.Coordinate, nil
}

func (f *Feed) Watch(ctx context.Context, cfg WatchConfig, onSample func(Sample)) (Subscription, error) {
	f.mu.Lock()
	if !f.granted {
		f.mu.Unlock()
		return nil, ErrPermissionDenied
	}
	sub := &feedSubscription{
		feed:    f,
		cfg:     cfg,
		samples: make(chan Sample, subscriptionBuffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go sub.run(ctx, onSample)
	return sub, nil
}

func (f *Feed) detach(sub *feedSubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, sub)
}

type feedSubscription struct {
	feed    *Feed
	cfg     WatchConfig
	samples chan Sample
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (s *feedSubscription) run(ctx context.Context, onSample func(Sample)) {
	defer close(s.done)
	defer s.feed.detach(s)

	var prev *Sample
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case sample := <-s.samples:
			if prev != nil && !s.accept(*prev, sample) {
				continue
			}
			p := sample
			prev = &p
			onSample(sample)
		}
	}
}

// accept applies the watch thresholds relative to the last delivered sample.
func (s *feedSubscription) accept(prev, next Sample) bool {
	if s.cfg.MinInterval > 0 && !prev.CapturedAt.IsZero() && !next.CapturedAt.IsZero() &&
		next.CapturedAt.Sub(prev.CapturedAt) < s.cfg.MinInterval {
		return false
	}
	if s.cfg.MinDistanceM > 0 && DistanceMeters(prev.Coordinate, next.Coordinate) < s.cfg.MinDistanceM {
		return false
	}
	return true
}

// Remove stops delivery and waits for the delivery goroutine to exit.
func (s *feedSubscription) Remove() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

// Feeds hands out one Feed per rider.
type Feeds struct {
	mu     sync.Mutex
	feeds  map[types.ID]*Feed
	logger *slog.Logger
}

func NewFeeds(logger *slog.Logger) *Feeds {
	return &Feeds{feeds: map[types.ID]*Feed{}, logger: logger}
}

func (fs *Feeds) For(riderID types.ID) *Feed {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.feeds[riderID]
	if !ok {
		f = NewFeed(fs.logger)
		fs.feeds[riderID] = f
	}
	return f
}
