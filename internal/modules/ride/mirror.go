package ride

import (
	"context"
	"sync"
	"sync/atomic"
)

// mirrorGroup tracks detached mirror tasks so Stop can optionally drain them.
type mirrorGroup struct {
	wg       sync.WaitGroup
	inflight atomic.Int64
}

func (g *mirrorGroup) Go(fn func()) {
	g.wg.Add(1)
	g.inflight.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.inflight.Add(-1)
		fn()
	}()
}

// Wait blocks until every task finished or ctx is done.
func (g *mirrorGroup) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *mirrorGroup) InFlight() int64 {
	return g.inflight.Load()
}
