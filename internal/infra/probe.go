// README: Reachability probe used to skip sync pushes while offline.
package infra

import (
	"context"
	"time"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe reports the remote store reachable when a ping succeeds within
// the timeout.
type PingProbe struct {
	target  pinger
	timeout time.Duration
}

func NewPingProbe(target pinger, timeout time.Duration) *PingProbe {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &PingProbe{target: target, timeout: timeout}
}

func (p *PingProbe) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.target.Ping(ctx) == nil
}
