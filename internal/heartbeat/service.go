// Package heartbeat provides a periodic background probe of the entity store.
// Its last result backs the readiness endpoint.
package heartbeat

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Pinger is anything that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service pings the store every interval and remembers whether the last
// probe succeeded.
type Service struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration

	healthy atomic.Bool
	checked atomic.Bool
}

// NewService creates a heartbeat Service.
// interval defaults to 30 seconds if zero.
func NewService(pinger Pinger, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Service{
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
	}
}

// Healthy reports the result of the most recent probe. It is false until the
// first probe has run.
func (s *Service) Healthy() bool { return s.healthy.Load() }

// Start probes once immediately, then on every tick until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("heartbeat: started", "interval", s.interval)
	s.Check(ctx)

	for {
		select {
		case <-ticker.C:
			s.Check(ctx)
		case <-ctx.Done():
			slog.Info("heartbeat: stopped")
			return ctx.Err()
		}
	}
}

// Check runs one probe and records the result, logging only transitions.
func (s *Service) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.pinger.Ping(pctx)
	cancel()

	ok := err == nil
	prev := s.healthy.Swap(ok)
	first := !s.checked.Swap(true)

	switch {
	case ok && (first || !prev):
		slog.Info("heartbeat: store reachable")
	case !ok && (first || prev):
		slog.Warn("heartbeat: store unreachable", "err", err)
	}
	return ok
}
