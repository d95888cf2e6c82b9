package heartbeat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type flakyPinger struct {
	fail  atomic.Bool
	calls atomic.Int32
}

func (p *flakyPinger) Ping(ctx context.Context) error {
	p.calls.Add(1)
	if p.fail.Load() {
		return errors.New("connection refused")
	}
	return ctx.Err()
}

func TestCheck_Transitions(t *testing.T) {
	p := &flakyPinger{}
	s := NewService(p, time.Minute)

	if s.Healthy() {
		t.Fatal("service should not be healthy before the first probe")
	}
	if !s.Check(context.Background()) || !s.Healthy() {
		t.Fatal("expected healthy after a successful probe")
	}

	p.fail.Store(true)
	if s.Check(context.Background()) || s.Healthy() {
		t.Fatal("expected unhealthy after a failed probe")
	}

	p.fail.Store(false)
	if !s.Check(context.Background()) {
		t.Fatal("expected recovery after the store comes back")
	}
}

func TestStart_ProbesImmediatelyAndStops(t *testing.T) {
	p := &flakyPinger{}
	s := NewService(p, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for p.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if p.calls.Load() < 3 {
		t.Errorf("expected at least 3 probes, got %d", p.calls.Load())
	}
	if !s.Healthy() {
		t.Error("expected healthy")
	}
}

func TestNewService_DefaultInterval(t *testing.T) {
	s := NewService(&flakyPinger{}, 0)
	if s.interval != 30*time.Second {
		t.Errorf("expected default interval 30s, got %v", s.interval)
	}
	if s.timeout != 5*time.Second {
		t.Errorf("expected probe timeout capped at 5s, got %v", s.timeout)
	}
}
