package events

import (
	"context"

	"github.com/deepscifi/guide/internal/session"
)

// DefaultBuffer is the number of events a Stream holds before the producer
// waits for the consumer.
const DefaultBuffer = 16

// Stream is the ordered event channel of a single turn. One producer writes,
// one consumer reads; FIFO order is the channel's.
type Stream struct {
	ch      chan Event
	outcome Outcome
	closed  bool
}

// Emitter is the producer side of a Stream.
type Emitter struct {
	s   *Stream
	seq int
}

// NewStream returns a stream and its emitter.
func NewStream(buffer int) (*Stream, *Emitter) {
	if buffer < 0 {
		buffer = 0
	}
	s := &Stream{ch: make(chan Event, buffer)}
	return s, &Emitter{s: s}
}

// Events returns the receive side. It is closed when the turn ends.
func (s *Stream) Events() <-chan Event { return s.ch }

// Outcome reports how the turn ended. Only valid after Events is closed.
func (s *Stream) Outcome() Outcome { return s.outcome }

// Drain consumes the stream, returning every event and the outcome.
func (s *Stream) Drain() ([]Event, Outcome) {
	var out []Event
	for ev := range s.ch {
		out = append(out, ev)
	}
	return out, s.outcome
}

// Snapshot emits a deep copy of state. It returns ctx.Err() if the consumer
// is gone before the event could be handed over.
func (e *Emitter) Snapshot(ctx context.Context, state session.State, tool string) error {
	return e.send(ctx, Event{Type: TypeStateSnapshot, Tool: tool, Snapshot: state.Clone()})
}

// Terminal emits the closing snapshot of a turn.
func (e *Emitter) Terminal(ctx context.Context, state session.State) error {
	return e.send(ctx, Event{Type: TypeStateSnapshot, Terminal: true, Snapshot: state.Clone()})
}

func (e *Emitter) send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev.Seq = e.seq + 1
	select {
	case e.s.ch <- ev:
		e.seq++
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Emitted returns how many events have been handed over.
func (e *Emitter) Emitted() int { return e.seq }

// Close records the outcome and closes the stream. Calling it twice is a no-op.
func (e *Emitter) Close(o Outcome) {
	if e.s.closed {
		return
	}
	e.s.closed = true
	e.s.outcome = o
	close(e.s.ch)
}
