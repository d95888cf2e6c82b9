// Package events carries state snapshots from a running turn to whichever
// transport is serving the client.
package events

import (
	"github.com/deepscifi/guide/internal/session"
)

// Type names an outbound event.
type Type string

// TypeStateSnapshot is a full replacement of the client's state.
const TypeStateSnapshot Type = "state_snapshot"

// Event is one outbound message. Snapshot is a private deep copy; later
// changes to the turn's state never reach an emitted event.
type Event struct {
	Type     Type          `json:"type"`
	Seq      int           `json:"seq"`
	Tool     string        `json:"tool,omitempty"`
	Terminal bool          `json:"terminal,omitempty"`
	Snapshot session.State `json:"snapshot"`
}

// OutcomeKind classifies how a turn ended.
type OutcomeKind string

const (
	OutcomeCompleted           OutcomeKind = "completed"
	OutcomeEngineFailure       OutcomeKind = "engine_failure"
	OutcomeUpstreamUnavailable OutcomeKind = "upstream_unavailable"
	OutcomeCancelled           OutcomeKind = "cancelled"
	OutcomeIterationLimit      OutcomeKind = "iteration_limit"
)

// Failed reports whether the outcome should surface as an error to the client.
func (k OutcomeKind) Failed() bool {
	return k == OutcomeEngineFailure || k == OutcomeUpstreamUnavailable
}

// Outcome summarises a finished turn.
type Outcome struct {
	Kind      OutcomeKind
	Narration string
	// State is the state the turn left behind, status back to idle.
	State     session.State
	ToolCalls int
	Err       error
}
