// Package session holds the per-conversation view state the exploration UI
// mirrors, plus the multi-turn history long-lived transports keep.
package session

import (
	"log/slog"

	"github.com/deepscifi/guide/internal/panel"
)

// Status is the guide's conversational phase.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusThinking Status = "thinking"
	StatusSpeaking Status = "speaking"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusIdle || s == StatusThinking || s == StatusSpeaking
}

// State is everything the client renders. Field order is the wire order.
//
// Panels and Breadcrumbs are replaced wholesale by each tool call, never
// patched. FocusID and FocusName are both set or both nil.
type State struct {
	Narration   string        `json:"response_text"`
	Panels      []panel.Panel `json:"panels"`
	FocusID     *string       `json:"current_world_id"`
	FocusName   *string       `json:"current_world_name"`
	Status      Status        `json:"status"`
	Breadcrumbs []string      `json:"breadcrumbs"`
}

// New returns an empty idle state.
func New() State {
	return State{
		Panels:      []panel.Panel{},
		Status:      StatusIdle,
		Breadcrumbs: []string{},
	}
}

// Clone returns a deep copy. Panels themselves are immutable and shared.
func (s State) Clone() State {
	out := s
	out.Panels = append(make([]panel.Panel, 0, len(s.Panels)), s.Panels...)
	out.Breadcrumbs = append(make([]string, 0, len(s.Breadcrumbs)), s.Breadcrumbs...)
	if s.FocusID != nil {
		id := *s.FocusID
		out.FocusID = &id
	}
	if s.FocusName != nil {
		name := *s.FocusName
		out.FocusName = &name
	}
	return out
}

// Focused reports the focused entity, if any.
func (s State) Focused() (id, name string, ok bool) {
	if s.FocusID == nil {
		return "", "", false
	}
	if s.FocusName != nil {
		name = *s.FocusName
	}
	return *s.FocusID, name, true
}

// FocusOp says what a tool does to the focused entity.
type FocusOp int

const (
	FocusKeep FocusOp = iota
	FocusSet
	FocusClear
)

// Update is one tool's complete write to the state, computed before it is
// applied so a failed tool never leaves a half-written state behind.
type Update struct {
	Narration   string
	Panels      []panel.Panel
	Breadcrumbs []string
	Focus       FocusOp
	FocusID     string
	FocusName   string
}

// Apply replaces panels, breadcrumbs and narration and adjusts focus.
// Status is left alone; only the turn controller changes it.
func (s *State) Apply(u Update) {
	s.Narration = u.Narration
	s.Panels = append(make([]panel.Panel, 0, len(u.Panels)), u.Panels...)
	s.Breadcrumbs = append(make([]string, 0, len(u.Breadcrumbs)), u.Breadcrumbs...)
	switch u.Focus {
	case FocusSet:
		id, name := u.FocusID, u.FocusName
		s.FocusID, s.FocusName = &id, &name
	case FocusClear:
		s.FocusID, s.FocusName = nil, nil
	}
}

// Sanitize makes a client-supplied state safe to continue from: nil slices
// become empty, unknown panel kinds are dropped, half-set focus is cleared
// and an unknown status resets to idle.
func (s *State) Sanitize() {
	if s.Breadcrumbs == nil {
		s.Breadcrumbs = []string{}
	}
	kept := make([]panel.Panel, 0, len(s.Panels))
	for _, p := range s.Panels {
		if !p.Kind.Valid() {
			slog.Warn("session: dropping unknown panel kind", "kind", p.Kind)
			continue
		}
		kept = append(kept, p)
	}
	s.Panels = kept
	if s.FocusID == nil || *s.FocusID == "" {
		s.FocusID, s.FocusName = nil, nil
	} else if s.FocusName == nil {
		empty := ""
		s.FocusName = &empty
	}
	if !s.Status.Valid() {
		s.Status = StatusIdle
	}
}
