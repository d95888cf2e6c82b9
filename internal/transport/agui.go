package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/deepscifi/guide/internal/agent"
	"github.com/deepscifi/guide/internal/events"
	"github.com/deepscifi/guide/internal/schema"
	"github.com/deepscifi/guide/internal/session"
)

// AG-UI event types emitted on /voice/chat.
const (
	EventRunStarted         = "RUN_STARTED"
	EventRunFinished        = "RUN_FINISHED"
	EventRunError           = "RUN_ERROR"
	EventStateSnapshot      = "STATE_SNAPSHOT"
	EventTextMessageStart   = "TEXT_MESSAGE_START"
	EventTextMessageContent = "TEXT_MESSAGE_CONTENT"
	EventTextMessageEnd     = "TEXT_MESSAGE_END"
)

// InputMessage is one entry of RunAgentInput.messages.
type InputMessage struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RunAgentInput is the AG-UI request body. Both snake_case and camelCase
// ids are accepted.
type RunAgentInput struct {
	ThreadID string
	RunID    string
	Messages []InputMessage
	// State is nil when the client sent none.
	State *session.State
}

func (in *RunAgentInput) UnmarshalJSON(b []byte) error {
	var wire struct {
		ThreadID      string          `json:"thread_id"`
		ThreadIDCamel string          `json:"threadId"`
		RunID         string          `json:"run_id"`
		RunIDCamel    string          `json:"runId"`
		Messages      []InputMessage  `json:"messages"`
		State         json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	in.ThreadID = firstNonEmpty(wire.ThreadID, wire.ThreadIDCamel)
	in.RunID = firstNonEmpty(wire.RunID, wire.RunIDCamel)
	in.Messages = wire.Messages
	in.State = nil
	if raw := bytes.TrimSpace(wire.State); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		var st session.State
		if err := json.Unmarshal(raw, &st); err != nil {
			return fmt.Errorf("state: %w", err)
		}
		in.State = &st
	}
	return nil
}

// History converts the input messages into engine history. Only user and
// assistant text is kept; the last kept message must be the user's.
func (in RunAgentInput) History() (schema.Messages, error) {
	h := schema.NewMessages()
	last := ""
	for _, m := range in.Messages {
		switch schema.Role(m.Role) {
		case schema.RoleUser:
			h.AddUser(m.Content)
		case schema.RoleAssistant:
			h.AddAssistant(m.Content, nil, "")
		default:
			continue
		}
		last = m.Role
	}
	if last != string(schema.RoleUser) || strings.TrimSpace(h.LastUser()) == "" {
		return h, errors.New("no user message to answer")
	}
	return h, nil
}

// aguiEvent is the union of the AG-UI events the guide emits.
type aguiEvent struct {
	Type      string         `json:"type"`
	ThreadID  string         `json:"threadId,omitempty"`
	RunID     string         `json:"runId,omitempty"`
	MessageID string         `json:"messageId,omitempty"`
	Role      string         `json:"role,omitempty"`
	Delta     string         `json:"delta,omitempty"`
	Snapshot  *session.State `json:"snapshot,omitempty"`
	Message   string         `json:"message,omitempty"`
	Code      string         `json:"code,omitempty"`
	Hint      string         `json:"hint,omitempty"`
}

// sseWriter frames events as "event: <TYPE>\ndata: <json>\n\n".
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	err     error
}

func (s *sseWriter) send(ev aguiEvent) error {
	if s.err != nil {
		return s.err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.err = err
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		s.err = err
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	var in RunAgentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large",
				fmt.Sprintf("keep the request under %d bytes; trim old messages", MaxBodyBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body",
			`send a JSON object with "messages" and optionally "run_id", "thread_id" and "state"`)
		return
	}
	history, err := in.History()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(),
			`the last message must have role "user" and non-empty content`)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}

	runID := firstNonEmpty(in.RunID, uuid.NewString())
	threadID := firstNonEmpty(in.ThreadID, uuid.NewString())

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sse := &sseWriter{w: w, flusher: flusher}
	_ = sse.send(aguiEvent{Type: EventRunStarted, ThreadID: threadID, RunID: runID})

	stream := s.runner.RunTurn(ctx, agent.TurnRequest{
		RunID:          runID,
		ConversationID: threadID,
		History:        history,
		State:          in.State,
	})
	for ev := range stream.Events() {
		snap := ev.Snapshot
		if err := sse.send(aguiEvent{Type: EventStateSnapshot, Snapshot: &snap}); err != nil {
			// Client gone; stop the turn and let the stream drain.
			cancel()
		}
	}

	out := stream.Outcome()
	if out.Kind == events.OutcomeCancelled || sse.err != nil {
		slog.Info("transport: sse run ended early", "run", runID, "outcome", out.Kind)
		return
	}
	s.finishRun(sse, threadID, runID, out)
}

func (s *Server) finishRun(sse *sseWriter, threadID, runID string, out events.Outcome) {
	if out.Narration != "" {
		msgID := uuid.NewString()
		_ = sse.send(aguiEvent{Type: EventTextMessageStart, MessageID: msgID, Role: string(schema.RoleAssistant)})
		_ = sse.send(aguiEvent{Type: EventTextMessageContent, MessageID: msgID, Delta: out.Narration})
		_ = sse.send(aguiEvent{Type: EventTextMessageEnd, MessageID: msgID})
	}
	if out.Kind.Failed() {
		msg, hint := failure(out.Kind)
		slog.Warn("transport: run failed", "run", runID, "outcome", out.Kind, "err", out.Err)
		_ = sse.send(aguiEvent{Type: EventRunError, Message: msg, Code: string(out.Kind), Hint: hint})
		return
	}
	_ = sse.send(aguiEvent{Type: EventRunFinished, ThreadID: threadID, RunID: runID})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
