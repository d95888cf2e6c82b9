package agent

import (
	"context"
	"errors"
	"log/slog"

	"github.com/deepscifi/guide/internal/events"
	"github.com/deepscifi/guide/internal/schema"
	"github.com/deepscifi/guide/internal/session"
	"github.com/deepscifi/guide/internal/shared/llmutils"
	"github.com/deepscifi/guide/internal/shared/stringutils"
	"github.com/deepscifi/guide/internal/tools"
)

// Narrations used when a turn cannot end with the engine's own words.
const (
	FallbackNarration  = "Ask me about the worlds of Deep Sci-Fi."
	EngineFailureText  = "Sorry, I lost my train of thought. Please ask me again."
	UpstreamFailedText = "I can't reach the archive right now. Please try again in a moment."
	IterationLimitText = "I've explored as far as I can for now. Ask me to continue."
)

// TurnRequest is one user turn.
type TurnRequest struct {
	RunID          string
	ConversationID string
	// History is the conversation so far; its last message is the user's
	// new message.
	History schema.Messages
	// State is the client's last snapshot, or nil for a fresh conversation.
	State *session.State
}

// RunTurn starts a turn and returns its event stream at once. The stream
// always closes, whatever happens; its Outcome is valid after that.
// Cancelling ctx stops the turn after the in-flight store read.
func (g *Guide) RunTurn(ctx context.Context, req TurnRequest) *events.Stream {
	stream, em := events.NewStream(g.buffer)
	go g.runTurn(ctx, req, em)
	return stream
}

type turn struct {
	g           *Guide
	req         TurnRequest
	em          *events.Emitter
	state       session.State
	lastSummary string
	toolCalls   int
}

func (g *Guide) runTurn(ctx context.Context, req TurnRequest, em *events.Emitter) {
	ctx = tools.WithTurn(ctx, tools.TurnContext{RunID: req.RunID, ConversationID: req.ConversationID})
	ctx, finish := g.observer.TurnStarted(ctx, req.RunID)

	t := &turn{g: g, req: req, em: em, state: session.New()}
	if req.State != nil {
		t.state = req.State.Clone()
		t.state.Sanitize()
	}
	t.state.Status = session.StatusThinking

	var out events.Outcome
	defer func() {
		if r := recover(); r != nil {
			slog.Error("turn: panic", "run", req.RunID, "panic", r)
			out = t.outcome(events.OutcomeEngineFailure, EngineFailureText, nil)
		}
		finish(out.Kind)
		em.Close(out)
	}()

	slog.Info("turn: start", "run", req.RunID, "conversation", req.ConversationID,
		"content", stringutils.Truncate(req.History.LastUser(), 80))
	out = t.run(ctx)
	slog.Info("turn: end", "run", req.RunID, "outcome", out.Kind, "tool_calls", out.ToolCalls)
}

func (t *turn) run(ctx context.Context) events.Outcome {
	s := t.g.settings
	conversation := t.g.buildMessages(t.req.History, t.state)
	defs := t.g.dispatcher.Registry().Definitions()
	opts := schema.NewChatOptions(s.Model, s.MaxTokens, s.Temperature)

	for i := 0; i < s.MaxToolIterations; i++ {
		if ctx.Err() != nil {
			return t.cancelled(ctx)
		}

		callCtx, cancel := context.WithTimeout(ctx, s.EngineTimeout)
		resp, err := t.g.provider.Chat(callCtx, conversation, defs, opts)
		cancel()
		if ctx.Err() != nil {
			return t.cancelled(ctx)
		}
		if err == nil && resp.FinishReason == schema.FinishReasonError {
			err = errors.New(resp.Content)
		}
		if err != nil {
			slog.Error("turn: engine error", "run", t.req.RunID, "err", err)
			return t.terminate(ctx, events.OutcomeEngineFailure, EngineFailureText, err)
		}

		if !resp.HasToolCalls() {
			narration := llmutils.StripThink(resp.Content)
			narration = stringutils.OrDefault(narration, stringutils.OrDefault(t.lastSummary, FallbackNarration))
			return t.terminate(ctx, events.OutcomeCompleted, narration, nil)
		}

		slog.Info("turn: tool calls", "run", t.req.RunID, "hint", llmutils.ToolHint(resp.ToolCalls))
		conversation.AddAssistant(resp.Content, resp.ToolCalls, resp.ReasoningContent)

		for _, tc := range resp.ToolCalls {
			res, err := t.g.dispatcher.Dispatch(ctx, &t.state, tc)
			t.toolCalls++
			if err != nil {
				var abort *tools.AbortError
				if errors.As(err, &abort) {
					return t.terminate(ctx, events.OutcomeUpstreamUnavailable, UpstreamFailedText, err)
				}
				return t.cancelled(ctx)
			}
			conversation.AddToolResult(tc.ID, tc.Name, res.EngineText)
			if !res.Applied {
				continue
			}
			t.lastSummary = res.Summary
			if err := t.em.Snapshot(ctx, t.state, tc.Name); err != nil {
				return t.cancelled(ctx)
			}
		}
	}

	slog.Warn("turn: tool iteration limit reached", "run", t.req.RunID, "limit", s.MaxToolIterations)
	return t.terminate(ctx, events.OutcomeIterationLimit, IterationLimitText, nil)
}

// terminate emits the closing snapshot: status speaking, narration replaced.
func (t *turn) terminate(ctx context.Context, kind events.OutcomeKind, narration string, cause error) events.Outcome {
	t.state.Status = session.StatusSpeaking
	t.state.Narration = narration
	if err := t.em.Terminal(ctx, t.state); err != nil {
		slog.Info("turn: client gone before closing snapshot", "run", t.req.RunID)
		return t.cancelled(ctx)
	}
	return t.outcome(kind, narration, cause)
}

func (t *turn) cancelled(ctx context.Context) events.Outcome {
	slog.Info("turn: cancelled", "run", t.req.RunID, "err", ctx.Err())
	return t.outcome(events.OutcomeCancelled, t.state.Narration, ctx.Err())
}

func (t *turn) outcome(kind events.OutcomeKind, narration string, cause error) events.Outcome {
	final := t.state.Clone()
	final.Status = session.StatusIdle
	final.Narration = narration
	return events.Outcome{
		Kind:      kind,
		Narration: narration,
		State:     final,
		ToolCalls: t.toolCalls,
		Err:       cause,
	}
}
