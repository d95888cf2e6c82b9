package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/deepscifi/guide/internal/schema"
	"github.com/deepscifi/guide/internal/session"
)

// DefaultToolTimeout bounds a single tool execution.
const DefaultToolTimeout = 10 * time.Second

// Call outcomes reported to the Observer.
const (
	OutcomeApplied   = "applied"
	OutcomeMiss      = "miss"
	OutcomeInvalid   = "invalid"
	OutcomeUnknown   = "unknown_tool"
	OutcomeAborted   = "aborted"
	OutcomeDiscarded = "discarded"
)

// Observer is told about each tool execution. The returned func is called
// exactly once with the call's outcome.
type Observer interface {
	ToolStarted(ctx context.Context, tool string) (context.Context, func(outcome string))
}

type nopObserver struct{}

func (nopObserver) ToolStarted(ctx context.Context, _ string) (context.Context, func(string)) {
	return ctx, func(string) {}
}

// AbortError reports that a tool could not reach the store. The turn must
// end; the state was not touched.
type AbortError struct {
	Tool ToolName
	Err  error
}

func (e *AbortError) Error() string { return fmt.Sprintf("tool %s aborted: %v", e.Tool, e.Err) }
func (e *AbortError) Unwrap() error { return e.Err }

// ToolResult is the outcome of one dispatched call.
type ToolResult struct {
	CallID  string
	Tool    string
	Summary string
	// EngineText is what goes back to the engine as the tool result.
	EngineText string
	// Applied is true when the call replaced the state; only then is a
	// snapshot emitted.
	Applied bool
	State   session.State
}

// Dispatcher routes engine tool calls to the catalog, one at a time.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	observer Observer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithToolTimeout overrides DefaultToolTimeout.
func WithToolTimeout(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithObserver attaches metrics/tracing.
func WithObserver(o Observer) DispatcherOption {
	return func(x *Dispatcher) {
		if o != nil {
			x.observer = o
		}
	}
}

// NewDispatcher returns a dispatcher over r.
func NewDispatcher(r *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{registry: r, timeout: DefaultToolTimeout, observer: nopObserver{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the catalog the dispatcher serves.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch executes call against state. On success *state is replaced by the
// updated state in one assignment; on a miss, an invalid or unknown call it
// is left untouched and the result carries an explanatory summary.
//
// The store read runs to completion even if ctx is cancelled mid-call; its
// result is then discarded and ctx.Err() returned. A store failure returns
// an *AbortError.
func (d *Dispatcher) Dispatch(ctx context.Context, state *session.State, call schema.ToolCall) (ToolResult, error) {
	res := ToolResult{CallID: call.ID, Tool: call.Name}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		_, done := d.observer.ToolStarted(ctx, call.Name)
		done(OutcomeUnknown)
		slog.Warn("tools: unknown tool", "tool", call.Name, "run", TurnCtx(ctx).RunID)
		return d.summaryOnly(res, state, fmt.Sprintf("Error: Tool '%s' not found", call.Name)), nil
	}

	args, err := normalizeArgs(call.Arguments)
	if err == nil {
		err = d.registry.Validate(tool.Name(), args)
	}
	if err != nil {
		_, done := d.observer.ToolStarted(ctx, call.Name)
		done(OutcomeInvalid)
		slog.Info("tools: invalid arguments", "tool", call.Name, "err", err, "run", TurnCtx(ctx).RunID)
		return d.summaryOnly(res, state, fmt.Sprintf("Invalid arguments for %s: %v", call.Name, err)), nil
	}

	spanCtx, done := d.observer.ToolStarted(ctx, call.Name)
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(spanCtx), d.timeout)
	start := time.Now()
	effect, err := tool.Execute(runCtx, args)
	cancel()

	if err != nil {
		done(OutcomeAborted)
		slog.Error("tools: store unavailable", "tool", call.Name, "err", err, "run", TurnCtx(ctx).RunID)
		return res, &AbortError{Tool: tool.Name(), Err: err}
	}
	if ctx.Err() != nil {
		done(OutcomeDiscarded)
		slog.Info("tools: result discarded, client gone", "tool", call.Name, "run", TurnCtx(ctx).RunID)
		return res, ctx.Err()
	}

	res.Summary = effect.Summary
	res.EngineText = effect.engineText()
	if effect.Update != nil {
		next := state.Clone()
		next.Apply(*effect.Update)
		*state = next
		res.Applied = true
		done(OutcomeApplied)
	} else {
		done(OutcomeMiss)
	}
	res.State = state.Clone()
	slog.Debug("tools: call finished", "tool", call.Name, "applied", res.Applied,
		"elapsed", time.Since(start), "run", TurnCtx(ctx).RunID)
	return res, nil
}

func (d *Dispatcher) summaryOnly(res ToolResult, state *session.State, summary string) ToolResult {
	res.Summary = summary
	res.EngineText = summary
	res.State = state.Clone()
	return res
}

// normalizeArgs round-trips arguments through JSON so the validator and the
// tools always see decoded JSON values (float64 numbers, []any arrays).
func normalizeArgs(in map[string]any) (Args, error) {
	if in == nil {
		return Args{}, nil
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("arguments are not JSON: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return Args(out), nil
}
