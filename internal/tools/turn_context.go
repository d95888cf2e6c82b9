package tools

import "context"

// TurnContext carries per-turn identifiers through the context tree so tool
// and dispatcher log lines can be correlated with the turn that caused them.
type TurnContext struct {
	RunID          string
	ConversationID string
}

type turnKey struct{}

// WithTurn returns a child context that carries tc.
func WithTurn(ctx context.Context, tc TurnContext) context.Context {
	return context.WithValue(ctx, turnKey{}, tc)
}

// TurnCtx extracts the TurnContext from ctx.
// Returns a zero-value TurnContext if none was set.
func TurnCtx(ctx context.Context) TurnContext {
	tc, _ := ctx.Value(turnKey{}).(TurnContext)
	return tc
}
