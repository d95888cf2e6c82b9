package schema

import "context"

// ChatOptions configures a single engine request.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

func NewChatOptions(model string, maxTokens int, temperature float64) ChatOptions {
	return ChatOptions{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// FinishReasonError marks a response synthesised from a transport or API
// failure rather than produced by the model.
const FinishReasonError = "error"

// LLMResponse is the normalised response from any engine.
type LLMResponse struct {
	Content          string
	ToolCalls        []ToolCall
	FinishReason     string
	Usage            map[string]int // "input_tokens", "output_tokens"
	ReasoningContent string
}

// HasToolCalls reports whether the response contains at least one tool call.
func (r LLMResponse) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// LLMProvider is the decision engine: given the conversation and the tool
// catalog it either requests tool calls or produces closing text.
type LLMProvider interface {
	Chat(ctx context.Context, messages Messages, tools []map[string]any, opts ChatOptions) (LLMResponse, error)
	DefaultModel() string
}
