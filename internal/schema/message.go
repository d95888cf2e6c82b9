// Package schema holds the wire contracts between the turn controller and a
// decision engine: conversation messages, tool calls and the provider
// interface.
package schema

import "encoding/json"

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function call requested by the engine.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToWireMap serialises a ToolCall into the OpenAI wire-format map.
func (tc ToolCall) ToWireMap() map[string]any {
	argsJSON, _ := json.Marshal(tc.Arguments)
	if tc.Arguments == nil {
		argsJSON = []byte("{}")
	}
	return map[string]any{
		"id":   tc.ID,
		"type": "function",
		"function": map[string]any{
			"name":      tc.Name,
			"arguments": string(argsJSON),
		},
	}
}

// Message is one entry in the conversation history.
//
// ToolCalls is populated for assistant messages that invoke tools.
// ToolCallID and ToolName are set for tool-result messages.
// ReasoningContent carries the thinking block some models return; it is
// echoed back to the engine but never shown to the user.
type Message struct {
	Role             Role
	Content          string
	ToolCalls        []ToolCall
	ToolCallID       string
	ToolName         string
	ReasoningContent string
}
