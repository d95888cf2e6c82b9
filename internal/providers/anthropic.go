package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/deepscifi/guide/internal/schema"
)

const anthropicVersion = "2023-06-01"

// emptyTurnText stands in for an assistant turn with neither text nor tool
// calls; the Messages API rejects empty content.
const emptyTurnText = "(no content)"

var ephemeral = &cacheControl{Type: "ephemeral"}

type cacheControl struct {
	Type string `json:"type"`
}

// anthropicBlock is one content block. Which fields are set depends on Type:
// text, tool_use or tool_result.
type anthropicBlock struct {
	Type         string          `json:"type"`
	Text         string          `json:"text,omitempty"`
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	ToolUseID    string          `json:"tool_use_id,omitempty"`
	Content      string          `json:"content,omitempty"`
	CacheControl *cacheControl   `json:"cache_control,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicTool struct {
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	InputSchema  any           `json:"input_schema"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      []anthropicBlock   `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

func (p *OpenAIProvider) chatAnthropic(
	ctx context.Context,
	messages schema.Messages,
	tools []map[string]any,
	model string,
	maxTokens int,
	temperature float64,
	caching bool,
) (schema.LLMResponse, error) {
	req, err := newAnthropicRequest(messages, tools, caching)
	if err != nil {
		return schema.LLMResponse{}, err
	}
	req.Model = model
	req.MaxTokens = maxTokens
	req.Temperature = temperature

	raw, status, err := p.post(ctx, "/messages", req, map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	})
	if err != nil {
		return schema.LLMResponse{}, err
	}
	if status != http.StatusOK {
		return errResponse(fmt.Sprintf("HTTP %d: %s", status, friendlyHTTPError(status, raw)))
	}
	return parseAnthropicResponse(raw)
}

// newAnthropicRequest lifts system messages into the system field and
// groups consecutive tool results into a single user turn.
func newAnthropicRequest(messages schema.Messages, tools []map[string]any, caching bool) (anthropicRequest, error) {
	var req anthropicRequest
	var system []string

	for _, m := range messages.Messages {
		switch m.Role {
		case schema.RoleSystem:
			system = append(system, m.Content)

		case schema.RoleUser:
			req.Messages = append(req.Messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicBlock{{Type: "text", Text: m.Content}},
			})

		case schema.RoleTool:
			block := anthropicBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content}
			if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == "user" && isToolResults(req.Messages[n-1]) {
				req.Messages[n-1].Content = append(req.Messages[n-1].Content, block)
				continue
			}
			req.Messages = append(req.Messages, anthropicMessage{Role: "user", Content: []anthropicBlock{block}})

		case schema.RoleAssistant:
			msg, err := assistantMessage(m)
			if err != nil {
				return anthropicRequest{}, err
			}
			req.Messages = append(req.Messages, msg)
		}
	}

	if len(system) > 0 {
		block := anthropicBlock{Type: "text", Text: strings.Join(system, "\n\n")}
		if caching {
			block.CacheControl = ephemeral
		}
		req.System = []anthropicBlock{block}
	}

	for _, t := range tools {
		fn, _ := t["function"].(map[string]any)
		if fn == nil {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		req.Tools = append(req.Tools, anthropicTool{Name: name, Description: desc, InputSchema: fn["parameters"]})
	}
	if caching && len(req.Tools) > 0 {
		req.Tools[len(req.Tools)-1].CacheControl = ephemeral
	}
	return req, nil
}

func assistantMessage(m schema.Message) (anthropicMessage, error) {
	msg := anthropicMessage{Role: "assistant"}
	if m.Content != "" {
		msg.Content = append(msg.Content, anthropicBlock{Type: "text", Text: m.Content})
	}
	for _, tc := range m.ToolCalls {
		input := []byte("{}")
		if len(tc.Arguments) > 0 {
			var err error
			if input, err = json.Marshal(tc.Arguments); err != nil {
				return anthropicMessage{}, fmt.Errorf("encode arguments of %s: %w", tc.Name, err)
			}
		}
		msg.Content = append(msg.Content, anthropicBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
	}
	if len(msg.Content) == 0 {
		msg.Content = []anthropicBlock{{Type: "text", Text: emptyTurnText}}
	}
	return msg, nil
}

func isToolResults(m anthropicMessage) bool {
	for _, b := range m.Content {
		if b.Type != "tool_result" {
			return false
		}
	}
	return true
}

type anthropicResponse struct {
	Content []struct {
		Type     string         `json:"type"`
		Text     string         `json:"text"`
		Thinking string         `json:"thinking"`
		ID       string         `json:"id"`
		Name     string         `json:"name"`
		Input    map[string]any `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// stopReasons maps Messages API stop reasons onto chat-completions finish
// reasons. Unlisted reasons pass through.
var stopReasons = map[string]string{
	"":         "stop",
	"end_turn": "stop",
	"tool_use": "tool_calls",
}

func parseAnthropicResponse(raw []byte) (schema.LLMResponse, error) {
	var body anthropicResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return schema.LLMResponse{}, fmt.Errorf("parse Anthropic response: %w", err)
	}

	var resp schema.LLMResponse
	var text, thinking []string
	for _, b := range body.Content {
		switch b.Type {
		case "text":
			text = append(text, b.Text)
		case "thinking":
			thinking = append(thinking, b.Thinking)
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, schema.ToolCall{ID: b.ID, Name: b.Name, Arguments: b.Input})
		}
	}
	resp.Content = strings.Join(text, "")
	resp.ReasoningContent = strings.Join(thinking, "")

	resp.FinishReason = body.StopReason
	if mapped, ok := stopReasons[body.StopReason]; ok {
		resp.FinishReason = mapped
	}
	resp.Usage = map[string]int{
		"input_tokens":  body.Usage.InputTokens,
		"output_tokens": body.Usage.OutputTokens,
	}
	return resp, nil
}
