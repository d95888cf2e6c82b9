package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessages_Tail(t *testing.T) {
	m := NewMessages()
	m.AddUser("show me worlds")
	m.AddAssistant("", []ToolCall{{ID: "c1", Name: "list_worlds"}}, "")
	m.AddToolResult("c1", "list_worlds", "Found 3 worlds sorted by popular.")
	m.AddAssistant("Here are three worlds.", nil, "")
	m.AddUser("tell me about the first")

	assert.Equal(t, 5, m.Tail(0).Len())
	assert.Equal(t, 5, m.Tail(10).Len())

	tail := m.Tail(3)
	assert.Equal(t, 2, tail.Len(), "a leading tool result is dropped")
	assert.Equal(t, RoleAssistant, tail.Messages[0].Role)

	tail.Messages[0].Content = "changed"
	assert.Equal(t, "Here are three worlds.", m.Messages[3].Content, "tail is a copy")
}

func TestMessages_LastUser(t *testing.T) {
	m := NewMessages()
	assert.Equal(t, "", m.LastUser())
	m.AddUser("first")
	m.AddAssistant("ok", nil, "")
	m.AddUser("second")
	assert.Equal(t, "second", m.LastUser())
}

func TestToolCall_ToWireMap(t *testing.T) {
	w := ToolCall{ID: "c1", Name: "search_worlds", Arguments: map[string]any{"query": "megacit"}}.ToWireMap()
	fn := w["function"].(map[string]any)
	assert.Equal(t, "search_worlds", fn["name"])
	assert.JSONEq(t, `{"query":"megacit"}`, fn["arguments"].(string))

	empty := ToolCall{ID: "c2", Name: "get_platform_stats"}.ToWireMap()
	assert.Equal(t, "{}", empty["function"].(map[string]any)["arguments"])
}
