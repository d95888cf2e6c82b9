package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepscifi/guide/internal/session"
)

// ToolName is the canonical name of a catalog tool.
type ToolName string

const (
	ToolSearchWorlds     ToolName = "search_worlds"
	ToolListWorlds       ToolName = "list_worlds"
	ToolGetWorldDetail   ToolName = "get_world_detail"
	ToolGetStories       ToolName = "get_stories"
	ToolGetStoryDetail   ToolName = "get_story_detail"
	ToolGetDwellers      ToolName = "get_dwellers"
	ToolGetDwellerDetail ToolName = "get_dweller_detail"
	ToolGetActivity      ToolName = "get_activity"
	ToolGetPlatformStats ToolName = "get_platform_stats"
)

// Tool is one entry of the catalog: Facade reads, a projection, at most one
// state write and a summary for the engine.
type Tool interface {
	Name() ToolName
	Description() string
	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() json.RawMessage
	// Execute resolves the call. A reference that cannot be resolved is not
	// an error: it yields an Effect with a summary and no Update. Errors are
	// reserved for an unreachable store.
	Execute(ctx context.Context, args Args) (Effect, error)
}

// Ref points the engine at a record it may want to drill into next.
type Ref struct {
	Kind string
	Name string
	ID   string
}

// Effect is what a tool produced.
type Effect struct {
	Summary string
	// Update is nil when nothing should change.
	Update *session.Update
	Refs   []Ref
}

// engineText is the tool result as the engine sees it: the summary followed
// by the IDs of the records now on screen.
func (e Effect) engineText() string {
	if len(e.Refs) == 0 {
		return e.Summary
	}
	var b strings.Builder
	b.WriteString(e.Summary)
	b.WriteString("\nIDs:")
	for _, r := range e.Refs {
		fmt.Fprintf(&b, "\n- %s %q: %s", r.Kind, r.Name, r.ID)
	}
	return b.String()
}

// Args are validated call arguments. Numbers arrive as float64.
type Args map[string]any

// String returns the string argument key, or "".
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Int returns the integer argument key, or def when absent.
func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}
