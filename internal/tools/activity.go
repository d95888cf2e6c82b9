package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deepscifi/guide/internal/panel"
	"github.com/deepscifi/guide/internal/session"
	"github.com/deepscifi/guide/internal/store"
)

// ActivityTool shows what dwellers have recently done in a world.
type ActivityTool struct {
	store store.Facade
}

func (t *ActivityTool) Name() ToolName { return ToolGetActivity }
func (t *ActivityTool) Description() string {
	return "Get recent activity in a world: actions taken by dwellers. " +
		"Use this when the user asks what's happening in a world or wants to see recent events."
}

func (t *ActivityTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"world_id": {"type": "string", "description": "ID of the world"},
			"limit": {"type": "integer", "description": "Maximum number of actions to return", "default": 10}
		},
		"required": ["world_id"]
	}`)
}

func (t *ActivityTool) Execute(ctx context.Context, args Args) (Effect, error) {
	worldID := args.String("world_id")
	worldName, err := t.store.WorldName(ctx, worldID)
	if err != nil {
		return unresolved(ctx, t.Name(), "World", worldID, suggestSearch, err)
	}
	actions, err := t.store.ListActivity(ctx, worldID, args.Int("limit", 10))
	if err != nil {
		return Effect{}, err
	}

	summary := fmt.Sprintf("%d recent activities in %s.", len(actions), worldName)
	return Effect{
		Summary: summary,
		Update: &session.Update{
			Narration:   summary,
			Panels:      []panel.Panel{panel.Activity(worldName, actions)},
			Breadcrumbs: []string{crumbWorlds, worldName, crumbActivity},
			Focus:       session.FocusKeep,
		},
	}, nil
}

// PlatformStatsTool reports corpus-wide totals.
type PlatformStatsTool struct {
	store store.Facade
}

func (t *PlatformStatsTool) Name() ToolName { return ToolGetPlatformStats }
func (t *PlatformStatsTool) Description() string {
	return "Get overall platform statistics: total worlds, dwellers, stories. " +
		"Use this when the user asks about the platform's scale or overall activity."
}

func (t *PlatformStatsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *PlatformStatsTool) Execute(ctx context.Context, _ Args) (Effect, error) {
	s, err := t.store.AggregateStats(ctx)
	if err != nil {
		return Effect{}, err
	}
	summary := fmt.Sprintf("Platform has %d active worlds, %d dwellers, %d stories, and %d total followers.",
		s.WorldCount, s.DwellerCount, s.StoryCount, s.TotalFollowers)
	return Effect{
		Summary: summary,
		Update: &session.Update{
			Narration:   summary,
			Panels:      []panel.Panel{panel.PlatformStats(s)},
			Breadcrumbs: []string{crumbStats},
			Focus:       session.FocusClear,
		},
	}, nil
}
