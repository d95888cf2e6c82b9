package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deepscifi/guide/internal/panel"
	"github.com/deepscifi/guide/internal/session"
	"github.com/deepscifi/guide/internal/shared/stringutils"
	"github.com/deepscifi/guide/internal/store"
)

// StoriesTool lists a world's stories, most reacted first.
type StoriesTool struct {
	store store.Facade
}

func (t *StoriesTool) Name() ToolName { return ToolGetStories }
func (t *StoriesTool) Description() string {
	return "Get stories from a specific world. " +
		"Use this when the user asks about stories in a world, or wants to see what's been written."
}

func (t *StoriesTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"world_id": {"type": "string", "description": "ID of the world"},
			"limit": {"type": "integer", "description": "Maximum number of stories to return", "default": 6}
		},
		"required": ["world_id"]
	}`)
}

func (t *StoriesTool) Execute(ctx context.Context, args Args) (Effect, error) {
	worldID := args.String("world_id")
	worldName, err := t.store.WorldName(ctx, worldID)
	if err != nil {
		return unresolved(ctx, t.Name(), "World", worldID, suggestSearch, err)
	}
	stories, err := t.store.ListStories(ctx, worldID, args.Int("limit", 6))
	if err != nil {
		return Effect{}, err
	}

	summary := fmt.Sprintf("Found %d stories in %s.", len(stories), worldName)
	refs := make([]Ref, len(stories))
	for i, s := range stories {
		refs[i] = Ref{Kind: "story", Name: s.Title, ID: s.ID}
	}
	return Effect{
		Summary: summary,
		Update: &session.Update{
			Narration:   summary,
			Panels:      []panel.Panel{panel.Stories(worldName, stories)},
			Breadcrumbs: []string{crumbWorlds, worldName, crumbStories},
			Focus:       session.FocusKeep,
		},
		Refs: refs,
	}, nil
}

// StoryDetailTool opens one story in full.
type StoryDetailTool struct {
	store store.Facade
}

func (t *StoryDetailTool) Name() ToolName { return ToolGetStoryDetail }
func (t *StoryDetailTool) Description() string {
	return "Get the full content of a specific story. " +
		"Use this when the user wants to read or hear a particular story."
}

func (t *StoryDetailTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"story_id": {"type": "string", "description": "ID of the story"}
		},
		"required": ["story_id"]
	}`)
}

func (t *StoryDetailTool) Execute(ctx context.Context, args Args) (Effect, error) {
	id := args.String("story_id")
	s, err := t.store.GetStory(ctx, id)
	if err != nil {
		return unresolved(ctx, t.Name(), "Story", id, suggestStories, err)
	}
	worldName, err := worldNameOrUnknown(ctx, t.store, s.WorldID)
	if err != nil {
		return Effect{}, err
	}

	summary := fmt.Sprintf(`Story: "%s". %s`, s.Title,
		stringutils.OrDefault(s.Summary, stringutils.Clip(s.Content, panel.StorySummaryLen)))
	return Effect{
		Summary: summary,
		Update: &session.Update{
			Narration:   summary,
			Panels:      []panel.Panel{panel.StoryDetail(s)},
			Breadcrumbs: []string{crumbWorlds, worldName, crumbStories, s.Title},
			Focus:       session.FocusKeep,
		},
	}, nil
}
