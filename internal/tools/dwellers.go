package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deepscifi/guide/internal/panel"
	"github.com/deepscifi/guide/internal/session"
	"github.com/deepscifi/guide/internal/store"
)

// DwellersTool lists a world's active dwellers, most recently active first.
type DwellersTool struct {
	store store.Facade
}

func (t *DwellersTool) Name() ToolName { return ToolGetDwellers }
func (t *DwellersTool) Description() string {
	return "List dwellers (characters) inhabiting a specific world. " +
		"Use this when the user asks about who lives in a world, or wants to see the characters."
}

func (t *DwellersTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"world_id": {"type": "string", "description": "ID of the world"},
			"limit": {"type": "integer", "description": "Maximum number of dwellers to return", "default": 8}
		},
		"required": ["world_id"]
	}`)
}

func (t *DwellersTool) Execute(ctx context.Context, args Args) (Effect, error) {
	worldID := args.String("world_id")
	worldName, err := t.store.WorldName(ctx, worldID)
	if err != nil {
		return unresolved(ctx, t.Name(), "World", worldID, suggestSearch, err)
	}
	dwellers, err := t.store.ListDwellers(ctx, worldID, args.Int("limit", 8))
	if err != nil {
		return Effect{}, err
	}

	summary := fmt.Sprintf("Found %d dwellers in %s.", len(dwellers), worldName)
	refs := make([]Ref, len(dwellers))
	for i, d := range dwellers {
		refs[i] = Ref{Kind: "dweller", Name: d.Name, ID: d.ID}
	}
	return Effect{
		Summary: summary,
		Update: &session.Update{
			Narration:   summary,
			Panels:      []panel.Panel{panel.Dwellers(worldName, dwellers)},
			Breadcrumbs: []string{crumbWorlds, worldName, crumbDwellers},
			Focus:       session.FocusKeep,
		},
		Refs: refs,
	}, nil
}

// DwellerDetailTool opens one dweller with their latest actions.
type DwellerDetailTool struct {
	store store.Facade
}

func (t *DwellerDetailTool) Name() ToolName { return ToolGetDwellerDetail }
func (t *DwellerDetailTool) Description() string {
	return "Get detailed information about a specific dweller (character). " +
		"Use this when the user asks about a specific character or wants to know more about them."
}

func (t *DwellerDetailTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"dweller_id": {"type": "string", "description": "ID of the dweller"}
		},
		"required": ["dweller_id"]
	}`)
}

func (t *DwellerDetailTool) Execute(ctx context.Context, args Args) (Effect, error) {
	id := args.String("dweller_id")
	d, err := t.store.GetDweller(ctx, id)
	if err != nil {
		return unresolved(ctx, t.Name(), "Dweller", id, suggestDwellers, err)
	}
	actions, err := t.store.RecentActions(ctx, d.ID, 5)
	if err != nil {
		return Effect{}, err
	}
	worldName, err := worldNameOrUnknown(ctx, t.store, d.WorldID)
	if err != nil {
		return Effect{}, err
	}

	summary := fmt.Sprintf("Dweller: %s, %s. Age %d, from %s. %d recent actions.",
		d.Name, d.Role, d.Age, d.OriginRegion, len(actions))
	return Effect{
		Summary: summary,
		Update: &session.Update{
			Narration:   summary,
			Panels:      []panel.Panel{panel.DwellerDetail(d, actions)},
			Breadcrumbs: []string{crumbWorlds, worldName, crumbDwellers, d.Name},
			Focus:       session.FocusKeep,
		},
	}, nil
}
