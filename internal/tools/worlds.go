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

const noWorldsYet = "No worlds have been published yet."

// SearchWorldsTool finds worlds by keyword, falling back to the most
// followed worlds when nothing matches.
type SearchWorldsTool struct {
	store store.Facade
}

func (t *SearchWorldsTool) Name() ToolName { return ToolSearchWorlds }
func (t *SearchWorldsTool) Description() string {
	return "Search for sci-fi worlds by keyword. Returns a list of matching worlds. " +
		"Use this when the user asks to browse, discover, or find worlds."
}

func (t *SearchWorldsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "minLength": 1, "description": "Keyword matched against world names and premises"},
			"limit": {"type": "integer", "description": "Maximum number of worlds to return", "default": 6}
		},
		"required": ["query"]
	}`)
}

func (t *SearchWorldsTool) Execute(ctx context.Context, args Args) (Effect, error) {
	query := args.String("query")
	limit := args.Int("limit", 6)

	worlds, err := t.store.SearchWorlds(ctx, query, limit)
	if err != nil {
		return Effect{}, err
	}
	summary := fmt.Sprintf("Found %d worlds matching '%s'.", len(worlds), query)
	if len(worlds) == 0 {
		worlds, err = t.store.ListWorlds(ctx, store.SortPopular, limit)
		if err != nil {
			return Effect{}, err
		}
		if len(worlds) > 0 {
			summary = fmt.Sprintf("Found %d popular worlds (nothing matched '%s').", len(worlds), query)
		}
	}
	return worldListEffect(summary, worlds), nil
}

// ListWorldsTool lists worlds by popularity, recency or activity.
type ListWorldsTool struct {
	store store.Facade
}

func (t *ListWorldsTool) Name() ToolName { return ToolListWorlds }
func (t *ListWorldsTool) Description() string {
	return "List worlds sorted by popularity, recency, or activity. " +
		"Use this when the user asks to see all worlds or browse what's available."
}

func (t *ListWorldsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"sort": {"type": "string", "enum": ["popular", "recent", "active"], "default": "popular"},
			"limit": {"type": "integer", "description": "Maximum number of worlds to return", "default": 8}
		}
	}`)
}

func (t *ListWorldsTool) Execute(ctx context.Context, args Args) (Effect, error) {
	sort := stringutils.OrDefault(args.String("sort"), string(store.SortPopular))
	worlds, err := t.store.ListWorlds(ctx, store.SortMode(sort), args.Int("limit", 8))
	if err != nil {
		return Effect{}, err
	}
	return worldListEffect(fmt.Sprintf("Found %d worlds sorted by %s.", len(worlds), sort), worlds), nil
}

func worldListEffect(summary string, worlds []store.World) Effect {
	p := panel.Worlds(worlds)
	if len(worlds) == 0 {
		p = panel.Empty(noWorldsYet)
	}
	refs := make([]Ref, len(worlds))
	for i, w := range worlds {
		refs[i] = Ref{Kind: "world", Name: w.Name, ID: w.ID}
	}
	return Effect{
		Summary: summary,
		Update: &session.Update{
			Narration:   summary,
			Panels:      []panel.Panel{p},
			Breadcrumbs: []string{crumbWorlds},
			Focus:       session.FocusClear,
		},
		Refs: refs,
	}
}

// WorldDetailTool opens one world: its card, a few dwellers and recent
// stories, and its causal chain.
type WorldDetailTool struct {
	store store.Facade
}

func (t *WorldDetailTool) Name() ToolName { return ToolGetWorldDetail }
func (t *WorldDetailTool) Description() string {
	return "Get detailed information about a specific world including its causal chain. " +
		"Use this when the user asks about a specific world or wants to explore one in depth."
}

func (t *WorldDetailTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"world_id": {"type": "string", "description": "ID of the world"}
		},
		"required": ["world_id"]
	}`)
}

func (t *WorldDetailTool) Execute(ctx context.Context, args Args) (Effect, error) {
	id := args.String("world_id")
	w, err := t.store.GetWorld(ctx, id)
	if err != nil {
		return unresolved(ctx, t.Name(), "World", id, suggestSearch, err)
	}
	dwellers, err := t.store.ListDwellers(ctx, w.ID, 5)
	if err != nil {
		return Effect{}, err
	}
	stories, err := t.store.RecentStories(ctx, w.ID, 3)
	if err != nil {
		return Effect{}, err
	}

	summary := fmt.Sprintf("World: %s (set in %d). %d dwellers, %d recent stories. Premise: %s",
		w.Name, w.YearSetting, w.DwellerCount, len(stories), stringutils.Clip(w.Premise, 200))

	refs := make([]Ref, 0, len(dwellers)+len(stories))
	for _, d := range dwellers {
		refs = append(refs, Ref{Kind: "dweller", Name: d.Name, ID: d.ID})
	}
	for _, s := range stories {
		refs = append(refs, Ref{Kind: "story", Name: s.Title, ID: s.ID})
	}
	return Effect{
		Summary: summary,
		Update: &session.Update{
			Narration:   summary,
			Panels:      panel.WorldDetail(w, dwellers, stories),
			Breadcrumbs: []string{crumbWorlds, w.Name},
			Focus:       session.FocusSet,
			FocusID:     w.ID,
			FocusName:   w.Name,
		},
		Refs: refs,
	}, nil
}
