package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deepscifi/guide/internal/store"
)

// Breadcrumb roots.
const (
	crumbWorlds   = "Worlds"
	crumbStories  = "Stories"
	crumbDwellers = "Dwellers"
	crumbActivity = "Activity"
	crumbStats    = "Platform Stats"
)

const unknownWorld = "Unknown World"

// Suggestions appended to an unresolved-reference summary.
const (
	suggestSearch   = "Try searching for worlds instead."
	suggestStories  = "Try listing the world's stories instead."
	suggestDwellers = "Try listing the world's dwellers instead."
)

// NewCatalog builds the registry of the nine exploration tools over f.
func NewCatalog(f store.Facade) (*Registry, error) {
	return NewRegistryBuilder().
		WithTool(&SearchWorldsTool{store: f}).
		WithTool(&ListWorldsTool{store: f}).
		WithTool(&WorldDetailTool{store: f}).
		WithTool(&StoriesTool{store: f}).
		WithTool(&StoryDetailTool{store: f}).
		WithTool(&DwellersTool{store: f}).
		WithTool(&DwellerDetailTool{store: f}).
		WithTool(&ActivityTool{store: f}).
		WithTool(&PlatformStatsTool{store: f}).
		Build()
}

// unresolved turns a store miss into a summary-only Effect. Any other error
// is passed through for the dispatcher to abort on.
func unresolved(ctx context.Context, tool ToolName, entity, id, suggestion string, err error) (Effect, error) {
	if !store.IsMiss(err) {
		return Effect{}, err
	}
	kind := "not_found"
	if errors.Is(err, store.ErrMalformedReference) {
		kind = "malformed_reference"
	}
	slog.Info("tools: unresolved reference", "tool", tool, "kind", kind, "id", id, "run", TurnCtx(ctx).RunID)
	return Effect{Summary: fmt.Sprintf("%s with ID %s not found. %s", entity, id, suggestion)}, nil
}

// worldNameOrUnknown resolves the display name of a record's parent world.
// A dangling parent is tolerated; an unreachable store is not.
func worldNameOrUnknown(ctx context.Context, f store.Facade, worldID string) (string, error) {
	name, err := f.WorldName(ctx, worldID)
	if store.IsMiss(err) {
		return unknownWorld, nil
	}
	return name, err
}
