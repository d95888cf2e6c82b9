// Package store is the read-only query facade over the world/dweller/story
// corpus. Every operation is side-effect free, applies a default secondary
// sort by id and never returns more than the configured row cap.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound reports a well-formed reference to an absent record.
	ErrNotFound = errors.New("store: not found")
	// ErrMalformedReference reports an ID that cannot be parsed.
	ErrMalformedReference = errors.New("store: malformed reference")
	// ErrUpstreamUnavailable reports that the backing store could not be reached.
	ErrUpstreamUnavailable = errors.New("store: upstream unavailable")
)

// IsMiss reports whether err means the referenced record cannot be resolved,
// as opposed to the store being unavailable.
func IsMiss(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformedReference)
}

// Facade is the typed read surface the tools consume.
//
// A keyword search with no matches returns an empty slice; any fallback is
// the caller's decision.
type Facade interface {
	SearchWorlds(ctx context.Context, keyword string, limit int) ([]World, error)
	GetWorld(ctx context.Context, id string) (World, error)
	ListWorlds(ctx context.Context, sort SortMode, limit int) ([]World, error)
	// WorldName resolves a world's display name for breadcrumbs.
	WorldName(ctx context.Context, id string) (string, error)

	ListStories(ctx context.Context, worldID string, limit int) ([]Story, error)
	RecentStories(ctx context.Context, worldID string, limit int) ([]Story, error)
	GetStory(ctx context.Context, id string) (Story, error)

	ListDwellers(ctx context.Context, worldID string, limit int) ([]Dweller, error)
	GetDweller(ctx context.Context, id string) (Dweller, error)
	RecentActions(ctx context.Context, dwellerID string, limit int) ([]Action, error)

	ListActivity(ctx context.Context, worldID string, limit int) ([]Action, error)

	AggregateStats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
}

// DefaultMaxLimit caps every listing when no explicit cap is configured.
const DefaultMaxLimit = 50

// ClampLimit bounds a caller-supplied limit to [1, max].
func ClampLimit(limit, max int) int {
	if max <= 0 {
		max = DefaultMaxLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}

// ParseID normalises an entity reference, reporting ErrMalformedReference
// for anything that is not a UUID.
func ParseID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", ErrMalformedReference
	}
	return u.String(), nil
}
