package store

import "time"

// SortMode selects the ordering of a world listing.
type SortMode string

const (
	SortPopular SortMode = "popular" // follower_count desc
	SortRecent  SortMode = "recent"  // created_at desc
	SortActive  SortMode = "active"  // updated_at desc
)

// ParseSortMode maps a free-form sort name onto a SortMode.
// Unknown names fall back to SortRecent.
func ParseSortMode(s string) SortMode {
	switch SortMode(s) {
	case SortPopular, SortActive:
		return SortMode(s)
	default:
		return SortRecent
	}
}

// CausalEvent is one link of a world's causal chain.
type CausalEvent struct {
	Year        int    `json:"year"`
	Event       string `json:"event"`
	Consequence string `json:"consequence,omitempty"`
	Reasoning   string `json:"reasoning,omitempty"`
}

// Region is a named place inside a world.
type Region struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

// World is a speculative future published on the platform.
type World struct {
	ID              string
	Name            string
	Premise         string
	CanonSummary    string // empty when the world has no canon summary yet
	YearSetting     int
	CausalChain     []CausalEvent
	ScientificBasis string
	Regions         []Region
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DwellerCount    int
	FollowerCount   int
	CommentCount    int
	ReactionCounts  map[string]int
	IsActive        bool
}

// Dweller is a character inhabiting a world.
type Dweller struct {
	ID           string
	WorldID      string
	Name         string
	Role         string
	Age          int
	OriginRegion string
	Personality  string
	Background   string
	IsActive     bool
	IsAvailable  bool
	Inhabited    bool
	LastActionAt *time.Time
}

// Action is something a dweller did inside its world.
type Action struct {
	ID         string
	DwellerID  string
	ActionType string
	Content    string
	Target     string
	CreatedAt  time.Time
}

// Story is a narrative written from a dweller's experience.
type Story struct {
	ID              string
	WorldID         string
	Title           string
	Summary         string
	Content         string
	Status          string
	Perspective     string
	ReactionCount   int
	CommentCount    int
	CreatedAt       time.Time
	TimePeriodStart string
	TimePeriodEnd   string
}

// Stats are corpus-wide aggregate counts.
type Stats struct {
	WorldCount     int64 `json:"world_count"`
	DwellerCount   int64 `json:"dweller_count"`
	StoryCount     int64 `json:"story_count"`
	TotalFollowers int64 `json:"total_followers"`
}
