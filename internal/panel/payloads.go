package panel

import "github.com/deepscifi/guide/internal/store"

// WorldSummary is a world as shown in lists and at the top of its card.
type WorldSummary struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Premise         string              `json:"premise"`
	CanonSummary    string              `json:"canon_summary"`
	YearSetting     int                 `json:"year_setting"`
	CausalChain     []store.CausalEvent `json:"causal_chain"`
	ScientificBasis string              `json:"scientific_basis"`
	Regions         []store.Region      `json:"regions"`
	CreatedAt       string              `json:"created_at"`
	DwellerCount    int                 `json:"dweller_count"`
	FollowerCount   int                 `json:"follower_count"`
	CommentCount    int                 `json:"comment_count"`
	ReactionCounts  map[string]int      `json:"reaction_counts"`
}

// WorldList is the entity_list payload.
type WorldList struct {
	Worlds []WorldSummary `json:"worlds"`
}

// WorldCard is the entity_card payload.
type WorldCard struct {
	WorldSummary
	Dwellers []DwellerBrief `json:"dwellers"`
	Stories  []StoryPreview `json:"stories"`
}

// DwellerBrief is the short dweller entry embedded in a world card.
type DwellerBrief struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// DwellerSummary is the actor_list entry. Personality and Background are
// truncated.
type DwellerSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Age          int    `json:"age"`
	OriginRegion string `json:"origin_region"`
	Personality  string `json:"personality"`
	Background   string `json:"background"`
	IsActive     bool   `json:"is_active"`
	IsAvailable  bool   `json:"is_available"`
	Inhabited    bool   `json:"inhabited"`
}

// DwellerList is the actor_list payload.
type DwellerList struct {
	Dwellers  []DwellerSummary `json:"dwellers"`
	WorldName string           `json:"world_name"`
}

// DwellerCard is the actor_card payload. The *Full fields carry the
// untruncated text.
type DwellerCard struct {
	DwellerSummary
	PersonalityFull string        `json:"personality_full"`
	BackgroundFull  string        `json:"background_full"`
	RecentActions   []ActionBrief `json:"recent_actions"`
}

// ActionBrief is one recent action on a dweller card.
type ActionBrief struct {
	ActionType string `json:"action_type"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at"`
}

// StoryPreview is a story as listed; Summary falls back to the opening of
// the content.
type StoryPreview struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	Status        string `json:"status"`
	Perspective   string `json:"perspective"`
	ReactionCount int    `json:"reaction_count"`
	CommentCount  int    `json:"comment_count"`
	CreatedAt     string `json:"created_at"`
}

// StoryList is the child_preview payload.
type StoryList struct {
	Stories   []StoryPreview `json:"stories"`
	WorldName string         `json:"world_name"`
}

// StoryFull is the child_full payload.
type StoryFull struct {
	StoryPreview
	Content         string `json:"content"`
	TimePeriodStart string `json:"time_period_start"`
	TimePeriodEnd   string `json:"time_period_end"`
}

// ActivityItem is one entry of an activity feed.
type ActivityItem struct {
	ActionType string `json:"action_type"`
	Content    string `json:"content"`
	Target     string `json:"target"`
	CreatedAt  string `json:"created_at"`
	DwellerID  string `json:"dweller_id"`
}

// ActivityFeed is the activity_feed payload.
type ActivityFeed struct {
	Items     []ActivityItem `json:"items"`
	WorldName string         `json:"world_name"`
}

// CausalChain is the causal_chain payload.
type CausalChain struct {
	Events []store.CausalEvent `json:"events"`
}

// StatsResult is the search_results payload.
type StatsResult struct {
	Stats store.Stats `json:"stats"`
}

// EmptyResult is the empty payload.
type EmptyResult struct {
	Message string `json:"message"`
}
