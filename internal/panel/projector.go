package panel

import (
	"time"

	"github.com/deepscifi/guide/internal/shared/stringutils"
	"github.com/deepscifi/guide/internal/store"
)

// Truncation lengths for summary payloads, in characters.
const (
	StorySummaryLen = 200
	PersonalityLen  = 200
	BackgroundLen   = 300
	ActionLen       = 200
)

const (
	defaultStatus      = "PUBLISHED"
	defaultPerspective = "FIRST_PERSON_AGENT"
)

// Worlds projects a world listing.
func Worlds(ws []store.World) Panel {
	out := make([]WorldSummary, len(ws))
	for i, w := range ws {
		out[i] = worldSummary(w)
	}
	return Panel{Kind: KindEntityList, Data: WorldList{Worlds: out}}
}

// WorldDetail projects a world card. A second causal_chain panel follows
// when the world has one.
func WorldDetail(w store.World, dwellers []store.Dweller, stories []store.Story) []Panel {
	card := WorldCard{
		WorldSummary: worldSummary(w),
		Dwellers:     make([]DwellerBrief, len(dwellers)),
		Stories:      make([]StoryPreview, len(stories)),
	}
	for i, d := range dwellers {
		card.Dwellers[i] = DwellerBrief{ID: d.ID, Name: d.Name, Role: d.Role, IsActive: d.IsActive}
	}
	for i, s := range stories {
		card.Stories[i] = storyPreview(s)
	}
	panels := []Panel{{Kind: KindEntityCard, Data: card}}
	if len(w.CausalChain) > 0 {
		panels = append(panels, Causal(w.CausalChain))
	}
	return panels
}

// Causal projects a causal chain on its own.
func Causal(events []store.CausalEvent) Panel {
	return Panel{Kind: KindCausalChain, Data: CausalChain{Events: append([]store.CausalEvent{}, events...)}}
}

// Stories projects a world's story listing.
func Stories(worldName string, ss []store.Story) Panel {
	out := make([]StoryPreview, len(ss))
	for i, s := range ss {
		out[i] = storyPreview(s)
	}
	return Panel{Kind: KindChildPreview, Data: StoryList{Stories: out, WorldName: worldName}}
}

// StoryDetail projects a full story, content untruncated.
func StoryDetail(s store.Story) Panel {
	return Panel{Kind: KindChildFull, Data: StoryFull{
		StoryPreview:    storyPreview(s),
		Content:         s.Content,
		TimePeriodStart: s.TimePeriodStart,
		TimePeriodEnd:   s.TimePeriodEnd,
	}}
}

// Dwellers projects a world's dweller listing.
func Dwellers(worldName string, ds []store.Dweller) Panel {
	out := make([]DwellerSummary, len(ds))
	for i, d := range ds {
		out[i] = dwellerSummary(d)
	}
	return Panel{Kind: KindActorList, Data: DwellerList{Dwellers: out, WorldName: worldName}}
}

// DwellerDetail projects a dweller card with its recent actions.
func DwellerDetail(d store.Dweller, actions []store.Action) Panel {
	card := DwellerCard{
		DwellerSummary:  dwellerSummary(d),
		PersonalityFull: d.Personality,
		BackgroundFull:  d.Background,
		RecentActions:   make([]ActionBrief, len(actions)),
	}
	for i, a := range actions {
		card.RecentActions[i] = ActionBrief{
			ActionType: a.ActionType,
			Content:    stringutils.Clip(a.Content, ActionLen),
			CreatedAt:  timestamp(a.CreatedAt),
		}
	}
	return Panel{Kind: KindActorCard, Data: card}
}

// Activity projects a world's activity feed.
func Activity(worldName string, actions []store.Action) Panel {
	items := make([]ActivityItem, len(actions))
	for i, a := range actions {
		items[i] = ActivityItem{
			ActionType: a.ActionType,
			Content:    stringutils.Clip(a.Content, ActionLen),
			Target:     a.Target,
			CreatedAt:  timestamp(a.CreatedAt),
			DwellerID:  a.DwellerID,
		}
	}
	return Panel{Kind: KindActivityFeed, Data: ActivityFeed{Items: items, WorldName: worldName}}
}

// PlatformStats projects corpus-wide counts.
func PlatformStats(s store.Stats) Panel {
	return Panel{Kind: KindSearchResults, Data: StatsResult{Stats: s}}
}

// Empty builds a placeholder panel carrying a message.
func Empty(message string) Panel {
	return Panel{Kind: KindEmpty, Data: EmptyResult{Message: message}}
}

func worldSummary(w store.World) WorldSummary {
	ws := WorldSummary{
		ID:              w.ID,
		Name:            w.Name,
		Premise:         w.Premise,
		CanonSummary:    stringutils.OrDefault(w.CanonSummary, w.Premise),
		YearSetting:     w.YearSetting,
		CausalChain:     append([]store.CausalEvent{}, w.CausalChain...),
		ScientificBasis: w.ScientificBasis,
		Regions:         append([]store.Region{}, w.Regions...),
		CreatedAt:       timestamp(w.CreatedAt),
		DwellerCount:    w.DwellerCount,
		FollowerCount:   w.FollowerCount,
		CommentCount:    w.CommentCount,
		ReactionCounts:  make(map[string]int, len(w.ReactionCounts)),
	}
	for k, v := range w.ReactionCounts {
		ws.ReactionCounts[k] = v
	}
	return ws
}

func storyPreview(s store.Story) StoryPreview {
	return StoryPreview{
		ID:            s.ID,
		Title:         s.Title,
		Summary:       stringutils.OrDefault(s.Summary, stringutils.Clip(s.Content, StorySummaryLen)),
		Status:        stringutils.OrDefault(s.Status, defaultStatus),
		Perspective:   stringutils.OrDefault(s.Perspective, defaultPerspective),
		ReactionCount: s.ReactionCount,
		CommentCount:  s.CommentCount,
		CreatedAt:     timestamp(s.CreatedAt),
	}
}

func dwellerSummary(d store.Dweller) DwellerSummary {
	return DwellerSummary{
		ID:           d.ID,
		Name:         d.Name,
		Role:         d.Role,
		Age:          d.Age,
		OriginRegion: d.OriginRegion,
		Personality:  stringutils.Clip(d.Personality, PersonalityLen),
		Background:   stringutils.Clip(d.Background, BackgroundLen),
		IsActive:     d.IsActive,
		IsAvailable:  d.IsAvailable,
		Inhabited:    d.Inhabited,
	}
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
