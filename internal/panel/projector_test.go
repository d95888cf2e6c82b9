package panel

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepscifi/guide/internal/store"
)

func TestWorlds_DefaultsAndFallbacks(t *testing.T) {
	p := Worlds([]store.World{{
		ID:          "w1",
		Name:        "Orbital Quiet",
		Premise:     "Low orbit belongs to salvage crews.",
		YearSetting: 2110,
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}})

	require.Equal(t, KindEntityList, p.Kind)
	list := p.Data.(WorldList)
	require.Len(t, list.Worlds, 1)
	w := list.Worlds[0]
	assert.Equal(t, w.Premise, w.CanonSummary, "canon summary falls back to premise")
	assert.NotNil(t, w.CausalChain)
	assert.NotNil(t, w.Regions)
	assert.NotNil(t, w.ReactionCounts)
	assert.Equal(t, "2026-03-01T12:00:00Z", w.CreatedAt)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	s := string(raw)
	assert.True(t, strings.HasPrefix(s, `{"type":"entity_list","data":{"worlds":[{"id":"w1",`))
	assert.Contains(t, s, `"causal_chain":[]`)
	assert.Contains(t, s, `"reaction_counts":{}`)
}

func TestWorldDetail_AppendsCausalChain(t *testing.T) {
	w := store.World{ID: "w1", Name: "Cascade Protocol", CausalChain: []store.CausalEvent{{Year: 2038, Event: "collapse"}}}
	panels := WorldDetail(w, []store.Dweller{{ID: "d1", Name: "Mara", Role: "auditor", IsActive: true}}, nil)
	require.Len(t, panels, 2)
	assert.Equal(t, KindEntityCard, panels[0].Kind)
	assert.Equal(t, KindCausalChain, panels[1].Kind)

	card := panels[0].Data.(WorldCard)
	assert.Equal(t, []DwellerBrief{{ID: "d1", Name: "Mara", Role: "auditor", IsActive: true}}, card.Dwellers)
	assert.NotNil(t, card.Stories)

	raw, err := json.Marshal(panels[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name":"Cascade Protocol"`, "world fields are flattened into the card")
	assert.Contains(t, string(raw), `"dwellers":[`)

	w.CausalChain = nil
	assert.Len(t, WorldDetail(w, nil, nil), 1)
}

func TestStoryPreview_SummaryFallback(t *testing.T) {
	long := strings.Repeat("ü", 450)
	p := Stories("Cascade Protocol", []store.Story{
		{ID: "s1", Title: "With summary", Summary: "Short.", Content: long},
		{ID: "s2", Title: "Without", Content: long},
	})
	list := p.Data.(StoryList)
	assert.Equal(t, "Cascade Protocol", list.WorldName)
	assert.Equal(t, "Short.", list.Stories[0].Summary)
	assert.Equal(t, strings.Repeat("ü", 200), list.Stories[1].Summary)
	assert.Equal(t, "PUBLISHED", list.Stories[1].Status)
	assert.Equal(t, "FIRST_PERSON_AGENT", list.Stories[1].Perspective)

	full := StoryDetail(store.Story{ID: "s2", Content: long}).Data.(StoryFull)
	assert.Equal(t, long, full.Content)
}

func TestActivity_TargetDefaultsToEmpty(t *testing.T) {
	p := Activity("Tidal Commons", []store.Action{{ID: "a1", DwellerID: "d1", ActionType: "observe", Content: "Counted kelp."}})
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"activity_feed","data":{"items":[{"action_type":"observe","content":"Counted kelp.","target":"","created_at":"","dweller_id":"d1"}],"world_name":"Tidal Commons"}}`, string(raw))
}

func TestPlatformStats(t *testing.T) {
	raw, err := json.Marshal(PlatformStats(store.Stats{WorldCount: 3, DwellerCount: 3, StoryCount: 3, TotalFollowers: 204}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"search_results","data":{"stats":{"world_count":3,"dweller_count":3,"story_count":3,"total_followers":204}}}`, string(raw))
}

func TestPanel_UnmarshalKeepsPayload(t *testing.T) {
	in := `{"type":"entity_list","data":{"worlds":[{"id":"w1"}]}}`
	var p Panel
	require.NoError(t, json.Unmarshal([]byte(in), &p))
	assert.Equal(t, KindEntityList, p.Kind)
	assert.True(t, p.Kind.Valid())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))

	require.NoError(t, json.Unmarshal([]byte(`{"type":"hologram"}`), &p))
	assert.False(t, p.Kind.Valid())
	out, err = json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"hologram","data":{}}`, string(out))
}

func TestDwellerTruncationLaw(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	properties.Property("summaries are bounded and details are exact", prop.ForAll(
		func(personality, background, action string) bool {
			d := store.Dweller{ID: "d1", Personality: personality, Background: background}
			acts := []store.Action{{ID: "a1", Content: action}}

			summary := Dwellers("w", []store.Dweller{d}).Data.(DwellerList).Dwellers[0]
			card := DwellerDetail(d, acts).Data.(DwellerCard)

			return utf8.RuneCountInString(summary.Personality) <= PersonalityLen &&
				utf8.RuneCountInString(summary.Background) <= BackgroundLen &&
				strings.HasPrefix(personality, summary.Personality) &&
				strings.HasPrefix(background, summary.Background) &&
				utf8.RuneCountInString(card.RecentActions[0].Content) <= ActionLen &&
				card.PersonalityFull == personality &&
				card.BackgroundFull == background
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("story preview bounded, full story exact", prop.ForAll(
		func(content string) bool {
			s := store.Story{ID: "s1", Content: content}
			preview := Stories("w", []store.Story{s}).Data.(StoryList).Stories[0]
			full := StoryDetail(s).Data.(StoryFull)
			return utf8.RuneCountInString(preview.Summary) <= StorySummaryLen && full.Content == content
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindEntityCard, KindEntityList, KindChildPreview, KindChildFull, KindActorCard,
		KindActorList, KindCausalChain, KindActivityFeed, KindSearchResults, KindEmpty} {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Kind("world_list").Valid())
}
