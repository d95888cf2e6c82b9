package session

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepscifi/guide/internal/panel"
	"github.com/deepscifi/guide/internal/store"
)

func TestNew_WireShape(t *testing.T) {
	raw, err := json.Marshal(New())
	require.NoError(t, err)
	assert.Equal(t,
		`{"response_text":"","panels":[],"current_world_id":null,"current_world_name":null,"status":"idle","breadcrumbs":[]}`,
		string(raw))
}

func TestApply_FocusOps(t *testing.T) {
	s := New()
	s.Apply(Update{
		Narration:   "World: Cascade Protocol",
		Panels:      []panel.Panel{panel.Empty("x")},
		Breadcrumbs: []string{"Worlds", "Cascade Protocol"},
		Focus:       FocusSet,
		FocusID:     "w1",
		FocusName:   "Cascade Protocol",
	})
	id, name, ok := s.Focused()
	require.True(t, ok)
	assert.Equal(t, "w1", id)
	assert.Equal(t, "Cascade Protocol", name)

	s.Apply(Update{Breadcrumbs: []string{"Worlds", "Cascade Protocol", "Stories"}, Focus: FocusKeep})
	_, _, ok = s.Focused()
	assert.True(t, ok, "children-of keeps focus")
	assert.Empty(t, s.Panels)

	s.Apply(Update{Breadcrumbs: []string{"Worlds"}, Focus: FocusClear})
	_, _, ok = s.Focused()
	assert.False(t, ok)
	assert.Nil(t, s.FocusName)
}

func TestApply_LeavesStatusAlone(t *testing.T) {
	s := New()
	s.Status = StatusThinking
	s.Apply(Update{Breadcrumbs: []string{"Platform Stats"}})
	assert.Equal(t, StatusThinking, s.Status)
}

func TestApply_Idempotent(t *testing.T) {
	u := Update{
		Narration:   "Found 1 worlds matching 'megacit'.",
		Panels:      []panel.Panel{panel.Worlds([]store.World{{ID: "w1", Name: "Cascade Protocol"}})},
		Breadcrumbs: []string{"Worlds"},
		Focus:       FocusClear,
	}
	once := New()
	once.Apply(u)
	twice := once.Clone()
	twice.Apply(u)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("applying the same update twice changed the state (-once +twice):\n%s", diff)
	}
}

func TestClone_Independent(t *testing.T) {
	s := New()
	s.Apply(Update{Breadcrumbs: []string{"Worlds", "A"}, Focus: FocusSet, FocusID: "w1", FocusName: "A"})

	c := s.Clone()
	c.Breadcrumbs[1] = "B"
	*c.FocusName = "B"
	c.Panels = append(c.Panels, panel.Empty("x"))

	assert.Equal(t, "A", s.Breadcrumbs[1])
	assert.Equal(t, "A", *s.FocusName)
	assert.Empty(t, s.Panels)
}

func TestSanitize(t *testing.T) {
	in := `{"response_text":"hi","panels":[{"type":"world_list","data":{}},{"type":"entity_list","data":{"worlds":[]}}],
		"current_world_id":"","current_world_name":"Ghost","status":"dancing","breadcrumbs":null}`
	var s State
	require.NoError(t, json.Unmarshal([]byte(in), &s))
	s.Sanitize()

	require.Len(t, s.Panels, 1)
	assert.Equal(t, panel.KindEntityList, s.Panels[0].Kind)
	assert.Nil(t, s.FocusID)
	assert.Nil(t, s.FocusName)
	assert.Equal(t, StatusIdle, s.Status)
	assert.NotNil(t, s.Breadcrumbs)

	id := "w1"
	s = State{FocusID: &id}
	s.Sanitize()
	require.NotNil(t, s.FocusName)
	assert.Equal(t, "", *s.FocusName)
}

func TestConversation_History(t *testing.T) {
	c := NewConversation("ws:1")
	c.AddUser("list worlds")
	c.AddAssistant("Here are three worlds.")
	c.AddUser("the first one")

	assert.Equal(t, 3, c.Len())
	h := c.History(2)
	require.Equal(t, 2, h.Len())
	assert.Equal(t, "the first one", h.LastUser())

	st := New()
	st.Apply(Update{Breadcrumbs: []string{"Worlds"}})
	c.SetState(st)
	st.Breadcrumbs[0] = "mutated"
	assert.Equal(t, []string{"Worlds"}, c.State().Breadcrumbs)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.State().Breadcrumbs)
}

func TestConversation_BeginTurnSerialises(t *testing.T) {
	c := NewConversation("ws:2")
	end := c.BeginTurn()

	var second atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		done := c.BeginTurn()
		second.Store(true)
		done()
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, second.Load(), "second turn must wait for the first")
	end()
	wg.Wait()
	assert.True(t, second.Load())
}
