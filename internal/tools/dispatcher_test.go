package tools

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepscifi/guide/internal/schema"
	"github.com/deepscifi/guide/internal/session"
	"github.com/deepscifi/guide/internal/store"
	"github.com/deepscifi/guide/internal/store/storetest"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string][]string
}

func (o *recordingObserver) ToolStarted(ctx context.Context, tool string) (context.Context, func(string)) {
	return ctx, func(outcome string) {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.outcomes == nil {
			o.outcomes = make(map[string][]string)
		}
		o.outcomes[tool] = append(o.outcomes[tool], outcome)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	obs := &recordingObserver{}
	reg, err := NewCatalog(storetest.Demo())
	require.NoError(t, err)
	d := NewDispatcher(reg, WithObserver(obs))
	st := session.New()

	res, err := d.Dispatch(context.Background(), &st, schema.ToolCall{ID: "c1", Name: "delete_world"})
	require.NoError(t, err)
	assert.Equal(t, "Error: Tool 'delete_world' not found", res.Summary)
	assert.Equal(t, res.Summary, res.EngineText)
	assert.False(t, res.Applied)
	assert.Equal(t, []string{OutcomeUnknown}, obs.outcomes["delete_world"])
	assert.Empty(t, cmp.Diff(session.New(), st))
}

func TestDispatch_InvalidArguments(t *testing.T) {
	d := newTestDispatcher(t, storetest.Demo())
	st := session.New()

	tests := []struct {
		name string
		call schema.ToolCall
		want string
	}{
		{
			name: "missing required",
			call: call(ToolGetWorldDetail, nil),
			want: "Invalid arguments for get_world_detail: missing properties: 'world_id'",
		},
		{
			name: "empty query",
			call: call(ToolSearchWorlds, map[string]any{"query": ""}),
			want: "Invalid arguments for search_worlds:",
		},
		{
			name: "wrong type",
			call: call(ToolGetStories, map[string]any{"world_id": cascadeID, "limit": "lots"}),
			want: "Invalid arguments for get_stories: limit:",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := d.Dispatch(context.Background(), &st, tt.call)
			require.NoError(t, err)
			assert.Contains(t, res.Summary, tt.want)
			assert.False(t, res.Applied)
		})
	}
	assert.Empty(t, cmp.Diff(session.New(), st))
}

func TestDispatch_UpstreamFailureAborts(t *testing.T) {
	mem := storetest.Demo()
	obs := &recordingObserver{}
	reg, err := NewCatalog(mem)
	require.NoError(t, err)
	d := NewDispatcher(reg, WithObserver(obs))
	st := session.New()

	mem.Fail(store.ErrUpstreamUnavailable)
	_, err = d.Dispatch(context.Background(), &st, call(ToolListWorlds, nil))

	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, ToolListWorlds, abort.Tool)
	assert.ErrorIs(t, err, store.ErrUpstreamUnavailable)
	assert.Equal(t, []string{OutcomeAborted}, obs.outcomes["list_worlds"])
	assert.Empty(t, cmp.Diff(session.New(), st))
}

func TestDispatch_CancelledMidCallIsDiscarded(t *testing.T) {
	mem := storetest.Demo()
	mem.Gate = make(chan struct{})
	d := newTestDispatcher(t, mem)
	st := session.New()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(ctx, &st, call(ToolListWorlds, nil))
		errc <- err
	}()

	require.Eventually(t, func() bool { return mem.Calls() > 0 }, time.Second, time.Millisecond)
	cancel()
	// The read is still in flight; let it finish.
	close(mem.Gate)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return")
	}
	assert.Empty(t, cmp.Diff(session.New(), st))
}

func TestDispatch_CancelledBeforeCall(t *testing.T) {
	mem := storetest.Demo()
	d := newTestDispatcher(t, mem)
	st := session.New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Dispatch(ctx, &st, call(ToolListWorlds, nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, mem.Calls())
}

func TestDispatch_Timeout(t *testing.T) {
	mem := storetest.Demo()
	mem.Gate = make(chan struct{})
	defer close(mem.Gate)
	reg, err := NewCatalog(mem)
	require.NoError(t, err)
	d := NewDispatcher(reg, WithToolTimeout(20*time.Millisecond))
	st := session.New()

	_, err = d.Dispatch(context.Background(), &st, call(ToolGetPlatformStats, nil))
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDispatch_Idempotent(t *testing.T) {
	d := newTestDispatcher(t, storetest.Demo())
	c := call(ToolGetWorldDetail, map[string]any{"world_id": cascadeID})

	st := session.New()
	_, err := d.Dispatch(context.Background(), &st, c)
	require.NoError(t, err)
	once := st.Clone()

	_, err = d.Dispatch(context.Background(), &st, c)
	require.NoError(t, err)
	if diff := cmp.Diff(once, st); diff != "" {
		t.Errorf("second dispatch changed the state (-once +twice):\n%s", diff)
	}
}

func TestDispatch_ResultCarriesSnapshot(t *testing.T) {
	d := newTestDispatcher(t, storetest.Demo())
	st := session.New()

	res, err := d.Dispatch(context.Background(), &st, call(ToolListWorlds, nil))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(st, res.State))

	st.Breadcrumbs[0] = "mutated"
	assert.Equal(t, "Worlds", res.State.Breadcrumbs[0], "result state is a copy")
}

// Every applied call leaves a breadcrumb trail whose depth is fixed by the
// tool; a miss leaves the trail as it was.
func TestDispatch_BreadcrumbDepth(t *testing.T) {
	d := newTestDispatcher(t, storetest.Demo())
	depth := map[ToolName]int{
		ToolSearchWorlds:     1,
		ToolListWorlds:       1,
		ToolGetPlatformStats: 1,
		ToolGetWorldDetail:   2,
		ToolGetStories:       3,
		ToolGetDwellers:      3,
		ToolGetActivity:      3,
		ToolGetStoryDetail:   4,
		ToolGetDwellerDetail: 4,
	}
	ids := map[ToolName][]string{
		ToolGetWorldDetail:   {cascadeID, tidalID, "bogus"},
		ToolGetStories:       {cascadeID, store.SeedID("world/nowhere")},
		ToolGetDwellers:      {tidalID, "bogus"},
		ToolGetActivity:      {cascadeID, tidalID},
		ToolGetStoryDetail:   {storyID, store.SeedID("story/bloom"), "bogus"},
		ToolGetDwellerDetail: {maraID, store.SeedID("dweller/nobody")},
	}
	argKey := map[ToolName]string{
		ToolGetWorldDetail:   "world_id",
		ToolGetStories:       "world_id",
		ToolGetDwellers:      "world_id",
		ToolGetActivity:      "world_id",
		ToolGetStoryDetail:   "story_id",
		ToolGetDwellerDetail: "dweller_id",
	}
	names := d.Registry().Names()

	build := func(picks []int) []schema.ToolCall {
		calls := make([]schema.ToolCall, 0, len(picks))
		for _, p := range picks {
			name := names[p%len(names)]
			args := map[string]any{}
			switch {
			case name == ToolSearchWorlds:
				args["query"] = []string{"megacit", "kelp", "zzz"}[p%3]
			case argKey[name] != "":
				choices := ids[name]
				args[argKey[name]] = choices[p%len(choices)]
			}
			calls = append(calls, call(name, args))
		}
		return calls
	}

	properties := gopter.NewProperties(nil)
	properties.Property("depth follows the tool", prop.ForAll(
		func(picks []int) bool {
			st := session.New()
			for _, c := range build(picks) {
				before := st.Clone()
				res, err := d.Dispatch(context.Background(), &st, c)
				if err != nil {
					return false
				}
				if res.Applied {
					if len(st.Breadcrumbs) != depth[ToolName(c.Name)] {
						return false
					}
				} else if !cmp.Equal(before, st) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(0, 1000)),
	))
	properties.TestingRun(t)
}
