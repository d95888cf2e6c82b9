package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/deepscifi/guide/internal/events"
	"github.com/deepscifi/guide/internal/panel"
	"github.com/deepscifi/guide/internal/schema"
	"github.com/deepscifi/guide/internal/session"
	"github.com/deepscifi/guide/internal/store"
	"github.com/deepscifi/guide/internal/store/storetest"
	"github.com/deepscifi/guide/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var cascadeID = store.SeedID("world/cascade-protocol")

// scriptedProvider replays canned engine responses in order.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []step
	seen  []schema.Messages
}

type step struct {
	resp  schema.LLMResponse
	err   error
	block bool
}

func reply(text string) step {
	return step{resp: schema.LLMResponse{Content: text, FinishReason: "stop"}}
}

func toolCall(id, name string, args map[string]any) step {
	return step{resp: schema.LLMResponse{
		ToolCalls:    []schema.ToolCall{{ID: id, Name: name, Arguments: args}},
		FinishReason: "tool_calls",
	}}
}

func (p *scriptedProvider) Chat(ctx context.Context, messages schema.Messages, _ []map[string]any, _ schema.ChatOptions) (schema.LLMResponse, error) {
	p.mu.Lock()
	p.seen = append(p.seen, messages.Clone())
	if len(p.steps) == 0 {
		p.mu.Unlock()
		return schema.LLMResponse{Content: "done", FinishReason: "stop"}, nil
	}
	s := p.steps[0]
	p.steps = p.steps[1:]
	p.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return schema.LLMResponse{}, ctx.Err()
	}
	return s.resp, s.err
}

func (p *scriptedProvider) DefaultModel() string { return "scripted" }

func (p *scriptedProvider) calls() []schema.Messages {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen
}

func newGuide(t *testing.T, f store.Facade, steps ...step) (*Guide, *scriptedProvider) {
	t.Helper()
	reg, err := tools.NewCatalog(f)
	require.NoError(t, err)
	p := &scriptedProvider{steps: steps}
	return New(p, tools.NewDispatcher(reg), Settings{}), p
}

func userTurn(text string) TurnRequest {
	h := schema.NewMessages()
	h.AddUser(text)
	return TurnRequest{RunID: "run-1", History: h}
}

func TestRunTurn_SearchThenNarrate(t *testing.T) {
	g, p := newGuide(t, storetest.Demo(),
		toolCall("c1", "search_worlds", map[string]any{"query": "megacit"}),
		reply("<think>one match</think>Cascade Protocol, 2091: water is law."),
	)

	evs, out := g.RunTurn(context.Background(), userTurn("find megacities")).Drain()

	require.Len(t, evs, 2)
	first := evs[0]
	assert.Equal(t, events.TypeStateSnapshot, first.Type)
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, "search_worlds", first.Tool)
	assert.Equal(t, session.StatusThinking, first.Snapshot.Status)
	assert.Equal(t, []string{"Worlds"}, first.Snapshot.Breadcrumbs)
	require.Len(t, first.Snapshot.Panels, 1)
	assert.Equal(t, panel.KindEntityList, first.Snapshot.Panels[0].Kind)
	assert.Contains(t, first.Snapshot.Narration, "Found 1")

	last := evs[1]
	assert.True(t, last.Terminal)
	assert.Equal(t, 2, last.Seq)
	assert.Equal(t, session.StatusSpeaking, last.Snapshot.Status)
	assert.Equal(t, "Cascade Protocol, 2091: water is law.", last.Snapshot.Narration)
	assert.Empty(t, cmp.Diff(first.Snapshot.Panels, last.Snapshot.Panels))

	assert.Equal(t, events.OutcomeCompleted, out.Kind)
	assert.Equal(t, 1, out.ToolCalls)
	assert.Equal(t, session.StatusIdle, out.State.Status)
	assert.Equal(t, last.Snapshot.Narration, out.State.Narration)

	// The engine saw the tool result, IDs included.
	calls := p.calls()
	require.Len(t, calls, 2)
	msgs := calls[1].Messages
	toolMsg := msgs[len(msgs)-1]
	assert.Equal(t, schema.RoleTool, toolMsg.Role)
	assert.Equal(t, "c1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, cascadeID)
}

func TestRunTurn_NoTools(t *testing.T) {
	g, _ := newGuide(t, storetest.Demo(), reply("Hello, explorer."))

	evs, out := g.RunTurn(context.Background(), userTurn("hi")).Drain()
	require.Len(t, evs, 1)
	assert.True(t, evs[0].Terminal)
	assert.Equal(t, "Hello, explorer.", evs[0].Snapshot.Narration)
	assert.Equal(t, events.OutcomeCompleted, out.Kind)
}

func TestRunTurn_EmptyClosingTextFallsBack(t *testing.T) {
	g, _ := newGuide(t, storetest.Demo(),
		toolCall("c1", "get_platform_stats", nil),
		reply("  "),
	)
	evs, _ := g.RunTurn(context.Background(), userTurn("how big?")).Drain()
	require.Len(t, evs, 2)
	assert.Equal(t, evs[0].Snapshot.Narration, evs[1].Snapshot.Narration)

	g, _ = newGuide(t, storetest.Demo(), reply(""))
	evs, _ = g.RunTurn(context.Background(), userTurn("?")).Drain()
	assert.Equal(t, FallbackNarration, evs[0].Snapshot.Narration)
}

func TestRunTurn_MissEmitsNothing(t *testing.T) {
	missing := store.SeedID("world/nowhere")
	g, p := newGuide(t, storetest.Demo(),
		toolCall("c1", "get_world_detail", map[string]any{"world_id": missing}),
		reply("That world has slipped out of reach."),
	)

	evs, out := g.RunTurn(context.Background(), userTurn("open it")).Drain()
	require.Len(t, evs, 1, "only the closing snapshot")
	assert.Empty(t, evs[0].Snapshot.Panels)
	assert.Empty(t, evs[0].Snapshot.Breadcrumbs)
	assert.Equal(t, events.OutcomeCompleted, out.Kind)

	msgs := p.calls()[1].Messages
	assert.Equal(t, "World with ID "+missing+" not found. Try searching for worlds instead.",
		msgs[len(msgs)-1].Content)
}

func TestRunTurn_RehydratesClientState(t *testing.T) {
	g, p := newGuide(t, storetest.Demo(),
		toolCall("c1", "get_stories", map[string]any{"world_id": cascadeID}),
		reply("Two stories so far."),
	)

	id, name := cascadeID, "Cascade Protocol"
	prior := session.State{
		Narration:   "old",
		Panels:      []panel.Panel{{Kind: "hologram"}},
		FocusID:     &id,
		FocusName:   &name,
		Status:      session.StatusSpeaking,
		Breadcrumbs: []string{"Worlds", name},
	}
	req := userTurn("what stories are there?")
	req.State = &prior

	evs, _ := g.RunTurn(context.Background(), req).Drain()
	require.Len(t, evs, 2)
	assert.Equal(t, []string{"Worlds", name, "Stories"}, evs[0].Snapshot.Breadcrumbs)
	require.NotNil(t, evs[0].Snapshot.FocusID)
	assert.Equal(t, cascadeID, *evs[0].Snapshot.FocusID)
	assert.Equal(t, "old", prior.Narration, "the caller's state is never written")

	system := p.calls()[0].Messages[0]
	assert.Equal(t, schema.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "Focused world: Cascade Protocol (ID "+cascadeID+")")
	assert.Contains(t, system.Content, "Breadcrumbs: Worlds > Cascade Protocol")
}

func TestRunTurn_SeveralCallsInOneResponse(t *testing.T) {
	g, _ := newGuide(t, storetest.Demo(),
		step{resp: schema.LLMResponse{ToolCalls: []schema.ToolCall{
			{ID: "a", Name: "list_worlds"},
			{ID: "b", Name: "get_world_detail", Arguments: map[string]any{"world_id": cascadeID}},
		}}},
		reply("Here it is."),
	)

	evs, out := g.RunTurn(context.Background(), userTurn("show me the top world")).Drain()
	require.Len(t, evs, 3)
	assert.Equal(t, "list_worlds", evs[0].Tool)
	assert.Equal(t, "get_world_detail", evs[1].Tool)
	for i, ev := range evs {
		assert.Equal(t, i+1, ev.Seq)
	}
	assert.Nil(t, evs[0].Snapshot.FocusID)
	assert.NotNil(t, evs[1].Snapshot.FocusID)
	assert.Equal(t, 2, out.ToolCalls)
}

func TestRunTurn_EngineFailure(t *testing.T) {
	g, _ := newGuide(t, storetest.Demo(),
		toolCall("c1", "list_worlds", nil),
		step{err: errors.New("connection reset")},
	)

	evs, out := g.RunTurn(context.Background(), userTurn("worlds")).Drain()
	require.Len(t, evs, 2, "partial state then the apology")
	assert.False(t, evs[0].Terminal)
	assert.True(t, evs[1].Terminal)
	assert.Equal(t, EngineFailureText, evs[1].Snapshot.Narration)
	assert.Equal(t, []string{"Worlds"}, evs[1].Snapshot.Breadcrumbs)
	assert.Equal(t, events.OutcomeEngineFailure, out.Kind)
	assert.True(t, out.Kind.Failed())
	assert.EqualError(t, out.Err, "connection reset")
}

func TestRunTurn_ErrorFinishReason(t *testing.T) {
	g, _ := newGuide(t, storetest.Demo(),
		step{resp: schema.LLMResponse{Content: "Error calling LLM: 401", FinishReason: schema.FinishReasonError}},
	)
	evs, out := g.RunTurn(context.Background(), userTurn("hi")).Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, EngineFailureText, evs[0].Snapshot.Narration)
	assert.Equal(t, events.OutcomeEngineFailure, out.Kind)
}

func TestRunTurn_EngineTimeout(t *testing.T) {
	reg, err := tools.NewCatalog(storetest.Demo())
	require.NoError(t, err)
	p := &scriptedProvider{steps: []step{{block: true}}}
	g := New(p, tools.NewDispatcher(reg), Settings{EngineTimeout: 20 * time.Millisecond})

	_, out := g.RunTurn(context.Background(), userTurn("hi")).Drain()
	assert.Equal(t, events.OutcomeEngineFailure, out.Kind)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

// statsDown serves the demo corpus but cannot reach the stats query.
type statsDown struct {
	*storetest.Memory
}

func (statsDown) AggregateStats(context.Context) (store.Stats, error) {
	return store.Stats{}, fmt.Errorf("%w: stats: connection refused", store.ErrUpstreamUnavailable)
}

func TestRunTurn_UpstreamUnavailable(t *testing.T) {
	g, p := newGuide(t, statsDown{storetest.Demo()},
		toolCall("c1", "list_worlds", nil),
		toolCall("c2", "get_platform_stats", nil),
		reply("never reached"),
	)

	evs, out := g.RunTurn(context.Background(), userTurn("worlds then stats")).Drain()
	require.Len(t, evs, 2)
	assert.Equal(t, "list_worlds", evs[0].Tool)
	assert.True(t, evs[1].Terminal)
	assert.Equal(t, UpstreamFailedText, evs[1].Snapshot.Narration)
	assert.Empty(t, cmp.Diff(evs[0].Snapshot.Panels, evs[1].Snapshot.Panels), "no partial corruption")
	assert.Equal(t, []string{"Worlds"}, evs[1].Snapshot.Breadcrumbs)
	assert.Equal(t, events.OutcomeUpstreamUnavailable, out.Kind)
	assert.ErrorIs(t, out.Err, store.ErrUpstreamUnavailable)
	assert.Len(t, p.calls(), 2, "the turn ends without asking the engine again")
}

func TestRunTurn_IterationLimit(t *testing.T) {
	reg, err := tools.NewCatalog(storetest.Demo())
	require.NoError(t, err)
	loop := toolCall("c", "list_worlds", nil)
	p := &scriptedProvider{steps: []step{loop, loop, loop, loop}}
	g := New(p, tools.NewDispatcher(reg), Settings{MaxToolIterations: 3})

	evs, out := g.RunTurn(context.Background(), userTurn("loop")).Drain()
	require.Len(t, evs, 4)
	assert.Equal(t, "I've explored as far as I can for now. Ask me to continue.", evs[3].Snapshot.Narration)
	assert.Equal(t, events.OutcomeIterationLimit, out.Kind)
	assert.Equal(t, 3, out.ToolCalls)
}

func TestRunTurn_ClientDisconnect(t *testing.T) {
	mem := storetest.Demo()
	mem.Gate = make(chan struct{})
	g, p := newGuide(t, mem,
		toolCall("c1", "list_worlds", nil),
		reply("never reached"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	stream := g.RunTurn(ctx, userTurn("worlds"))

	require.Eventually(t, func() bool { return mem.Calls() > 0 }, time.Second, time.Millisecond)
	cancel()
	close(mem.Gate)

	evs, out := stream.Drain()
	assert.Empty(t, evs)
	assert.Equal(t, events.OutcomeCancelled, out.Kind)
	assert.Len(t, p.calls(), 1, "no further engine calls after disconnect")
}

func TestRunTurn_ConsumerStopsReading(t *testing.T) {
	reg, err := tools.NewCatalog(storetest.Demo())
	require.NoError(t, err)
	p := &scriptedProvider{steps: []step{
		toolCall("a", "list_worlds", nil),
		toolCall("b", "get_platform_stats", nil),
		reply("done"),
	}}
	g := New(p, tools.NewDispatcher(reg), Settings{}, WithStreamBuffer(0))

	ctx, cancel := context.WithCancel(context.Background())
	stream := g.RunTurn(ctx, userTurn("worlds"))
	<-stream.Events()
	cancel()

	_, out := stream.Drain()
	assert.Equal(t, events.OutcomeCancelled, out.Kind)
}

func TestEvent_WireShape(t *testing.T) {
	g, _ := newGuide(t, storetest.Demo(), reply("Hello."))
	evs, _ := g.RunTurn(context.Background(), userTurn("hi")).Drain()

	raw, err := json.Marshal(evs[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw),
		`{"type":"state_snapshot","seq":1,"terminal":true,"snapshot":{"response_text":"Hello.","panels":[],`+
			`"current_world_id":null,"current_world_name":null,"status":"speaking","breadcrumbs":[]}`), string(raw))
}

func TestBuildSystemPrompt_EmptyView(t *testing.T) {
	prompt := buildSystemPrompt("be brief", session.New(), time.Date(2091, 4, 1, 9, 30, 0, 0, time.UTC))
	assert.True(t, strings.HasPrefix(prompt, "be brief\n\n## Current Time\n2091-04-01 09:30 (Sunday) UTC"))
	assert.NotContains(t, prompt, "Current View")
}
