package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepscifi/guide/internal/session"
	"github.com/deepscifi/guide/internal/store"
	"github.com/deepscifi/guide/internal/store/storetest"
	"github.com/deepscifi/guide/internal/tools"
)

func newTestServer(t *testing.T, f store.Facade) *Server {
	t.Helper()
	reg, err := tools.NewCatalog(f)
	require.NoError(t, err)
	return NewServer("guide-test", "0.0.0", tools.NewDispatcher(reg))
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.handleTool(tools.ToolName(name))(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func texts(t *testing.T, res *mcp.CallToolResult) []string {
	t.Helper()
	out := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		tc, ok := c.(mcp.TextContent)
		require.True(t, ok, "unexpected content %T", c)
		out = append(out, tc.Text)
	}
	return out
}

func TestToolCall_ReturnsSummaryAndSnapshot(t *testing.T) {
	s := newTestServer(t, storetest.Demo())

	res := callTool(t, s, "list_worlds", map[string]any{"sort": "popular"})
	require.False(t, res.IsError)
	parts := texts(t, res)
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0], "Found 3 worlds sorted by popular."), parts[0])

	var snap session.State
	require.NoError(t, json.Unmarshal([]byte(parts[1]), &snap))
	assert.Equal(t, []string{"Worlds"}, snap.Breadcrumbs)
	require.Len(t, snap.Panels, 1)
	assert.Equal(t, s.State().Breadcrumbs, snap.Breadcrumbs)
}

func TestToolCall_StatePersistsAcrossCalls(t *testing.T) {
	s := newTestServer(t, storetest.Demo())
	cascade := store.SeedID("world/cascade-protocol")

	callTool(t, s, "get_world_detail", map[string]any{"world_id": cascade})
	id, name, ok := s.State().Focused()
	require.True(t, ok)
	assert.Equal(t, cascade, id)
	assert.Equal(t, "Cascade Protocol", name)

	// A miss leaves the view alone.
	res := callTool(t, s, "get_story_detail", map[string]any{"story_id": store.SeedID("story/missing")})
	assert.False(t, res.IsError)
	assert.Contains(t, texts(t, res)[0], "not found")
	id, _, ok = s.State().Focused()
	assert.True(t, ok)
	assert.Equal(t, cascade, id)
}

func TestToolCall_InvalidArgumentsAreNotErrors(t *testing.T) {
	s := newTestServer(t, storetest.Demo())
	res := callTool(t, s, "get_world_detail", nil)
	assert.False(t, res.IsError)
	assert.Contains(t, texts(t, res)[0], "Invalid arguments for get_world_detail")
	assert.Empty(t, s.State().Panels)
}

func TestToolCall_StoreDown(t *testing.T) {
	mem := storetest.Demo()
	mem.Fail(store.ErrUpstreamUnavailable)
	s := newTestServer(t, mem)

	res := callTool(t, s, "get_platform_stats", map[string]any{})
	assert.True(t, res.IsError)
	assert.Equal(t, []string{"The world archive is unavailable. Try again in a moment."}, texts(t, res))
	assert.Equal(t, session.New(), s.State())
}

func TestStateResource(t *testing.T) {
	s := newTestServer(t, storetest.Demo())
	callTool(t, s, "get_platform_stats", map[string]any{})

	req := mcp.ReadResourceRequest{}
	req.Params.URI = StateURI
	contents, err := s.handleStateResource(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text := contents[0].(mcp.TextResourceContents)
	assert.Equal(t, "application/json", text.MIMEType)

	var snap session.State
	require.NoError(t, json.Unmarshal([]byte(text.Text), &snap))
	assert.Equal(t, s.State().Narration, snap.Narration)
	assert.True(t, strings.HasPrefix(snap.Narration, "Platform has"))
}
