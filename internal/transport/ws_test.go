package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepscifi/guide/internal/agent"
	"github.com/deepscifi/guide/internal/events"
)

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/voice/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// readTurn reads frames up to and including turn_end.
func readTurn(t *testing.T, conn *websocket.Conn) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for {
		f := readFrame(t, conn)
		frames = append(frames, f)
		if f["type"] == FrameTurnEnd {
			return frames
		}
	}
}

func TestWebSocket_ConversationKeepsHistoryAndState(t *testing.T) {
	r := &fakeRunner{script: narrate("Here they are.")}
	conn := dial(t, NewServer(r, nil, Options{}))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": FrameUserMessage, "content": "show worlds"}))
	frames := readTurn(t, conn)
	require.Len(t, frames, 3)
	assert.Equal(t, string(events.TypeStateSnapshot), frames[0]["type"])
	assert.Equal(t, float64(1), frames[0]["seq"])
	assert.Equal(t, true, frames[1]["terminal"])
	end := frames[2]
	assert.Equal(t, "completed", end["outcome"])
	assert.Equal(t, "Here they are.", end["narration"])
	assert.NotEmpty(t, end["run_id"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": FrameUserMessage, "content": "and now?"}))
	readTurn(t, conn)

	reqs := r.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0].ConversationID, reqs[1].ConversationID)
	assert.Equal(t, 1, reqs[0].History.Len())
	assert.Equal(t, 3, reqs[1].History.Len())
	assert.Equal(t, "and now?", reqs[1].History.LastUser())
	require.NotNil(t, reqs[1].State)
	assert.Equal(t, []string{"Worlds"}, reqs[1].State.Breadcrumbs)
	assert.Equal(t, "idle", string(reqs[1].State.Status))
}

func TestWebSocket_Reset(t *testing.T) {
	r := &fakeRunner{script: narrate("ok")}
	conn := dial(t, NewServer(r, nil, Options{}))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": FrameUserMessage, "content": "one"}))
	readTurn(t, conn)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": FrameReset}))
	assert.Equal(t, FrameResetOK, readFrame(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": FrameUserMessage, "content": "two"}))
	readTurn(t, conn)

	reqs := r.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, 1, reqs[1].History.Len())
	assert.Empty(t, reqs[1].State.Breadcrumbs)
}

func TestWebSocket_RejectsBadFrames(t *testing.T) {
	r := &fakeRunner{script: narrate("ok")}
	conn := dial(t, NewServer(r, nil, Options{}))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	f := readFrame(t, conn)
	assert.Equal(t, FrameError, f["type"])
	assert.Equal(t, "invalid frame", f["error"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	f = readFrame(t, conn)
	assert.Equal(t, "unknown frame type dance", f["error"])
	assert.Equal(t, "use user_message or reset", f["hint"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": FrameUserMessage, "content": " "}))
	assert.Equal(t, "empty message", readFrame(t, conn)["error"])

	assert.Empty(t, r.requests())
}

func TestWebSocket_FailureFrame(t *testing.T) {
	r := &fakeRunner{script: func(ctx context.Context, _ agent.TurnRequest, em *events.Emitter) events.Outcome {
		return events.Outcome{Kind: events.OutcomeEngineFailure, Narration: agent.EngineFailureText}
	}}
	conn := dial(t, NewServer(r, nil, Options{}))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": FrameUserMessage, "content": "hi"}))
	frames := readTurn(t, conn)
	end := frames[len(frames)-1]
	assert.Equal(t, "engine_failure", end["outcome"])
	assert.Equal(t, "The guide could not finish this turn.", end["error"])
	assert.Equal(t, agent.EngineFailureText, end["narration"])
}

func TestWebSocket_DisconnectCancelsTurn(t *testing.T) {
	started := make(chan struct{})
	stopped := make(chan struct{})
	r := &fakeRunner{script: func(ctx context.Context, _ agent.TurnRequest, _ *events.Emitter) events.Outcome {
		close(started)
		<-ctx.Done()
		close(stopped)
		return events.Outcome{Kind: events.OutcomeCancelled}
	}}
	conn := dial(t, NewServer(r, nil, Options{}))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": FrameUserMessage, "content": "hi"}))
	<-started
	conn.Close()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("turn was not cancelled after the client disconnected")
	}
}

func TestWebSocket_OriginCheck(t *testing.T) {
	s := NewServer(&fakeRunner{}, nil, Options{AllowedOrigins: []string{"https://deep-sci-fi.world"}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/voice/ws"

	header := map[string][]string{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}
