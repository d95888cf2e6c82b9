package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/deepscifi/guide/internal/agent"
	"github.com/deepscifi/guide/internal/events"
	"github.com/deepscifi/guide/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	// queuedMessages bounds frames waiting behind a running turn.
	queuedMessages = 16
)

// Client frame types.
const (
	FrameUserMessage = "user_message"
	FrameReset       = "reset"
)

// Server frame types. Snapshots use events.Event's own "state_snapshot".
const (
	FrameTurnEnd = "turn_end"
	FrameError   = "error"
	FrameResetOK = "reset_ok"
)

// clientFrame is a message from the client.
type clientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// serverFrame closes a turn or reports a problem.
type serverFrame struct {
	Type      string             `json:"type"`
	RunID     string             `json:"run_id,omitempty"`
	Outcome   events.OutcomeKind `json:"outcome,omitempty"`
	Narration string             `json:"narration,omitempty"`
	Error     string             `json:"error,omitempty"`
	Hint      string             `json:"hint,omitempty"`
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *Server) upgrader() websocket.Upgrader {
	u := websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096}
	if len(s.opts.AllowedOrigins) > 0 {
		u.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		}
	}
	return u
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	raw, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.Warn("transport: websocket upgrade failed", "err", err)
		return
	}
	defer raw.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.conns, cancel)
	defer stop()

	conv := session.NewConversation(uuid.NewString())
	conn := &wsConn{conn: raw}
	slog.Info("transport: websocket connected", "conversation", conv.Key, "remote", r.RemoteAddr)

	queue := make(chan clientFrame, queuedMessages)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runConversation(ctx, conn, conv, queue)
	}()
	go func() {
		defer wg.Done()
		keepAlive(ctx, conn)
	}()

	s.readFrames(ctx, conn, conv, queue)
	cancel()
	close(queue)
	wg.Wait()
	slog.Info("transport: websocket closed", "conversation", conv.Key, "messages", conv.Len())
}

// readFrames reads until the client disconnects or ctx ends.
func (s *Server) readFrames(ctx context.Context, conn *wsConn, conv *session.Conversation, queue chan<- clientFrame) {
	raw := conn.conn
	raw.SetReadLimit(MaxBodyBytes)
	_ = raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("transport: websocket read", "conversation", conv.Key, "err", err)
			}
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(pongWait))

		var f clientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			_ = conn.write(serverFrame{Type: FrameError, Error: "invalid frame",
				Hint: `send {"type":"user_message","content":"..."}`})
			continue
		}
		switch f.Type {
		case FrameUserMessage:
			if strings.TrimSpace(f.Content) == "" {
				_ = conn.write(serverFrame{Type: FrameError, Error: "empty message", Hint: "content must not be blank"})
				continue
			}
		case FrameReset:
		default:
			_ = conn.write(serverFrame{Type: FrameError, Error: "unknown frame type " + f.Type,
				Hint: "use user_message or reset"})
			continue
		}
		select {
		case queue <- f:
		case <-ctx.Done():
			return
		default:
			_ = conn.write(serverFrame{Type: FrameError, Error: "too many pending messages",
				Hint: "wait for the current turn to finish"})
		}
	}
}

// runConversation handles queued frames in order, one turn at a time.
func (s *Server) runConversation(ctx context.Context, conn *wsConn, conv *session.Conversation, queue <-chan clientFrame) {
	for f := range queue {
		if ctx.Err() != nil {
			continue
		}
		if f.Type == FrameReset {
			conv.Clear()
			_ = conn.write(serverFrame{Type: FrameResetOK})
			continue
		}
		s.runWebSocketTurn(ctx, conn, conv, f.Content)
	}
}

func (s *Server) runWebSocketTurn(ctx context.Context, conn *wsConn, conv *session.Conversation, content string) {
	end := conv.BeginTurn()
	defer end()

	conv.AddUser(content)
	state := conv.State()
	runID := uuid.NewString()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream := s.runner.RunTurn(turnCtx, agent.TurnRequest{
		RunID:          runID,
		ConversationID: conv.Key,
		History:        conv.History(s.opts.HistoryWindow),
		State:          &state,
	})
	for ev := range stream.Events() {
		if err := conn.write(ev); err != nil {
			cancel()
		}
	}

	out := stream.Outcome()
	conv.SetState(out.State)
	if out.Kind == events.OutcomeCancelled {
		return
	}
	conv.AddAssistant(out.Narration)

	frame := serverFrame{Type: FrameTurnEnd, RunID: runID, Outcome: out.Kind, Narration: out.Narration}
	if out.Kind.Failed() {
		frame.Error, frame.Hint = failure(out.Kind)
	}
	_ = conn.write(frame)
}

func keepAlive(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		case <-ctx.Done():
			// Unblock the reader.
			_ = conn.conn.SetReadDeadline(time.Now())
			return
		}
	}
}
