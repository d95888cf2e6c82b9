// Package transport serves the guide to exploration clients: an AG-UI
// server-sent-events endpoint for stateless clients, a WebSocket endpoint
// that keeps one conversation per connection, and health probes.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/deepscifi/guide/internal/agent"
	"github.com/deepscifi/guide/internal/events"
)

// MaxBodyBytes caps request bodies and WebSocket frames.
const MaxBodyBytes = 1 << 20

// Runner starts a turn. *agent.Guide implements it.
type Runner interface {
	RunTurn(ctx context.Context, req agent.TurnRequest) *events.Stream
}

// Readiness reports whether the store is reachable. *heartbeat.Service
// implements it.
type Readiness interface {
	Healthy() bool
}

// Options configures a Server.
type Options struct {
	Addr           string
	AllowedOrigins []string // "*" allows any origin
	HistoryWindow  int      // messages a WebSocket turn sees; 0 means all
}

// Server is the HTTP front of the guide.
type Server struct {
	runner Runner
	ready  Readiness
	opts   Options
	mux    *http.ServeMux

	// conns is cancelled on shutdown to end hijacked WebSocket connections,
	// which http.Server.Shutdown does not track.
	conns      context.Context
	closeConns context.CancelFunc
}

// NewServer builds the routes. ready may be nil, in which case /readyz
// always succeeds.
func NewServer(runner Runner, ready Readiness, opts Options) *Server {
	s := &Server{runner: runner, ready: ready, opts: opts, mux: http.NewServeMux()}
	s.conns, s.closeConns = context.WithCancel(context.Background())
	s.mux.HandleFunc("POST /voice/chat", s.handleChat)
	s.mux.HandleFunc("GET /voice/ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	return s
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.cors(s.mux)
}

// Run serves on opts.Addr until ctx is cancelled, then shuts down
// gracefully, giving in-flight turns up to ten seconds to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(s.closeConns)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("transport: listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("transport: shutdown", "err", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("transport: stopped")
	return ctx.Err()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil && !s.ready.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) originAllowed(origin string) bool {
	return slices.Contains(s.opts.AllowedOrigins, "*") || slices.Contains(s.opts.AllowedOrigins, origin)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Accept")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// errorBody is the JSON body of every non-streaming failure.
type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, hint string) {
	writeJSON(w, status, errorBody{Error: msg, Hint: hint})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("transport: write response", "err", err)
	}
}

// failure maps a failed outcome to client-safe text.
func failure(kind events.OutcomeKind) (msg, hint string) {
	switch kind {
	case events.OutcomeUpstreamUnavailable:
		return "The world archive is unavailable.", "Try again in a moment."
	default:
		return "The guide could not finish this turn.", "Ask again, perhaps more simply."
	}
}
