// Package mcp exposes the guide's tool catalog over the Model Context
// Protocol, so any MCP client can explore the worlds with the same nine
// tools the guide uses. The server keeps one view state per process.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/deepscifi/guide/internal/schema"
	"github.com/deepscifi/guide/internal/session"
	"github.com/deepscifi/guide/internal/tools"
)

const (
	// StateURI is the resource holding the current view state.
	StateURI = "guide://state"

	resourceMIMEJSON = "application/json"
)

// Server wires the tool dispatcher into an MCP server.
type Server struct {
	dispatcher *tools.Dispatcher
	mcpServer  *mcpserver.MCPServer

	// mu serialises calls; each one reads and replaces state.
	mu    sync.Mutex
	state session.State
}

// NewServer registers every catalog tool and the state resource.
func NewServer(name, version string, d *tools.Dispatcher) *Server {
	s := &Server{
		dispatcher: d,
		state:      session.New(),
		mcpServer: mcpserver.NewMCPServer(
			name,
			version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	for _, n := range d.Registry().Names() {
		t, _ := d.Registry().Get(string(n))
		s.mcpServer.AddTool(mcp.NewToolWithRawSchema(string(n), t.Description(), t.Parameters()), s.handleTool(n))
	}
	s.mcpServer.AddResource(
		mcp.NewResource(
			StateURI,
			"Current view",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("The panels, focus and breadcrumbs the last tool call left on screen."),
		),
		s.handleStateResource,
	)
	return s
}

// Serve speaks MCP over the given streams until ctx is cancelled or in
// reaches EOF.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	slog.Info("mcp: serving stdio", "tools", len(s.dispatcher.Registry().Names()))
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, in, out)
}

// State returns a copy of the current view state.
func (s *Server) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Server) handleTool(name tools.ToolName) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		ctx = tools.WithTurn(ctx, tools.TurnContext{RunID: uuid.NewString(), ConversationID: "mcp"})

		s.mu.Lock()
		defer s.mu.Unlock()

		res, err := s.dispatcher.Dispatch(ctx, &s.state, schema.ToolCall{
			ID:        uuid.NewString(),
			Name:      string(name),
			Arguments: args,
		})
		if err != nil {
			var abort *tools.AbortError
			if errors.As(err, &abort) {
				return mcp.NewToolResultError("The world archive is unavailable. Try again in a moment."), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("tool %s cancelled: %v", name, err)), nil
		}

		snapshot, err := json.Marshal(s.state)
		if err != nil {
			return nil, fmt.Errorf("encode state: %w", err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(res.EngineText),
				mcp.NewTextContent(string(snapshot)),
			},
		}, nil
	}
}

func (s *Server) handleStateResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	text, err := json.Marshal(s.State())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}
