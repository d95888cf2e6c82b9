package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the guide tools over MCP on stdio",
	Long: "Serve the nine guide tools and the guide://state resource to an MCP client.\n" +
		"Protocol traffic uses stdin/stdout; logs go to stderr.",
	RunE: runMCP,
}

func runMCP(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, c, err := openContainer(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	srv, err := c.MCPServer()
	if err != nil {
		return err
	}
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
