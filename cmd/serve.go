package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voice endpoints (SSE and WebSocket)",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address (overrides server.addr)")
}

func runServe(_ *cobra.Command, _ []string) error {
	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, c, err := openContainer(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Close(closeCtx); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	srv, err := c.Transport()
	if err != nil {
		return err
	}
	cronSvc, err := c.Cron()
	if err != nil {
		return err
	}
	hb, err := c.Heartbeat()
	if err != nil {
		return err
	}

	fmt.Printf("%s Starting guide on %s (model %s)...\n", logo, cfg.Server.Addr, cfg.Agent.Model)
	if jobs := cronSvc.ListJobs(); len(jobs) > 0 {
		fmt.Printf("✓ Scheduled jobs: %d\n", len(jobs))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return cronSvc.Start(gctx) })
	g.Go(func() error { return hb.Start(gctx) })

	fmt.Printf("%s Guide running. Press Ctrl+C to stop.\n", logo)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "serve error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
