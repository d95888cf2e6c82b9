// Package cmd implements the guide CLI using cobra.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deepscifi/guide/internal/config"
	"github.com/deepscifi/guide/internal/dependency"
)

const logo = "🔭"

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "guide",
	Short: logo + " guide: narrator for the Deep Sci-Fi explorer",
	Long:  logo + " guide: a voice/chat narrator that drives the Deep Sci-Fi exploration UI",
}

var configPath string

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = dependency.Version
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default "+config.ConfigPath()+")")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cronCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openContainer loads the config, installs the logger and builds the
// service container. The caller closes the container.
func openContainer(ctx context.Context, logs io.Writer) (*config.Config, *dependency.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	setupLogging(cfg.Logging, logs)
	c, err := dependency.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, c, nil
}

// setupLogging installs the default slog handler.
func setupLogging(lc config.LoggingConfig, w io.Writer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(lc.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}
