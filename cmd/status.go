package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/deepscifi/guide/internal/config"
	"github.com/deepscifi/guide/internal/providers"
	"github.com/deepscifi/guide/internal/shared/cmdutils"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show guide status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	fmt.Printf("%s guide Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	fmt.Printf("Config:    %s %s\n", cfgPath, cmdutils.Mark(statErr == nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, c, err := openContainer(ctx, os.Stderr)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}
	defer c.Close(context.Background())

	storeOK := false
	if f, err := c.Facade(); err == nil {
		storeOK = f.Ping(ctx) == nil
	}
	fmt.Printf("Store:     %s %s\n", cfg.Store.Driver, cmdutils.Mark(storeOK))
	if cfg.Cache.Enabled {
		fmt.Printf("Cache:     %s\n", cfg.Cache.Addr)
	}
	if cfg.Telemetry.Enabled {
		fmt.Printf("Telemetry: %s\n", cfg.Telemetry.Endpoint)
	}
	fmt.Printf("Model:     %s\n\n", cfg.Agent.Model)

	active := cfg.ProviderName()
	fmt.Println("Providers:")
	for _, spec := range providers.Specs {
		if spec.Name != active {
			fmt.Printf("  %-20s\n", spec.Label())
			continue
		}
		switch {
		case spec.IsLocal:
			fmt.Printf("  %-20s ✓ %s (active)\n", spec.Label(), cfg.Provider.APIBase)
		case cfg.Provider.APIKey != "":
			fmt.Printf("  %-20s ✓ (active)\n", spec.Label())
		default:
			fmt.Printf("  %-20s (active, no key: set %s)\n", spec.Label(), config.EnvAPIKey)
		}
	}
	return nil
}
