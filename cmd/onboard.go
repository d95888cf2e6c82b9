package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deepscifi/guide/internal/config"
)

var (
	onboardForce bool
	onboardYAML  bool
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Write a starter config and create the data directory",
	RunE:  runOnboard,
}

func init() {
	onboardCmd.Flags().BoolVarP(&onboardForce, "force", "f", false, "Rewrite an existing config, keeping its values")
	onboardCmd.Flags().BoolVar(&onboardYAML, "yaml", false, "Write config.yaml instead of config.json")
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
		if onboardYAML {
			cfgPath = strings.TrimSuffix(cfgPath, filepath.Ext(cfgPath)) + ".yaml"
		}
	}

	cfg := config.DefaultConfig()
	switch _, err := os.Stat(cfgPath); {
	case err == nil && !onboardForce:
		fmt.Printf("Config already exists at %s (use --force to rewrite it)\n", cfgPath)
	case err == nil:
		existing, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := config.Save(existing, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config rewritten at %s\n", cfgPath)
	default:
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	// The default sqlite store lives in the data directory.
	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	fmt.Printf("✓ Data directory at %s\n", dataDir)

	fmt.Printf("\n%s guide is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. export %s=... (or set provider.apiKey in %s)\n", config.EnvAPIKey, cfgPath)
	fmt.Println("  2. guide migrate --seed")
	fmt.Println("  3. guide ask -m \"Show me the most popular worlds\"")
	fmt.Println("  4. guide serve")
	return nil
}
