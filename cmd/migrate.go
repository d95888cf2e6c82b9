package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deepscifi/guide/internal/store"
)

var migrateSeed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the store schema",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSeed, "seed", false, "Load the demo corpus after migrating")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, c, err := openContainer(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	db, err := c.Database()
	if err != nil {
		return err
	}
	if err := store.Migrate(ctx, db.DB, db.Dialect); err != nil {
		return err
	}
	fmt.Printf("✓ Schema ready (%s)\n", cfg.Store.Driver)

	if !migrateSeed {
		return nil
	}
	corpus := store.DemoCorpus()
	if err := store.Seed(ctx, db.DB, db.Dialect, corpus); err != nil {
		return err
	}
	fmt.Printf("✓ Seeded %d worlds, %d dwellers, %d stories\n",
		len(corpus.Worlds), len(corpus.Dwellers), len(corpus.Stories))
	return nil
}
