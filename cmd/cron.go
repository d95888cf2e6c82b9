package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/deepscifi/guide/internal/cron"
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Inspect scheduled jobs",
}

func init() {
	cronCmd.AddCommand(cronListCmd)
	cronCmd.AddCommand(cronRunCmd)
}

// ---- list ------------------------------------------------------------------

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE: func(_ *cobra.Command, _ []string) error {
		return withCron(func(_ context.Context, svc *cron.Service) error {
			jobs := svc.ListJobs()
			if len(jobs) == 0 {
				fmt.Println("No scheduled jobs.")
				return nil
			}
			fmt.Printf("%-20s %-20s %-20s\n", "Name", "Schedule", "Next Run")
			fmt.Println(strings.Repeat("-", 62))
			for _, j := range jobs {
				next := ""
				if !j.NextRunAt.IsZero() {
					next = j.NextRunAt.Format("2006-01-02 15:04")
				}
				fmt.Printf("%-20s %-20s %-20s\n", j.Name, j.Expr, next)
			}
			return nil
		})
	},
}

// ---- run -------------------------------------------------------------------

var cronRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a job now",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return withCron(func(ctx context.Context, svc *cron.Service) error {
			if !svc.RunJob(ctx, args[0]) {
				return fmt.Errorf("no job named %q", args[0])
			}
			for _, j := range svc.ListJobs() {
				if j.Name != args[0] {
					continue
				}
				if j.LastError != "" {
					return fmt.Errorf("%s: %s", j.Name, j.LastError)
				}
				fmt.Printf("✓ %s: %s\n", j.Name, j.LastStatus)
			}
			return nil
		})
	},
}

func withCron(fn func(context.Context, *cron.Service) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, c, err := openContainer(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	svc, err := c.Cron()
	if err != nil {
		return err
	}
	return fn(ctx, svc)
}
