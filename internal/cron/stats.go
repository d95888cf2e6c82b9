package cron

import (
	"context"
	"time"
)

// StatsRefreshJob is the name of the stats cache refresh job.
const StatsRefreshJob = "stats-refresh"

// StatsRefresher reloads the cached platform stats from the store.
type StatsRefresher interface {
	RefreshStats(ctx context.Context) error
}

// NewStatsRefreshJob builds the job that keeps the stats cache warm. Each
// run is bounded by timeout.
func NewStatsRefreshJob(expr string, r StatsRefresher, timeout time.Duration) Job {
	return Job{
		Name: StatsRefreshJob,
		Expr: expr,
		Run: func(ctx context.Context) error {
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return r.RefreshStats(ctx)
		},
	}
}
