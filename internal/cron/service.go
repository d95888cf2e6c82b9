// Package cron runs the guide's periodic maintenance jobs on a robfig/cron
// scheduler. The only built-in job refreshes the cached platform stats.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

// RunFunc is the body of a job.
type RunFunc func(ctx context.Context) error

// Job is a named task on a standard five-field cron expression.
type Job struct {
	Name string
	Expr string
	TZ   string // IANA timezone; empty means local time
	Run  RunFunc
}

// JobState is the observable record of a job.
type JobState struct {
	Name       string
	Expr       string
	NextRunAt  time.Time
	LastRunAt  time.Time
	LastStatus string // "", "ok" or "error"
	LastError  string
	Runs       int
}

type entry struct {
	job   Job
	id    robfigcron.EntryID
	state JobState
}

// Service manages scheduled jobs.
type Service struct {
	parser robfigcron.Parser

	mu      sync.Mutex
	robfig  *robfigcron.Cron
	entries map[string]*entry
}

// NewService creates an empty Service.
func NewService() *Service {
	return &Service{
		parser: robfigcron.NewParser(
			robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow,
		),
		robfig:  robfigcron.New(),
		entries: make(map[string]*entry),
	}
}

// AddJob validates the expression and schedules the job. Adding a job with
// an existing name replaces it.
func (s *Service) AddJob(ctx context.Context, job Job) error {
	if job.Name == "" {
		return fmt.Errorf("cron: job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("cron: job %q has no run function", job.Name)
	}
	sched, err := s.parser.Parse(job.Expr)
	if err != nil {
		return fmt.Errorf("cron: invalid expression %q for job %q: %w", job.Expr, job.Name, err)
	}
	if job.TZ != "" {
		loc, err := time.LoadLocation(job.TZ)
		if err != nil {
			return fmt.Errorf("cron: invalid timezone %q for job %q: %w", job.TZ, job.Name, err)
		}
		sched = withLocation(sched, loc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(job.Name)

	e := &entry{job: job, state: JobState{Name: job.Name, Expr: job.Expr}}
	e.id = s.robfig.Schedule(sched, robfigcron.FuncJob(func() { s.execute(ctx, job.Name) }))
	e.state.NextRunAt = sched.Next(time.Now())
	s.entries[job.Name] = e

	slog.Info("cron: added job", "name", job.Name, "expr", job.Expr)
	return nil
}

// RemoveJob removes a job by name and returns true if found.
func (s *Service) RemoveJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	e, ok := s.entries[name]
	if !ok {
		return false
	}
	s.robfig.Remove(e.id)
	delete(s.entries, name)
	return true
}

// ListJobs returns every job's state ordered by next run time.
func (s *Service) ListJobs() []JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobState, 0, len(s.entries))
	for _, e := range s.entries {
		st := e.state
		if next := s.robfig.Entry(e.id).Next; !next.IsZero() {
			st.NextRunAt = next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].NextRunAt.Equal(out[k].NextRunAt) {
			return out[i].Name < out[k].Name
		}
		return out[i].NextRunAt.Before(out[k].NextRunAt)
	})
	return out
}

// RunJob executes a job immediately, outside its schedule.
func (s *Service) RunJob(ctx context.Context, name string) bool {
	s.mu.Lock()
	_, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.execute(ctx, name)
	return true
}

// Start runs the scheduler until ctx is cancelled, then waits for running
// jobs to finish.
func (s *Service) Start(ctx context.Context) error {
	s.robfig.Start()
	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	slog.Info("cron: started", "jobs", n)

	<-ctx.Done()

	<-s.robfig.Stop().Done()
	slog.Info("cron: stopped")
	return ctx.Err()
}

func (s *Service) execute(ctx context.Context, name string) {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	run := e.job.Run
	s.mu.Unlock()

	start := time.Now()
	slog.Debug("cron: executing job", "name", name)
	err := run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	// The job may have been removed or replaced while it ran.
	if cur, ok := s.entries[name]; !ok || cur != e {
		return
	}
	e.state.LastRunAt = start
	e.state.Runs++
	if err != nil {
		e.state.LastStatus = "error"
		e.state.LastError = err.Error()
		slog.Error("cron: job failed", "name", name, "err", err)
		return
	}
	e.state.LastStatus = "ok"
	e.state.LastError = ""
}

// locSchedule wraps a Schedule to always use a specific location.
type locSchedule struct {
	inner robfigcron.Schedule
	loc   *time.Location
}

func (l locSchedule) Next(t time.Time) time.Time {
	return l.inner.Next(t.In(l.loc))
}

func withLocation(s robfigcron.Schedule, loc *time.Location) robfigcron.Schedule {
	return locSchedule{inner: s, loc: loc}
}
