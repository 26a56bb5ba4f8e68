// Package scheduler drives an optional recurring collect() invocation on a
// cron schedule, the same way the teacher's workflow package drives
// recurring workflow triggers, built on the same hardloop cron runner.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/worldline-go/hardloop"

	"github.com/sonecdev/sonec/internal/collector"
)

// cronRunner is satisfied by hardloop's unexported *cronJob type, returned
// by hardloop.NewCron, so the scheduler doesn't need to name it directly.
type cronRunner interface {
	Start(ctx context.Context) error
	Stop()
}

// Config describes the single recurring collect job the scheduler runs.
// A zero-value Cron means "no schedule configured" — New returns nil, nil
// in that case, and callers skip starting the scheduler.
type Config struct {
	Cron      string
	Provider  string
	Source    string
	Q         string
	PageLimit int
}

// Scheduler runs one collect() invocation per cron tick against a fixed
// (provider, source|q) target.
type Scheduler struct {
	collector *collector.Collector
	cfg       Config

	cron cronRunner
}

// New builds a Scheduler, or returns (nil, nil) when cfg.Cron is empty —
// the recurring loop is entirely optional per the runtime's Non-goals
// around horizontal scheduling.
func New(c *collector.Collector, cfg Config) (*Scheduler, error) {
	if cfg.Cron == "" {
		return nil, nil
	}
	if cfg.Provider == "" {
		return nil, fmt.Errorf("scheduler: provider is required when cron is set")
	}
	if (cfg.Source == "") == (cfg.Q == "") {
		return nil, fmt.Errorf("scheduler: exactly one of source or q must be set")
	}
	return &Scheduler{collector: c, cfg: cfg}, nil
}

// Start runs the cron job until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	cronJob, err := hardloop.NewCron(hardloop.Cron{
		Name:  "sonec-collect",
		Specs: []string{s.cfg.Cron},
		Func:  s.tick,
	})
	if err != nil {
		return fmt.Errorf("scheduler: build cron runner: %w", err)
	}

	s.cron = cronJob
	if err := cronJob.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: start cron runner: %w", err)
	}
	return nil
}

// Stop halts the cron runner. Safe to call even if Start was never called.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	report, err := s.collector.Collect(ctx, collector.Params{
		Provider:  s.cfg.Provider,
		Source:    s.cfg.Source,
		Q:         s.cfg.Q,
		PageLimit: s.cfg.PageLimit,
	})
	if err != nil {
		slog.ErrorContext(ctx, "scheduled collect failed", "provider", s.cfg.Provider, "error", err)
		// A failed tick must not stop the cron loop; the next tick retries.
		return nil
	}

	slog.InfoContext(ctx, "scheduled collect finished",
		"provider", report.Provider,
		"source", report.Source,
		"inserted", report.Inserted,
		"conflicts", report.Conflicts,
	)
	return nil
}
