// Package scheduler triggers ingestion runs on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"alerts_ingestor/internal/pipeline"
)

// Runner performs one ingestion run.
type Runner interface {
	Run(ctx context.Context) (pipeline.Summary, error)
}

// Scheduler runs a Runner on startup and then on every tick.
type Scheduler struct {
	runner Runner
	log    *slog.Logger
	tick   time.Duration
}

// New creates a Scheduler that fires every interval.
func New(runner Runner, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		log:    log.With("component", "scheduler"),
		tick:   interval,
	}
}

// SetTickInterval overrides the interval passed to New.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled. Runs never
// overlap; a tick that fires during a long run is coalesced by the ticker.
func (s *Scheduler) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	sum, err := s.runner.Run(ctx)
	if err != nil {
		// The next tick retries the whole run.
		s.log.Error("ingestion run", "error", err, "next_run_in", s.tick)
		return
	}
	s.log.Debug("ingestion run finished", "new", sum.New, "skipped", sum.Skipped, "took", sum.Duration())
}
