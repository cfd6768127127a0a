package services

import (
	"context"
	"time"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driving"
	"github.com/meridian-labs/radar-cli/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// DefaultInterval is the daemon re-invocation interval.
const DefaultInterval = 6 * time.Hour

// Scheduler is a thin timer that re-invokes the same resumable pipeline run
// on a fixed interval. It holds no state of its own: resumability lives in
// the record store and checkpoints, so a failed run simply continues on the
// next tick.
type Scheduler struct {
	runner   driving.PipelineRunner
	interval time.Duration
	opts     domain.RunOptions
}

// NewScheduler creates a scheduler around the pipeline runner.
func NewScheduler(runner driving.PipelineRunner, interval time.Duration, opts domain.RunOptions) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{runner: runner, interval: interval, opts: opts}
}

// Start runs the pipeline immediately, then every interval until the
// context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes one pipeline run, logging instead of propagating errors
// so a bad run never stops the daemon.
func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	summary, err := s.runner.Run(ctx, s.opts)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("scheduled run failed after %s: %v", time.Since(start).Round(time.Second), err)
		return
	}
	logger.Info("scheduled run %s: %d processed, %d failed, next in %s",
		summary.RunID, summary.TotalProcessed(), summary.TotalFailed(), s.interval)
}
