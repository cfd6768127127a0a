package services

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/logger"
)

// Default retry configuration.
const (
	// DefaultMaxAttempts is the per-call retry ceiling.
	DefaultMaxAttempts = 5

	// DefaultBaseDelay is the transient backoff unit. The wait grows
	// linearly with the attempt number: exponential backoff would
	// over-throttle useful throughput at the call volumes the pipeline
	// makes.
	DefaultBaseDelay = 2 * time.Second

	// DefaultCooldown is the rate-limit wait used when the provider gives
	// no reset hint. Rate limits are systemic rather than per-call noise,
	// so the cooldown is substantially longer than the transient backoff.
	DefaultCooldown = 45 * time.Second
)

// ExecutorConfig configures the retry executor.
type ExecutorConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Cooldown    time.Duration
}

// Executor wraps remote calls with bounded retries. Errors are classified by
// the caller-supplied classifier as transient, rate-limited or fatal.
type Executor struct {
	maxAttempts int
	baseDelay   time.Duration
	cooldown    time.Duration

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor, filling zero config fields with defaults.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Executor{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		cooldown:    cfg.Cooldown,
		sleep:       sleepContext,
	}
}

// Execute runs op, retrying according to the classification of each failure.
// The label identifies the originating record or window in retry logs. On
// exhausting the ceiling the last error is returned; the caller decides
// whether to leave the record untouched or count an attempt.
func (e *Executor) Execute(ctx context.Context, label string, classify domain.Classifier, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		kind := classify(lastErr)
		if kind == domain.KindFatal {
			return lastErr
		}
		if attempt == e.maxAttempts {
			break
		}

		wait := e.baseDelay * time.Duration(attempt)
		if kind == domain.KindRateLimited {
			wait = e.cooldown
			if reset := domain.RetryAfter(lastErr); !reset.IsZero() {
				if until := time.Until(reset); until > 0 {
					wait = until
				}
			}
			logger.Warn("%s: rate limited, cooling down %s (attempt %d/%d): %v",
				label, wait.Round(time.Second), attempt, e.maxAttempts, lastErr)
		} else {
			logger.Debug("%s: transient error, retrying in %s (attempt %d/%d): %v",
				label, wait, attempt, e.maxAttempts, lastErr)
		}

		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}

	logger.Warn("%s: giving up after %d attempts: %v", label, e.maxAttempts, lastErr)
	return fmt.Errorf("after %d attempts: %w", e.maxAttempts, lastErr)
}

// sleepContext waits for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
