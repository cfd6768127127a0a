package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
	"github.com/meridian-labs/radar-cli/internal/logger"
)

// Default batching parameters.
const (
	// DefaultBatchSize is the number of eligible records pulled per batch.
	DefaultBatchSize = 200

	// DefaultGroupSize bounds in-flight calls per concurrency group,
	// respecting downstream provider limits while parallelising
	// network-bound latency.
	DefaultGroupSize = 10

	// DefaultProgressEvery is the progress reporting interval in records.
	DefaultProgressEvery = 100
)

// FailurePolicy decides what a stage writes back for a failed record.
type FailurePolicy int

const (
	// LeaveUntouched writes nothing: still-null fields keep the record
	// eligible, so it retries on the next run.
	LeaveUntouched FailurePolicy = iota

	// CountAttempt increments the attempt counter. Used by the one stage
	// with a hard retry ceiling.
	CountAttempt
)

// StageDefinition describes one per-record pipeline stage: its eligibility
// filter, its transform and its write-back contract.
type StageDefinition struct {
	Name          domain.StageName
	Filter        domain.SelectFilter
	BatchSize     int
	GroupSize     int
	Pacing        time.Duration
	ProgressEvery int
	OnFailure     FailurePolicy

	// Classify maps a transform error to its retry class.
	Classify domain.Classifier

	// Transform performs the stage's remote call for one record and returns
	// the fields to write back.
	Transform func(ctx context.Context, rec domain.Record) (*domain.StageFields, error)
}

// StageRunner is the generic idempotent batch processor: it pulls eligible
// records, applies the transform through the retry executor in bounded
// concurrency groups, and writes results back to the record store.
type StageRunner struct {
	store    driven.RecordStore
	executor *Executor
	failures driven.FailureLog
	runID    string

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewStageRunner creates a stage runner scoped to one pipeline run.
func NewStageRunner(store driven.RecordStore, executor *Executor, failures driven.FailureLog, runID string) *StageRunner {
	return &StageRunner{
		store:    store,
		executor: executor,
		failures: failures,
		runID:    runID,
		sleep:    sleepContext,
	}
}

// Run processes every currently eligible record for the stage. Per-record
// failures are absorbed into the outcome; only storage-layer errors or
// context cancellation abort the run.
func (r *StageRunner) Run(ctx context.Context, def StageDefinition) (domain.StageOutcome, error) {
	if def.BatchSize == 0 {
		def.BatchSize = DefaultBatchSize
	}
	if def.GroupSize == 0 {
		def.GroupSize = DefaultGroupSize
	}
	if def.ProgressEvery == 0 {
		def.ProgressEvery = DefaultProgressEvery
	}

	outcome := domain.StageOutcome{Stage: def.Name}
	start := time.Now()

	var processed, failed atomic.Int64

	// Records that failed this run stay eligible under LeaveUntouched, so
	// re-selecting them would loop forever. Track what this run already
	// attempted and stop once a batch brings nothing new.
	attempted := make(map[domain.RecordKey]bool)

	for {
		// Failed records keep their priority rank and would fill a fixed
		// pull, starving lower-priority eligible records. Widen the limit
		// by what was already attempted so one run visits every record.
		batch, err := r.store.SelectEligible(ctx, def.Name, def.Filter, def.BatchSize+len(attempted))
		if err != nil {
			return outcome, err
		}

		fresh := batch[:0:0]
		for _, rec := range batch {
			if !attempted[rec.Key()] {
				fresh = append(fresh, rec)
			}
		}
		if len(fresh) == 0 {
			break
		}

		for begin := 0; begin < len(fresh); begin += def.GroupSize {
			end := begin + def.GroupSize
			if end > len(fresh) {
				end = len(fresh)
			}
			group := fresh[begin:end]
			for _, rec := range group {
				attempted[rec.Key()] = true
			}

			g, gctx := errgroup.WithContext(ctx)
			for _, rec := range group {
				rec := rec
				g.Go(func() error {
					return r.processRecord(gctx, def, rec, &processed, &failed)
				})
			}
			if err := g.Wait(); err != nil {
				outcome.Processed = int(processed.Load())
				outcome.Failed = int(failed.Load())
				outcome.Elapsed = time.Since(start)
				return outcome, err
			}

			if n := processed.Load(); n > 0 && n%int64(def.ProgressEvery) == 0 {
				elapsed := time.Since(start)
				rate := float64(n) / elapsed.Seconds()
				logger.Info("%s: %d processed, %d failed (%.1f/s, %s elapsed)",
					def.Name, n, failed.Load(), rate, elapsed.Round(time.Second))
			}

			// Proactive pacing keeps the run under provider rate limits
			// even when every call succeeds.
			if def.Pacing > 0 && end < len(fresh) {
				if err := r.sleep(ctx, def.Pacing); err != nil {
					return outcome, err
				}
			}
		}

		if def.Pacing > 0 {
			if err := r.sleep(ctx, def.Pacing); err != nil {
				return outcome, err
			}
		}
	}

	outcome.Processed = int(processed.Load())
	outcome.Failed = int(failed.Load())
	outcome.Elapsed = time.Since(start)
	return outcome, nil
}

// processRecord applies the transform to one record and writes the result.
// Transform failures are absorbed; storage failures propagate.
func (r *StageRunner) processRecord(
	ctx context.Context,
	def StageDefinition,
	rec domain.Record,
	processed, failed *atomic.Int64,
) error {
	var fields *domain.StageFields
	err := r.executor.Execute(ctx, rec.Key().String(), def.Classify, func(ctx context.Context) error {
		result, tErr := def.Transform(ctx, rec)
		if tErr != nil {
			return tErr
		}
		fields = result
		return nil
	})

	if err != nil {
		// An interrupted call is not a completed attempt.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		failed.Add(1)
		r.appendFailure(def.Name, rec, err)

		if def.OnFailure == CountAttempt {
			if mErr := r.store.MarkAttemptFailed(ctx, rec.Key()); mErr != nil {
				return mErr
			}
		}
		return nil
	}

	if fields != nil {
		if aErr := r.store.ApplyStageResult(ctx, rec.Key(), *fields); aErr != nil {
			return aErr
		}
	}
	processed.Add(1)
	return nil
}

// appendFailure writes a diagnostic entry. The failure log is best-effort
// and never read back by the pipeline.
func (r *StageRunner) appendFailure(stage domain.StageName, rec domain.Record, err error) {
	if r.failures == nil {
		return
	}
	r.failures.Append(domain.FailureEntry{
		RunID:       r.runID,
		Stage:       stage,
		ExternalID:  rec.ExternalID,
		Source:      rec.Source,
		Error:       err.Error(),
		RawResponse: domain.RawResponse(err),
		At:          time.Now().UTC(),
	})
}
