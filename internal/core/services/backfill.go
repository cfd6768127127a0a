package services

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
	"github.com/meridian-labs/radar-cli/internal/logger"
)

// BackfillConfig configures the historical backfill.
type BackfillConfig struct {
	// LookbackDays is how far back the backfill reaches.
	LookbackDays int

	// ChunkDays is the window width. Chunking exists because the bulk
	// source caps results per distinct query regardless of pagination;
	// fixed-width windows keep per-window counts under the cap for the
	// expected density of matches.
	ChunkDays int

	// Partitions are the parallel dimensions of the backfill (language
	// filters), each with an independent result cap.
	Partitions []string

	// Pacing is the sleep between window fetches.
	Pacing time.Duration
}

// Backfill fetches historical windows from the bulk source, skipping windows
// already recorded as complete. A window is only checkpointed after all its
// pages were written to the record store, so an interrupted window is
// refetched in full on the next run while earlier windows are not.
type Backfill struct {
	source      driven.BulkSource
	store       driven.RecordStore
	checkpoints driven.CheckpointStore
	executor    *Executor
	cfg         BackfillConfig

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBackfill creates the backfill service.
func NewBackfill(
	source driven.BulkSource,
	store driven.RecordStore,
	checkpoints driven.CheckpointStore,
	executor *Executor,
	cfg BackfillConfig,
) *Backfill {
	if len(cfg.Partitions) == 0 {
		cfg.Partitions = []string{""}
	}
	return &Backfill{
		source:      source,
		store:       store,
		checkpoints: checkpoints,
		executor:    executor,
		cfg:         cfg,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Run walks every window of every partition, most recent first. Failed
// windows are skipped without a checkpoint so they stay refetchable;
// storage and checkpoint errors are fatal.
func (b *Backfill) Run(ctx context.Context, lookbackDays int) (domain.StageOutcome, error) {
	outcome := domain.StageOutcome{Stage: domain.StageBackfill}
	start := time.Now()

	if lookbackDays == 0 {
		lookbackDays = b.cfg.LookbackDays
	}
	windows := domain.GenerateWindows(b.now(), lookbackDays, b.cfg.ChunkDays)
	logger.Info("backfill: %d windows x %d partitions, %d day lookback",
		len(windows), len(b.cfg.Partitions), lookbackDays)

	for _, partition := range b.cfg.Partitions {
		for i, window := range windows {
			done, err := b.checkpoints.IsComplete(ctx, window, partition)
			if err != nil {
				return outcome, fmt.Errorf("check checkpoint: %w", err)
			}
			if done {
				logger.Debug("backfill: window %s [%s] already complete, skipping", window, partition)
				continue
			}

			count, err := b.fetchWindow(ctx, window, partition)
			if err != nil {
				if ctx.Err() != nil {
					return outcome, ctx.Err()
				}
				outcome.Failed++
				logger.Warn("backfill: window %s [%s] failed, will refetch next run: %v", window, partition, err)
				continue
			}
			outcome.Processed += count

			if i > 0 && i%10 == 0 {
				elapsed := time.Since(start)
				logger.Info("backfill [%s]: %d/%d windows, %d records (%s elapsed)",
					partition, i+1, len(windows), outcome.Processed, elapsed.Round(time.Second))
			}

			if b.cfg.Pacing > 0 {
				if err := b.sleep(ctx, b.cfg.Pacing); err != nil {
					return outcome, err
				}
			}
		}
	}

	outcome.Elapsed = time.Since(start)
	return outcome, nil
}

// fetchWindow fetches one window through the retry executor, writes its
// records and appends the checkpoint. The checkpoint write comes last: a
// crash in between leaves the window incomplete and refetchable.
func (b *Backfill) fetchWindow(ctx context.Context, window domain.Window, partition string) (int, error) {
	label := fmt.Sprintf("window %s [%s]", window, partition)

	var result *driven.SearchResult
	err := b.executor.Execute(ctx, label, b.source.Classify, func(ctx context.Context) error {
		r, sErr := b.source.SearchWindow(ctx, window, partition)
		if sErr != nil {
			return sErr
		}
		result = r
		return nil
	})
	if err != nil {
		return 0, err
	}

	if _, err := b.store.UpsertBatch(ctx, result.Records); err != nil {
		return 0, fmt.Errorf("upsert window records: %w", err)
	}

	// Accept partial results at the cap, but never silently: the items
	// beyond the cap are unreachable for this window width.
	if result.TotalCount >= domain.ResultCap {
		logger.Warn("backfill: window %s [%s] hit the %d result cap (%d reported), results may be truncated",
			window, partition, domain.ResultCap, result.TotalCount)
	}

	if err := b.checkpoints.MarkComplete(ctx, window, partition, len(result.Records)); err != nil {
		return 0, fmt.Errorf("mark checkpoint: %w", err)
	}

	logger.Debug("backfill: window %s [%s] complete, %d records", window, partition, len(result.Records))
	return len(result.Records), nil
}
