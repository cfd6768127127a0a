package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driving"
	"github.com/meridian-labs/radar-cli/internal/logger"
)

// Ensure Pipeline implements the interface.
var _ driving.PipelineRunner = (*Pipeline)(nil)

// PipelineConfig holds the run-independent tuning of the pipeline.
type PipelineConfig struct {
	// ScoreThreshold is the inclusive relevance floor for enrichment.
	ScoreThreshold float64

	// MaxEnrichAttempts is the enrichment attempt ceiling. Records past it
	// are permanently retired from enrichment; this is a cost-control
	// tradeoff.
	MaxEnrichAttempts int

	// BatchSize and GroupSize bound how records are pulled and how many
	// calls run concurrently.
	BatchSize int
	GroupSize int

	// Pacing is the proactive sleep between concurrency groups.
	Pacing time.Duration

	// RecencyWindow bounds how old a record may be and still be notified.
	RecencyWindow time.Duration

	// MinDescription triggers the content backfill stage for records with
	// shorter descriptions.
	MinDescription int

	// Language, when set, produces a localised summary alongside the
	// primary one.
	Language string

	// FastBudget and StrongBudget are the output token budgets of the two
	// completion calls. They are configuration, not a contract.
	FastBudget   int
	StrongBudget int

	// Backfill configures the historical window fetch.
	Backfill BackfillConfig
}

// PipelineDeps wires all driven adapters into the orchestrator.
type PipelineDeps struct {
	Records     driven.RecordStore
	Checkpoints driven.CheckpointStore
	Bulk        driven.BulkSource
	Feeds       driven.FeedSource
	Content     driven.ContentFetcher
	Fast        driven.Completer
	Strong      driven.Completer
	Embedder    driven.EmbeddingService
	Vectors     driven.VectorIndex
	Notifiers   []driven.Notifier
	Exporter    driven.Exporter
	Failures    driven.FailureLog
}

// Pipeline sequences the stages in dependency order. Stage functions that
// complete are successful at this level even with internal per-record
// failures; only storage or configuration failures abort a run.
type Pipeline struct {
	cfg      PipelineConfig
	deps     PipelineDeps
	executor *Executor
}

// NewPipeline creates the orchestrator. Default tunings are applied for
// zero config fields.
func NewPipeline(cfg PipelineConfig, deps PipelineDeps, executor *Executor) *Pipeline {
	if cfg.MaxEnrichAttempts == 0 {
		cfg.MaxEnrichAttempts = 3
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.GroupSize == 0 {
		cfg.GroupSize = DefaultGroupSize
	}
	if cfg.RecencyWindow == 0 {
		cfg.RecencyWindow = 72 * time.Hour
	}
	return &Pipeline{cfg: cfg, deps: deps, executor: executor}
}

// Run executes the requested stages in order and aggregates the summary.
func (p *Pipeline) Run(ctx context.Context, opts domain.RunOptions) (*domain.RunSummary, error) {
	if opts.Only != "" && !domain.ValidStage(opts.Only) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownStage, opts.Only)
	}
	for _, s := range opts.Skip {
		if !domain.ValidStage(s) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownStage, s)
		}
	}

	summary := &domain.RunSummary{
		RunID:    uuid.NewString(),
		Started:  time.Now(),
		Outcomes: make(map[domain.StageName]domain.StageOutcome),
	}
	logger.Info("run %s starting", summary.RunID)

	for _, name := range domain.StageOrder {
		if opts.Skipped(name) {
			logger.Debug("stage %s skipped", name)
			continue
		}

		logger.Section(string(name))
		outcome, err := p.runStage(ctx, name, opts, summary.RunID)
		summary.Outcomes[name] = outcome
		if err != nil {
			summary.Finished = time.Now()
			return summary, fmt.Errorf("stage %s: %w", name, err)
		}
		logger.Info("stage %s done: %d processed, %d failed in %s",
			name, outcome.Processed, outcome.Failed, outcome.Elapsed.Round(time.Millisecond))
	}

	summary.Finished = time.Now()
	logger.Info("run %s finished: %d processed, %d failed",
		summary.RunID, summary.TotalProcessed(), summary.TotalFailed())
	return summary, nil
}

// runStage dispatches one stage by name.
func (p *Pipeline) runStage(ctx context.Context, name domain.StageName, opts domain.RunOptions, runID string) (domain.StageOutcome, error) {
	runner := NewStageRunner(p.deps.Records, p.executor, p.deps.Failures, runID)

	switch name {
	case domain.StageImport:
		return p.runImport(ctx, opts)
	case domain.StageBackfill:
		if p.deps.Bulk == nil {
			logger.Debug("backfill: no bulk source configured")
			return domain.StageOutcome{Stage: name}, nil
		}
		backfill := NewBackfill(p.deps.Bulk, p.deps.Records, p.deps.Checkpoints, p.executor, p.cfg.Backfill)
		return backfill.Run(ctx, opts.LookbackDays)
	case domain.StageContent:
		if p.deps.Content == nil {
			logger.Debug("content: no content fetcher configured")
			return domain.StageOutcome{Stage: name}, nil
		}
		return runner.Run(ctx, p.contentStage(opts))
	case domain.StageScore:
		if p.deps.Fast == nil {
			logger.Debug("score: no completion provider configured")
			return domain.StageOutcome{Stage: name}, nil
		}
		return runner.Run(ctx, p.scoreStage(opts))
	case domain.StageEnrich:
		if p.deps.Strong == nil {
			logger.Debug("enrich: no completion provider configured")
			return domain.StageOutcome{Stage: name}, nil
		}
		return runner.Run(ctx, p.enrichStage(opts))
	case domain.StageEmbed:
		if p.deps.Embedder == nil || p.deps.Vectors == nil {
			logger.Debug("embed: embedding service or vector index not configured")
			return domain.StageOutcome{Stage: name}, nil
		}
		return runner.Run(ctx, p.embedStage(opts))
	case domain.StageExport:
		return p.runExport(ctx, opts)
	case domain.StageNotify:
		return p.runNotify(ctx, opts)
	default:
		return domain.StageOutcome{}, fmt.Errorf("%w: %s", domain.ErrUnknownStage, name)
	}
}
