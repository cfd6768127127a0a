package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
	"github.com/meridian-labs/radar-cli/internal/logger"
)

// defaultClassifyPrompt asks the fast model for a bounded, low-creativity
// relevance judgement.
const defaultClassifyPrompt = `You are triaging open-source repositories for a research radar.
Rate how relevant this repository is on a scale from 0 to 1 and name the single
best matching category (e.g. "devtools", "ml", "infra", "security", "other").

Repository: %s by %s
Stars: %d
Description: %s

Respond with ONLY a JSON object: {"score": <0..1>, "category": "<category>"}`

// defaultSummarisePrompt asks the stronger model for a short digest summary.
const defaultSummarisePrompt = `Summarise what the following repository does and why it is notable,
in 2-3 plain sentences suitable for a daily digest. No markdown, no preamble.

Repository: %s by %s
Stars: %d
Description: %s`

// defaultTranslatePrompt produces the optional localised summary.
const defaultTranslatePrompt = `Translate the following summary into %s. Respond with only the translation.

%s`

// scorePayload is the structured result expected from the classification
// call.
type scorePayload struct {
	Score    float64 `json:"score"`
	Category string  `json:"category"`
}

// parseScoreResponse extracts the structured score from a completion,
// tolerating surrounding code fences but nothing less than valid JSON. A
// payload that does not parse is a malformed response, never a fabricated
// default score.
func parseScoreResponse(text string) (*scorePayload, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload scorePayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, domain.NewMalformedResponse(text)
	}
	if payload.Score < 0 || payload.Score > 1 {
		return nil, domain.NewMalformedResponse(text)
	}
	return &payload, nil
}

// runImport ingests the current items of every configured feed.
func (p *Pipeline) runImport(ctx context.Context, opts domain.RunOptions) (domain.StageOutcome, error) {
	outcome := domain.StageOutcome{Stage: domain.StageImport}
	start := time.Now()

	if p.deps.Feeds == nil {
		logger.Debug("import: no feed source configured")
		return outcome, nil
	}

	for _, feed := range p.deps.Feeds.Feeds() {
		var items []domain.Record
		err := p.executor.Execute(ctx, "feed "+feed, p.deps.Feeds.Classify, func(ctx context.Context) error {
			fetched, fErr := p.deps.Feeds.FetchFeed(ctx, feed)
			if fErr != nil {
				return fErr
			}
			items = fetched
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return outcome, ctx.Err()
			}
			outcome.Failed++
			logger.Warn("import: feed %s failed: %v", feed, err)
			continue
		}

		n, err := p.deps.Records.UpsertBatch(ctx, items)
		if err != nil {
			return outcome, fmt.Errorf("upsert feed %s: %w", feed, err)
		}
		outcome.Processed += n
		logger.Info("import: feed %s contributed %d records", feed, len(items))
	}

	outcome.Elapsed = time.Since(start)
	return outcome, nil
}

// contentStage backfills thin descriptions before scoring.
func (p *Pipeline) contentStage(opts domain.RunOptions) StageDefinition {
	return StageDefinition{
		Name: domain.StageContent,
		Filter: domain.SelectFilter{
			Sources:        opts.Sources,
			MinDescription: p.cfg.MinDescription,
		},
		BatchSize:     p.cfg.BatchSize,
		GroupSize:     p.cfg.GroupSize,
		Pacing:        p.cfg.Pacing,
		ProgressEvery: DefaultProgressEvery,
		OnFailure:     LeaveUntouched,
		Classify:      p.deps.Content.Classify,
		Transform: func(ctx context.Context, rec domain.Record) (*domain.StageFields, error) {
			content, err := p.deps.Content.FetchContent(ctx, rec.Key())
			if err != nil {
				return nil, err
			}
			if len(content) <= len(rec.Description) {
				return nil, nil // Nothing better available.
			}
			return &domain.StageFields{Description: &content}, nil
		},
	}
}

// scoreStage classifies relevance with the fast model.
func (p *Pipeline) scoreStage(opts domain.RunOptions) StageDefinition {
	return StageDefinition{
		Name:          domain.StageScore,
		Filter:        domain.SelectFilter{Sources: opts.Sources},
		BatchSize:     p.cfg.BatchSize,
		GroupSize:     p.cfg.GroupSize,
		Pacing:        p.cfg.Pacing,
		ProgressEvery: DefaultProgressEvery,
		OnFailure:     LeaveUntouched,
		Classify:      p.deps.Fast.Classify,
		Transform: func(ctx context.Context, rec domain.Record) (*domain.StageFields, error) {
			prompt := fmt.Sprintf(defaultClassifyPrompt, rec.Title, rec.Author, rec.Stars, rec.Description)
			text, err := p.deps.Fast.Complete(ctx, driven.CompletionRequest{
				Prompt:      prompt,
				MaxTokens:   p.cfg.FastBudget,
				Temperature: 0.1,
			})
			if err != nil {
				return nil, err
			}

			payload, err := parseScoreResponse(text)
			if err != nil {
				return nil, err
			}

			now := time.Now().UTC()
			return &domain.StageFields{
				RelevanceScore:  &payload.Score,
				MatchedCategory: &payload.Category,
				ScoredAt:        &now,
			}, nil
		},
	}
}

// enrichStage summarises with the stronger model. This is the one stage with
// a hard retry ceiling: each completed failed call counts an attempt, and a
// record past the ceiling is permanently retired from enrichment.
func (p *Pipeline) enrichStage(opts domain.RunOptions) StageDefinition {
	return StageDefinition{
		Name: domain.StageEnrich,
		Filter: domain.SelectFilter{
			Sources:        opts.Sources,
			ScoreThreshold: p.cfg.ScoreThreshold,
			MaxAttempts:    p.cfg.MaxEnrichAttempts,
		},
		BatchSize:     p.cfg.BatchSize,
		GroupSize:     p.cfg.GroupSize,
		Pacing:        p.cfg.Pacing,
		ProgressEvery: 50,
		OnFailure:     CountAttempt,
		Classify:      p.deps.Strong.Classify,
		Transform: func(ctx context.Context, rec domain.Record) (*domain.StageFields, error) {
			prompt := fmt.Sprintf(defaultSummarisePrompt, rec.Title, rec.Author, rec.Stars, rec.Description)
			summary, err := p.deps.Strong.Complete(ctx, driven.CompletionRequest{
				Prompt:      prompt,
				MaxTokens:   p.cfg.StrongBudget,
				Temperature: 0.7,
			})
			if err != nil {
				return nil, err
			}
			summary = strings.TrimSpace(summary)
			if summary == "" {
				return nil, domain.NewMalformedResponse(summary)
			}

			fields := &domain.StageFields{Summary: &summary}

			if p.cfg.Language != "" {
				localized, lErr := p.deps.Strong.Complete(ctx, driven.CompletionRequest{
					Prompt:      fmt.Sprintf(defaultTranslatePrompt, p.cfg.Language, summary),
					MaxTokens:   p.cfg.StrongBudget,
					Temperature: 0.3,
				})
				if lErr != nil {
					return nil, lErr
				}
				localized = strings.TrimSpace(localized)
				fields.SummaryLocalized = &localized
			}

			return fields, nil
		},
	}
}

// embedStage vectorises summaries into the vector index.
func (p *Pipeline) embedStage(opts domain.RunOptions) StageDefinition {
	return StageDefinition{
		Name:          domain.StageEmbed,
		Filter:        domain.SelectFilter{Sources: opts.Sources},
		BatchSize:     p.cfg.BatchSize,
		GroupSize:     p.cfg.GroupSize,
		Pacing:        p.cfg.Pacing,
		ProgressEvery: DefaultProgressEvery,
		OnFailure:     LeaveUntouched,
		Classify:      p.deps.Embedder.Classify,
		Transform: func(ctx context.Context, rec domain.Record) (*domain.StageFields, error) {
			vector, err := p.deps.Embedder.Embed(ctx, rec.Title+"\n"+rec.Summary)
			if err != nil {
				return nil, err
			}
			if err := p.deps.Vectors.Add(ctx, rec.Key(), vector); err != nil {
				return nil, fmt.Errorf("add vector: %w", err)
			}
			now := time.Now().UTC()
			return &domain.StageFields{EmbeddedAt: &now}, nil
		},
	}
}

// runExport writes every summarised record to the configured exporter.
func (p *Pipeline) runExport(ctx context.Context, opts domain.RunOptions) (domain.StageOutcome, error) {
	outcome := domain.StageOutcome{Stage: domain.StageExport}
	start := time.Now()

	if p.deps.Exporter == nil {
		logger.Debug("export: no exporter configured")
		return outcome, nil
	}

	records, err := p.deps.Records.SelectEligible(ctx, domain.StageExport,
		domain.SelectFilter{Sources: opts.Sources}, 0)
	if err != nil {
		return outcome, fmt.Errorf("select export records: %w", err)
	}

	n, err := p.deps.Exporter.Export(ctx, records)
	if err != nil {
		return outcome, fmt.Errorf("export: %w", err)
	}
	outcome.Processed = n
	outcome.Elapsed = time.Since(start)
	logger.Info("export: wrote %d records", n)
	return outcome, nil
}

// runNotify delivers per-channel digests and marks records sent. Delivery is
// at-least-once: the sent marker is written after a successful send.
func (p *Pipeline) runNotify(ctx context.Context, opts domain.RunOptions) (domain.StageOutcome, error) {
	outcome := domain.StageOutcome{Stage: domain.StageNotify}
	start := time.Now()

	for _, notifier := range p.deps.Notifiers {
		filter := domain.SelectFilter{
			Sources:      opts.Sources,
			Channel:      notifier.Name(),
			ChannelFloor: notifier.ScoreFloor(),
			Recency:      p.cfg.RecencyWindow,
		}
		records, err := p.deps.Records.SelectEligible(ctx, domain.StageNotify, filter, 0)
		if err != nil {
			return outcome, fmt.Errorf("select notify records: %w", err)
		}
		if len(records) == 0 {
			logger.Debug("notify: nothing new for %s", notifier.Name())
			continue
		}

		err = p.executor.Execute(ctx, "notify "+notifier.Name(), notifier.Classify, func(ctx context.Context) error {
			return notifier.Send(ctx, records)
		})
		if err != nil {
			if ctx.Err() != nil {
				return outcome, ctx.Err()
			}
			outcome.Failed += len(records)
			logger.Warn("notify: %s delivery failed: %v", notifier.Name(), err)
			continue
		}

		channel := notifier.Name()
		now := time.Now().UTC()
		for _, rec := range records {
			fields := domain.StageFields{SentChannel: &channel, SentAt: &now}
			if err := p.deps.Records.ApplyStageResult(ctx, rec.Key(), fields); err != nil {
				return outcome, fmt.Errorf("mark sent: %w", err)
			}
		}
		outcome.Processed += len(records)
		logger.Info("notify: sent %d records to %s", len(records), channel)
	}

	outcome.Elapsed = time.Since(start)
	return outcome, nil
}
