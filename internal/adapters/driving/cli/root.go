// Package cli provides the cobra command surface of the radar binary.
// Commands hold no domain logic; they load configuration, wire adapters
// into the core services and render results.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian-labs/radar-cli/internal/adapters/driven/ai"
	configfile "github.com/meridian-labs/radar-cli/internal/adapters/driven/config/file"
	"github.com/meridian-labs/radar-cli/internal/adapters/driven/export/csvfile"
	"github.com/meridian-labs/radar-cli/internal/adapters/driven/faillog"
	"github.com/meridian-labs/radar-cli/internal/adapters/driven/feed/hackernews"
	"github.com/meridian-labs/radar-cli/internal/adapters/driven/notify/slack"
	"github.com/meridian-labs/radar-cli/internal/adapters/driven/notify/telegram"
	"github.com/meridian-labs/radar-cli/internal/adapters/driven/search/github"
	"github.com/meridian-labs/radar-cli/internal/adapters/driven/storage/sqlite"
	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driving"
	"github.com/meridian-labs/radar-cli/internal/core/services"
	"github.com/meridian-labs/radar-cli/internal/logger"
)

var version = "dev"

var (
	cfgPath string
	verbose bool
)

// Wired services. Built lazily by ensureApp; tests inject fakes directly.
var (
	pipeline    driving.PipelineRunner
	records     driven.RecordStore
	checkpoints driven.CheckpointStore
	vectors     driven.VectorIndex
	embedder    driven.EmbeddingService

	store *sqlite.Store
)

var rootCmd = &cobra.Command{
	Use:   "radar",
	Short: "Track notable open-source activity",
	Long: `radar discovers repositories and community discussion, scores them
for relevance, enriches the keepers with model-written summaries and
delivers digests to configured channels.

State lives in a local database; every command is safe to interrupt
and re-run.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.radar/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the CLI. The version string is stamped by the build.
func Execute(v string) error {
	if v != "" {
		version = v
	}
	defer closeApp()
	return rootCmd.Execute()
}

// ensureApp wires the full adapter graph once. Commands that only format
// output share the same graph as the pipeline commands.
func ensureApp(ctx context.Context) error {
	if pipeline != nil {
		return nil
	}

	path := cfgPath
	if path == "" {
		p, err := configfile.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	cfg, err := configfile.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err = sqlite.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	records = store.RecordStore()
	checkpoints = store.CheckpointStore()
	vectors = store.VectorIndex()

	source := github.NewSource(ctx, cfg.GitHub.Token, github.Config{
		MinStars: cfg.GitHub.MinStars,
		Topics:   cfg.GitHub.Topics,
	})
	feeds := hackernews.New(hackernews.Config{
		Feeds:     cfg.HackerNews.Feeds,
		MinPoints: cfg.HackerNews.MinPoints,
		Keywords:  cfg.HackerNews.Keywords,
	})

	fast, err := ai.NewCompleter(completerSettings(cfg.AI.Fast))
	if err != nil {
		return fmt.Errorf("fast completer: %w", err)
	}
	strong, err := ai.NewCompleter(completerSettings(cfg.AI.Strong))
	if err != nil {
		return fmt.Errorf("strong completer: %w", err)
	}
	embedder, err = ai.NewEmbedder(ai.EmbedderSettings{
		Provider:   cfg.AI.Embedding.Provider,
		APIKey:     cfg.AI.Embedding.APIKey,
		BaseURL:    cfg.AI.Embedding.BaseURL,
		Model:      cfg.AI.Embedding.Model,
		Dimensions: cfg.AI.Dimensions,
	})
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}

	pipeline = services.NewPipeline(pipelineConfig(cfg), services.PipelineDeps{
		Records:     records,
		Checkpoints: checkpoints,
		Bulk:        source,
		Feeds:       feeds,
		Content:     source,
		Fast:        fast,
		Strong:      strong,
		Embedder:    embedder,
		Vectors:     vectors,
		Notifiers:   buildNotifiers(cfg),
		Exporter:    csvfile.New(cfg.Export.Path),
		Failures:    faillog.New(cfg.Storage.FailureLog),
	}, services.NewExecutor(services.ExecutorConfig{}))
	return nil
}

func completerSettings(p configfile.ProviderConfig) ai.CompleterSettings {
	return ai.CompleterSettings{
		Provider: p.Provider,
		APIKey:   p.APIKey,
		BaseURL:  p.BaseURL,
		Model:    p.Model,
	}
}

func pipelineConfig(cfg *configfile.Config) services.PipelineConfig {
	return services.PipelineConfig{
		ScoreThreshold:    cfg.Pipeline.ScoreThreshold,
		MaxEnrichAttempts: cfg.Pipeline.MaxEnrichAttempts,
		BatchSize:         cfg.Pipeline.BatchSize,
		GroupSize:         cfg.Pipeline.GroupSize,
		Pacing:            time.Duration(cfg.Pipeline.PacingMillis) * time.Millisecond,
		RecencyWindow:     time.Duration(cfg.Pipeline.RecencyDays) * 24 * time.Hour,
		MinDescription:    cfg.Pipeline.MinDescription,
		Language:          cfg.Pipeline.Language,
		FastBudget:        cfg.Pipeline.FastBudget,
		StrongBudget:      cfg.Pipeline.StrongBudget,
		Backfill: services.BackfillConfig{
			LookbackDays: cfg.Backfill.LookbackDays,
			ChunkDays:    cfg.Backfill.ChunkDays,
			Pacing:       time.Duration(cfg.Backfill.PacingMillis) * time.Millisecond,
			Partitions:   cfg.GitHub.Languages,
		},
	}
}

// buildNotifiers constructs every channel with credentials. A channel left
// unconfigured is skipped, not an error.
func buildNotifiers(cfg *configfile.Config) []driven.Notifier {
	var notifiers []driven.Notifier

	tg, err := telegram.New(telegram.Config{
		BotToken:   cfg.Telegram.BotToken,
		ChatID:     cfg.Telegram.ChatID,
		ScoreFloor: cfg.Telegram.ScoreFloor,
	})
	switch {
	case err == nil:
		notifiers = append(notifiers, tg)
	case errors.Is(err, domain.ErrNotifierUnavailable):
		logger.Debug("telegram channel not configured")
	default:
		logger.Warn("telegram channel: %v", err)
	}

	sl, err := slack.New(slack.Config{
		WebhookURL: cfg.Slack.WebhookURL,
		ScoreFloor: cfg.Slack.ScoreFloor,
	})
	switch {
	case err == nil:
		notifiers = append(notifiers, sl)
	case errors.Is(err, domain.ErrNotifierUnavailable):
		logger.Debug("slack channel not configured")
	default:
		logger.Warn("slack channel: %v", err)
	}

	return notifiers
}

func closeApp() {
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("close store: %v", err)
		}
		store = nil
	}
}
