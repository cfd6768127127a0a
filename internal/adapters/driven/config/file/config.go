// Package file loads the radar configuration from a TOML file.
//
// Credentials are never required to live in the file: environment variables
// override whatever the file holds, so tokens can stay out of dotfiles.
package file

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full typed configuration tree. Zero values fall back to the
// defaults applied in Load, so a missing file yields a usable config.
type Config struct {
	Storage    StorageConfig    `toml:"storage"`
	GitHub     GitHubConfig     `toml:"github"`
	HackerNews HackerNewsConfig `toml:"hackernews"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Backfill   BackfillConfig   `toml:"backfill"`
	AI         AIConfig         `toml:"ai"`
	Telegram   TelegramConfig   `toml:"telegram"`
	Slack      SlackConfig      `toml:"slack"`
	Export     ExportConfig     `toml:"export"`
}

// StorageConfig locates the local state.
type StorageConfig struct {
	// DataDir holds the sqlite database. Empty means ~/.radar/data.
	DataDir string `toml:"data_dir"`

	// FailureLog is the JSONL diagnostics file. Empty means
	// <data_dir>/failures.jsonl.
	FailureLog string `toml:"failure_log"`
}

// GitHubConfig tunes the repository search source.
type GitHubConfig struct {
	// Token authenticates the API client. Overridden by GITHUB_TOKEN.
	// An empty token still works at the unauthenticated quota.
	Token string `toml:"token"`

	// MinStars is the popularity floor in the search query.
	MinStars int `toml:"min_stars"`

	// Topics restricts the search to these repository topics.
	Topics []string `toml:"topics"`

	// Languages are the backfill partitions. Each language gets its own
	// window sequence and its own slice of the per-query result cap.
	Languages []string `toml:"languages"`
}

// HackerNewsConfig tunes the feed source.
type HackerNewsConfig struct {
	// Feeds are the Algolia tag expressions to poll.
	Feeds []string `toml:"feeds"`

	// MinPoints is the client-side popularity floor.
	MinPoints int `toml:"min_points"`

	// Keywords keeps only items whose title matches at least one entry.
	Keywords []string `toml:"keywords"`
}

// PipelineConfig tunes stage behaviour.
type PipelineConfig struct {
	// ScoreThreshold is the inclusive relevance floor for enrichment.
	ScoreThreshold float64 `toml:"score_threshold"`

	// MaxEnrichAttempts retires a record from enrichment after this many
	// failed attempts.
	MaxEnrichAttempts int `toml:"max_enrich_attempts"`

	// BatchSize and GroupSize bound batch pulls and concurrent calls.
	BatchSize int `toml:"batch_size"`
	GroupSize int `toml:"group_size"`

	// PacingMillis is the proactive sleep between concurrency groups, in
	// milliseconds. It applies even when every call succeeds.
	PacingMillis int `toml:"pacing_ms"`

	// RecencyDays bounds how old a record may be and still be notified.
	RecencyDays int `toml:"recency_days"`

	// MinDescription triggers the content stage below this length.
	MinDescription int `toml:"min_description"`

	// Language, when set, adds a localised summary in that language.
	Language string `toml:"language"`

	// FastBudget and StrongBudget are output token budgets for the
	// scoring and summarising completions.
	FastBudget   int `toml:"fast_budget"`
	StrongBudget int `toml:"strong_budget"`
}

// BackfillConfig tunes the historical window fetch.
type BackfillConfig struct {
	// LookbackDays is how far back the backfill reaches.
	LookbackDays int `toml:"lookback_days"`

	// ChunkDays is the window width.
	ChunkDays int `toml:"chunk_days"`

	// PacingMillis is the sleep between window fetches, in milliseconds.
	PacingMillis int `toml:"pacing_ms"`
}

// ProviderConfig selects and authenticates one model endpoint.
type ProviderConfig struct {
	// Provider is "openai" or "anthropic". Empty disables the stage that
	// needs it.
	Provider string `toml:"provider"`

	// APIKey is overridden by OPENAI_API_KEY or ANTHROPIC_API_KEY,
	// whichever matches the provider.
	APIKey string `toml:"api_key"`

	// Model overrides the provider default.
	Model string `toml:"model"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `toml:"base_url"`
}

// AIConfig holds the three model roles.
type AIConfig struct {
	// Fast scores records; Strong summarises them.
	Fast   ProviderConfig `toml:"fast"`
	Strong ProviderConfig `toml:"strong"`

	// Embedding vectorises summaries.
	Embedding  ProviderConfig `toml:"embedding"`
	Dimensions int            `toml:"dimensions"`
}

// TelegramConfig configures the Telegram digest channel.
type TelegramConfig struct {
	// BotToken is overridden by TELEGRAM_BOT_TOKEN.
	BotToken   string  `toml:"bot_token"`
	ChatID     string  `toml:"chat_id"`
	ScoreFloor float64 `toml:"score_floor"`
}

// SlackConfig configures the Slack digest channel.
type SlackConfig struct {
	// WebhookURL is overridden by SLACK_WEBHOOK_URL.
	WebhookURL string  `toml:"webhook_url"`
	ScoreFloor float64 `toml:"score_floor"`
}

// ExportConfig configures the CSV snapshot.
type ExportConfig struct {
	// Path is the output file. Empty means <data_dir>/export.csv.
	Path string `toml:"path"`
}

// DefaultPath returns the conventional config location, ~/.radar/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".radar", "config.toml"), nil
}

// Load reads the TOML file at path, applies defaults for zero fields and
// folds in environment overrides. A missing file is not an error; the
// defaults plus the environment make a complete config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Start from defaults.
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Storage.DataDir = filepath.Join(home, ".radar", "data")
		}
	}
	if c.Storage.FailureLog == "" {
		c.Storage.FailureLog = filepath.Join(c.Storage.DataDir, "failures.jsonl")
	}
	if c.Export.Path == "" {
		c.Export.Path = filepath.Join(c.Storage.DataDir, "export.csv")
	}

	if c.GitHub.MinStars == 0 {
		c.GitHub.MinStars = 20
	}
	if c.HackerNews.MinPoints == 0 {
		c.HackerNews.MinPoints = 30
	}

	if c.Pipeline.ScoreThreshold == 0 {
		c.Pipeline.ScoreThreshold = 0.6
	}
	if c.Pipeline.MaxEnrichAttempts == 0 {
		c.Pipeline.MaxEnrichAttempts = 3
	}
	if c.Pipeline.PacingMillis == 0 {
		c.Pipeline.PacingMillis = 500
	}
	if c.Pipeline.RecencyDays == 0 {
		c.Pipeline.RecencyDays = 3
	}
	if c.Pipeline.MinDescription == 0 {
		c.Pipeline.MinDescription = 80
	}
	if c.Pipeline.FastBudget == 0 {
		c.Pipeline.FastBudget = 256
	}
	if c.Pipeline.StrongBudget == 0 {
		c.Pipeline.StrongBudget = 1024
	}

	if c.Backfill.LookbackDays == 0 {
		c.Backfill.LookbackDays = 365
	}
	if c.Backfill.ChunkDays == 0 {
		c.Backfill.ChunkDays = 7
	}
	if c.Backfill.PacingMillis == 0 {
		c.Backfill.PacingMillis = 2000
	}

	if c.AI.Dimensions == 0 {
		c.AI.Dimensions = 1536
	}
}

// applyEnv folds credential environment variables over the file values. The
// environment wins so a token in the shell beats a stale one on disk.
func (c *Config) applyEnv() {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		c.Slack.WebhookURL = v
	}

	for _, p := range []*ProviderConfig{&c.AI.Fast, &c.AI.Strong, &c.AI.Embedding} {
		switch p.Provider {
		case "openai":
			if v := os.Getenv("OPENAI_API_KEY"); v != "" {
				p.APIKey = v
			}
		case "anthropic":
			if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
				p.APIKey = v
			}
		}
	}
}
