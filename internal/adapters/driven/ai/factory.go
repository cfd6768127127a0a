// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"fmt"

	openaiembed "github.com/meridian-labs/radar-cli/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/meridian-labs/radar-cli/internal/adapters/driven/llm/anthropic"
	openaillm "github.com/meridian-labs/radar-cli/internal/adapters/driven/llm/openai"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
)

// Providers supported by the factory.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// CompleterSettings selects and configures a completion provider.
type CompleterSettings struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

// IsConfigured reports whether the settings carry enough to build a client.
func (s CompleterSettings) IsConfigured() bool {
	return s.Provider != "" && s.APIKey != ""
}

// EmbedderSettings selects and configures an embedding provider.
type EmbedderSettings struct {
	Provider   string
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// IsConfigured reports whether the settings carry enough to build a client.
func (s EmbedderSettings) IsConfigured() bool {
	return s.Provider != "" && s.APIKey != ""
}

// NewCompleter creates the configured completion provider. Returns nil when
// the provider is not configured: the pipeline then skips LLM stages.
func NewCompleter(settings CompleterSettings) (driven.Completer, error) {
	if !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case ProviderOpenAI:
		return openaillm.New(openaillm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})
	case ProviderAnthropic:
		return anthropicllm.New(anthropicllm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", settings.Provider)
	}
}

// NewEmbedder creates the configured embedding provider. Returns nil when
// the provider is not configured: the pipeline then skips the embed stage.
func NewEmbedder(settings EmbedderSettings) (driven.EmbeddingService, error) {
	if !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case ProviderOpenAI:
		return openaiembed.New(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
		})
	case ProviderAnthropic:
		// Anthropic does not offer an embeddings endpoint.
		return nil, fmt.Errorf("anthropic does not support embeddings, use openai")
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}
