package driven

import (
	"context"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
)

// CompletionRequest is one completion call. Token budgets are configuration,
// not a fixed contract: the fast classification call and the stronger
// summarisation call carry different budgets and temperatures.
type CompletionRequest struct {
	// System is the optional system prompt.
	System string

	// Prompt is the user prompt.
	Prompt string

	// MaxTokens is the output token budget. Providers with reasoning model
	// variants map this onto their own parameter name.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64
}

// Completer provides text completion behind a single contract shared by the
// alternate providers. Provider selection happens once at startup by
// configuration; the core never branches on provider identity.
type Completer interface {
	// Complete produces a text completion for the request.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// ModelName returns the model identifier in use, for logging.
	ModelName() string

	// Classify maps a provider error to its retry class.
	Classify(err error) domain.ErrorKind

	// Close releases resources.
	Close() error
}

// EmbeddingService converts text to vector embeddings.
type EmbeddingService interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// Classify maps a provider error to its retry class.
	Classify(err error) domain.ErrorKind

	// Close releases resources.
	Close() error
}
