package driven

import (
	"context"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
)

// VectorIndex provides semantic similarity search over record summaries,
// keyed by the same composite identity as the record store.
type VectorIndex interface {
	// Add inserts or replaces the vector for a record.
	Add(ctx context.Context, key domain.RecordKey, embedding []float32) error

	// AddBatch inserts vectors for several records in one transaction.
	AddBatch(ctx context.Context, keys []domain.RecordKey, embeddings [][]float32) error

	// Search finds the k nearest neighbours to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// Close releases resources.
	Close() error
}

// VectorHit is a similarity search result.
type VectorHit struct {
	// Key identifies the matched record.
	Key domain.RecordKey

	// Similarity is the cosine similarity score (0-1).
	Similarity float64
}
