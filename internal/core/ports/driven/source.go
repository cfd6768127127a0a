package driven

import (
	"context"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
)

// SearchResult is one page-complete window fetch from the bulk source.
type SearchResult struct {
	// Records are the items fetched across all pages of the window.
	Records []domain.Record

	// TotalCount is the provider-reported match count for the query. When it
	// reaches domain.ResultCap the window has likely lost items beyond the
	// cap and must be flagged.
	TotalCount int
}

// BulkSource is the paginated historical search API. It enforces a combined
// result cap per distinct query regardless of pagination, which is why
// callers chunk queries into date windows.
type BulkSource interface {
	// SearchWindow fetches every page of matches for one window and
	// partition (for example a language filter), applying the configured
	// popularity floor.
	SearchWindow(ctx context.Context, window domain.Window, partitionKey string) (*SearchResult, error)

	// Classify maps a search error to its retry class.
	Classify(err error) domain.ErrorKind
}

// FeedSource is the secondary listing API: one call per named feed,
// filtered client-side by a popularity floor and an optional tag allow-list.
type FeedSource interface {
	// FetchFeed returns the current items of one named feed as records.
	FetchFeed(ctx context.Context, feed string) ([]domain.Record, error)

	// Feeds lists the configured feed names.
	Feeds() []string

	// Classify maps a feed error to its retry class.
	Classify(err error) domain.ErrorKind
}

// ContentFetcher backfills long-form content (such as a repository README)
// for records whose description is too thin to score.
type ContentFetcher interface {
	// FetchContent returns additional descriptive text for the record.
	FetchContent(ctx context.Context, key domain.RecordKey) (string, error)

	// Classify maps a fetch error to its retry class.
	Classify(err error) domain.ErrorKind
}
