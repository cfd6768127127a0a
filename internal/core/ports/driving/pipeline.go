// Package driving provides interfaces for primary/inbound ports: the
// surfaces through which the CLI drives the pipeline.
package driving

import (
	"context"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
)

// PipelineRunner sequences the pipeline stages in dependency order.
type PipelineRunner interface {
	// Run executes the pipeline under the given run-scoped options and
	// returns the aggregated summary. A returned error means the run was
	// aborted; per-record failures do not produce an error.
	Run(ctx context.Context, opts domain.RunOptions) (*domain.RunSummary, error)
}

// Scheduler re-invokes the resumable pipeline on a fixed interval.
type Scheduler interface {
	// Start blocks, running the pipeline every interval until the context
	// is cancelled.
	Start(ctx context.Context) error
}
