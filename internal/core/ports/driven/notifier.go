package driven

import (
	"context"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
)

// Notifier delivers a digest of records to one downstream channel.
// Delivery is at-least-once: the pipeline marks records sent after a
// successful call, so a crash between send and mark may repeat a digest.
type Notifier interface {
	// Name identifies the channel for sent markers and eligibility queries.
	Name() string

	// ScoreFloor is the channel's relevance floor.
	ScoreFloor() float64

	// Send delivers the records, chunking the payload to the channel's
	// formatting ceiling as needed.
	Send(ctx context.Context, records []domain.Record) error

	// Classify maps a delivery error to its retry class.
	Classify(err error) domain.ErrorKind
}

// Exporter writes the current record set to an external file format.
type Exporter interface {
	// Export writes the records and returns the number written.
	Export(ctx context.Context, records []domain.Record) (int, error)
}
