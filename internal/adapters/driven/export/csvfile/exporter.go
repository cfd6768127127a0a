// Package csvfile writes enriched records to a CSV file for offline use.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
)

// header is the column layout of the export file.
var header = []string{
	"source", "external_id", "title", "author", "stars", "score",
	"category", "summary", "url", "created_at",
}

// Exporter writes records to a CSV file, replacing any previous export.
type Exporter struct {
	path string
}

var _ driven.Exporter = (*Exporter)(nil)

// New creates an exporter targeting the given file path.
func New(path string) *Exporter {
	return &Exporter{path: path}
}

// Export writes all records to the file and returns how many were written.
func (e *Exporter) Export(_ context.Context, records []domain.Record) (int, error) {
	if err := os.MkdirAll(filepath.Dir(e.path), 0700); err != nil {
		return 0, fmt.Errorf("creating export directory: %w", err)
	}

	f, err := os.Create(e.path)
	if err != nil {
		return 0, fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}

	for i, rec := range records {
		score := ""
		if rec.RelevanceScore != nil {
			score = strconv.FormatFloat(*rec.RelevanceScore, 'f', 2, 64)
		}
		row := []string{
			rec.Source,
			rec.ExternalID,
			rec.Title,
			rec.Author,
			strconv.Itoa(rec.Stars),
			score,
			rec.MatchedCategory,
			rec.Summary,
			rec.URL,
			rec.OriginCreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return i, fmt.Errorf("writing record %s: %w", rec.Key(), err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("flushing export: %w", err)
	}
	return len(records), nil
}
