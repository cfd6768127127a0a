// Package faillog persists per-record failures as an append-only JSONL file
// for offline inspection.
package faillog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
	"github.com/meridian-labs/radar-cli/internal/logger"
)

// Log is a file-backed failure log. Appending never fails the caller:
// diagnostics must not abort the operation that produced them.
type Log struct {
	mu   sync.Mutex
	path string
}

var _ driven.FailureLog = (*Log)(nil)

// New creates a failure log writing to the given file path.
func New(path string) *Log {
	return &Log{path: path}
}

// Append writes one entry as a JSON line. Errors are logged and swallowed.
func (l *Log) Append(entry domain.FailureEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		logger.Warn("failure log unavailable: %v", err)
		return
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		logger.Warn("failure log unavailable: %v", err)
		return
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		logger.Warn("failure log entry not serialisable: %v", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		logger.Warn("failure log write failed: %v", err)
	}
}
