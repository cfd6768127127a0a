package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWindows_CoversLookbackExactly(t *testing.T) {
	now := time.Date(2025, 6, 15, 13, 45, 0, 0, time.UTC)
	windows := GenerateWindows(now, 365, 7)

	require.NotEmpty(t, windows)

	// Most recent first.
	end := now.Truncate(24 * time.Hour)
	assert.Equal(t, end, windows[0].End)

	// Contiguous and non-overlapping: each window starts where the next
	// (older) one ends.
	for i := 0; i < len(windows)-1; i++ {
		assert.Equal(t, windows[i+1].End, windows[i].Start,
			"window %d not contiguous with window %d", i, i+1)
		assert.True(t, windows[i].End.After(windows[i].Start))
	}

	// Union covers exactly 365 days ending today.
	oldest := windows[len(windows)-1]
	assert.Equal(t, end.AddDate(0, 0, -365), oldest.Start)

	var total time.Duration
	for _, w := range windows {
		total += w.End.Sub(w.Start)
	}
	assert.Equal(t, end.Sub(end.AddDate(0, 0, -365)), total)
}

func TestGenerateWindows_TruncatesOldestChunk(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	windows := GenerateWindows(now, 10, 7)

	require.Len(t, windows, 2)
	assert.Equal(t, 7*24*time.Hour, windows[0].End.Sub(windows[0].Start))
	assert.Equal(t, 3*24*time.Hour, windows[1].End.Sub(windows[1].Start))
}

func TestGenerateWindows_InvalidInput(t *testing.T) {
	now := time.Now()
	assert.Nil(t, GenerateWindows(now, 0, 7))
	assert.Nil(t, GenerateWindows(now, 30, 0))
	assert.Nil(t, GenerateWindows(now, -1, 7))
}

func TestWindowString(t *testing.T) {
	w := Window{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "2025-01-01..2025-01-08", w.String())
}
