package domain

import "time"

// ResultCap is the hard ceiling the bulk search API enforces per distinct
// query, regardless of pagination. Windows whose result count reaches this
// cap have likely lost items beyond it.
const ResultCap = 1000

// Window is a fixed-width date range used to chunk a capped bulk query into
// sub-cap pieces.
type Window struct {
	Start time.Time
	End   time.Time
}

// String returns the window as "2006-01-02..2006-01-02" for labels and logs.
func (w Window) String() string {
	return w.Start.Format("2006-01-02") + ".." + w.End.Format("2006-01-02")
}

// Checkpoint marks one completed historical window. Checkpoints are
// append-only: a window is recorded once its fetch completed without fatal
// error and is never mutated afterwards. PartitionKey distinguishes parallel
// dimensions of the backfill (such as a language filter) that each have an
// independent result cap.
type Checkpoint struct {
	Window       Window
	PartitionKey string
	ItemCount    int
	CreatedAt    time.Time
}

// GenerateWindows splits the lookback period ending at now into contiguous,
// non-overlapping windows of chunkDays width, most recent first. The oldest
// window is truncated so the union covers exactly lookbackDays days.
func GenerateWindows(now time.Time, lookbackDays, chunkDays int) []Window {
	if lookbackDays <= 0 || chunkDays <= 0 {
		return nil
	}

	end := now.Truncate(24 * time.Hour)
	oldest := end.AddDate(0, 0, -lookbackDays)

	var windows []Window
	for end.After(oldest) {
		start := end.AddDate(0, 0, -chunkDays)
		if start.Before(oldest) {
			start = oldest
		}
		windows = append(windows, Window{Start: start, End: end})
		end = start
	}
	return windows
}
