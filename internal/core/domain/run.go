package domain

import "time"

// StageName identifies one pipeline stage.
type StageName string

// Pipeline stages in dependency order. Later stages consume earlier stages'
// output, so out-of-order execution is never offered.
const (
	StageImport   StageName = "import"
	StageBackfill StageName = "backfill"
	StageContent  StageName = "content"
	StageScore    StageName = "score"
	StageEnrich   StageName = "enrich"
	StageEmbed    StageName = "embed"
	StageExport   StageName = "export"
	StageNotify   StageName = "notify"
)

// StageOrder is the canonical execution sequence.
var StageOrder = []StageName{
	StageImport,
	StageBackfill,
	StageContent,
	StageScore,
	StageEnrich,
	StageEmbed,
	StageExport,
	StageNotify,
}

// ValidStage reports whether name is a known pipeline stage.
func ValidStage(name StageName) bool {
	for _, s := range StageOrder {
		if s == name {
			return true
		}
	}
	return false
}

// RunOptions are the run-scoped flags accepted by the orchestrator.
type RunOptions struct {
	// LookbackDays restricts how far back the backfill reaches.
	LookbackDays int

	// Skip lists stages to leave out of this run.
	Skip []StageName

	// Only, when set, runs exactly one named stage and exits.
	Only StageName

	// Sources restricts processing to records from these origins.
	Sources []string

	// NoNotify suppresses the notify stage.
	NoNotify bool
}

// Skipped reports whether the options exclude the given stage.
func (o *RunOptions) Skipped(name StageName) bool {
	if o.Only != "" && o.Only != name {
		return true
	}
	if o.NoNotify && name == StageNotify {
		return true
	}
	for _, s := range o.Skip {
		if s == name {
			return true
		}
	}
	return false
}

// StageOutcome summarises one stage's execution. Per-record failures are
// absorbed here; they never escape to the orchestrator.
type StageOutcome struct {
	Stage     StageName
	Processed int
	Failed    int
	Elapsed   time.Duration
}

// RunSummary aggregates a pipeline run, keyed by stage name.
type RunSummary struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Outcomes map[StageName]StageOutcome
}

// TotalProcessed sums processed records across stages.
func (s *RunSummary) TotalProcessed() int {
	var n int
	for _, o := range s.Outcomes {
		n += o.Processed
	}
	return n
}

// TotalFailed sums per-record failures across stages.
func (s *RunSummary) TotalFailed() int {
	var n int
	for _, o := range s.Outcomes {
		n += o.Failed
	}
	return n
}

// SelectFilter parameterises an eligibility query against the record store.
// Fields irrelevant to the queried stage are ignored.
type SelectFilter struct {
	// Sources restricts to records from these origins. Empty means all.
	Sources []string

	// ScoreThreshold is the inclusive relevance floor for enrichment.
	ScoreThreshold float64

	// MaxAttempts is the enrichment attempt ceiling.
	MaxAttempts int

	// MinDescription selects records whose description is shorter than this
	// for the content backfill stage.
	MinDescription int

	// Channel names the notification channel being queried.
	Channel string

	// ChannelFloor is the channel's relevance floor.
	ChannelFloor float64

	// Recency is the notification recency window.
	Recency time.Duration

	// Now anchors the recency window. Zero means the current time.
	Now time.Time
}

// Stats reports record counts for run reporting.
type Stats struct {
	Total    int
	Scored   int
	Enriched int
	Embedded int
	Retired  int
	Sent     map[string]int
}

// FailureEntry is one line of the append-only diagnostic failure log. The
// log is write-only from the pipeline's point of view; it exists for
// offline inspection.
type FailureEntry struct {
	RunID       string    `json:"run_id"`
	Stage       StageName `json:"stage"`
	ExternalID  string    `json:"external_id"`
	Source      string    `json:"source"`
	Error       string    `json:"error"`
	RawResponse string    `json:"raw_response,omitempty"`
	At          time.Time `json:"at"`
}
