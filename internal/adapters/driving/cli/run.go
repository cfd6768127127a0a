package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
)

var (
	runDays     int
	runSkip     []string
	runOnly     string
	runSources  []string
	runNoNotify bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the discovery pipeline",
	Long: `Runs every pipeline stage in dependency order: import, backfill,
content, score, enrich, embed, export, notify.

Each stage picks up where the previous run left it, so an interrupted
run loses no finished work. Use --only or --skip to run a subset.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runDays, "days", 0, "limit the backfill lookback to this many days")
	runCmd.Flags().StringSliceVar(&runSkip, "skip", nil, "stages to leave out")
	runCmd.Flags().StringVar(&runOnly, "only", "", "run exactly one stage")
	runCmd.Flags().StringSliceVar(&runSources, "sources", nil, "restrict processing to these origins")
	runCmd.Flags().BoolVar(&runNoNotify, "no-notify", false, "suppress digest delivery")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	if err := ensureApp(cmd.Context()); err != nil {
		return err
	}

	opts := domain.RunOptions{
		LookbackDays: runDays,
		Only:         domain.StageName(runOnly),
		Sources:      runSources,
		NoNotify:     runNoNotify,
	}
	for _, s := range runSkip {
		opts.Skip = append(opts.Skip, domain.StageName(s))
	}

	summary, err := pipeline.Run(cmd.Context(), opts)
	if summary != nil {
		printSummary(cmd, summary, &opts)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}

func printSummary(cmd *cobra.Command, summary *domain.RunSummary, opts *domain.RunOptions) {
	cmd.Println()
	cmd.Printf("Run %s\n", summary.RunID)
	for _, name := range domain.StageOrder {
		if opts.Skipped(name) {
			cmd.Printf("  %-10s skipped\n", name)
			continue
		}
		outcome, ok := summary.Outcomes[name]
		if !ok {
			continue
		}
		cmd.Printf("  %-10s %d processed, %d failed (%s)\n",
			name, outcome.Processed, outcome.Failed, outcome.Elapsed.Round(time.Millisecond))
	}
	cmd.Printf("Total: %d processed, %d failed in %s\n",
		summary.TotalProcessed(), summary.TotalFailed(),
		summary.Finished.Sub(summary.Started).Round(time.Second))
}
