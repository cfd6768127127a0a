package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record counts and backfill coverage",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if err := ensureApp(cmd.Context()); err != nil {
		return err
	}

	stats, err := records.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	cmd.Printf("Records:  %d\n", stats.Total)
	cmd.Printf("Scored:   %d\n", stats.Scored)
	cmd.Printf("Enriched: %d\n", stats.Enriched)
	cmd.Printf("Embedded: %d\n", stats.Embedded)
	cmd.Printf("Retired:  %d\n", stats.Retired)

	if len(stats.Sent) > 0 {
		channels := make([]string, 0, len(stats.Sent))
		for ch := range stats.Sent {
			channels = append(channels, ch)
		}
		sort.Strings(channels)
		cmd.Println("Sent:")
		for _, ch := range channels {
			cmd.Printf("  %-10s %d\n", ch, stats.Sent[ch])
		}
	}

	cps, err := checkpoints.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("read checkpoints: %w", err)
	}
	cmd.Printf("Backfill windows completed: %d\n", len(cps))
	if len(cps) > 0 {
		latest := cps[0]
		cmd.Printf("Most recent: %s to %s (%d items)\n",
			latest.Window.Start.Format("2006-01-02"),
			latest.Window.End.Format("2006-01-02"),
			latest.ItemCount)
	}
	return nil
}
