package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search summarised records by meaning",
	Long: `Embeds the query and returns the records whose summaries are
semantically closest. Only records that reached the embed stage are
searchable.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := ensureApp(cmd.Context()); err != nil {
		return err
	}
	if embedder == nil {
		return errors.New("no embedding provider configured")
	}

	query, err := embedder.Embed(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}

	hits, err := vectors.Search(cmd.Context(), query, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(hits) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	for i, hit := range hits {
		record, err := records.Get(cmd.Context(), hit.Key)
		if err != nil {
			return fmt.Errorf("load %s/%s: %w", hit.Key.Source, hit.Key.ExternalID, err)
		}
		cmd.Printf("[%d] %s (%.2f)\n", i+1, record.Title, hit.Similarity)
		if record.Summary != "" {
			cmd.Printf("    %s\n", record.Summary)
		}
		cmd.Printf("    %s\n", record.URL)
	}
	return nil
}
