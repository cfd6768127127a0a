package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/services"
)

var daemonInterval time.Duration

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the pipeline on a fixed interval",
	Long: `Runs the pipeline immediately and then on every interval tick until
interrupted. A failed run is logged and retried on the next tick; the
stores carry the state between runs.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", services.DefaultInterval, "time between runs")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	if err := ensureApp(cmd.Context()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Printf("radar daemon started, running every %s\n", daemonInterval)
	scheduler := services.NewScheduler(pipeline, daemonInterval, domain.RunOptions{})
	if err := scheduler.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	cmd.Println("radar daemon stopped")
	return nil
}
