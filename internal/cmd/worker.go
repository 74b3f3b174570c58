package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mikeyhodl/quote-bot/internal/logging"
	"github.com/mikeyhodl/quote-bot/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run one worker process",
	Long: `Run the worker half of the engine: read update envelopes from stdin,
handle them, and write completions back on stdout.

The master spawns this command for each pool slot; it is not meant to be
run by hand. Stdout carries the wire protocol, so worker logs go to
stderr.`,
	Hidden: true,
	RunE:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Stdout belongs to the protocol; log to stderr only.
	logger, err := logging.NewLogger("", "info", logging.RotationConfig{})
	if err != nil {
		return err
	}

	rt := worker.NewRuntime(os.Stdin, os.Stdout, worker.NewQuoteHandler(),
		worker.WithLogger(logger),
	)
	return rt.Run(cmd.Context())
}
