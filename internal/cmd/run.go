package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mikeyhodl/quote-bot/internal/config"
	"github.com/mikeyhodl/quote-bot/internal/errors"
	"github.com/mikeyhodl/quote-bot/internal/master"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the master process",
	Long: `Run the master process: spawn the worker pool, route updates, and
serve the metrics endpoint until interrupted.

Edits to the config file apply live for per-worker capacity and the
resize thresholds; other settings need a restart.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	m, err := master.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hot reload: re-apply the reloadable settings when the config file
	// changes. Without a config file there is nothing to watch.
	if path := viper.ConfigFileUsed(); path != "" {
		watcher, err := config.NewWatcher(path, m.ApplyConfig, func(err error) {
			fmt.Fprintf(cmd.ErrOrStderr(), "config reload rejected: %v\n", err)
		})
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		watcher.Start()
		defer watcher.Stop()
	}

	if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
