package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mikeyhodl/quote-bot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create the quote-bot configuration",
	Long: `View or create the quote-bot configuration.

Without arguments, displays the current configuration.
Use subcommands to create a config file or locate it.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/quote-bot/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "# config file: (none - using defaults)")
	}

	out, err := renderConfig(cfg)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// renderConfig serializes a config to YAML keyed the way the config file
// is keyed.
func renderConfig(cfg *config.Config) (string, error) {
	doc := map[string]any{
		"dispatch": map[string]any{
			"capacity":       cfg.Dispatch.Capacity,
			"queue_max_size": cfg.Dispatch.QueueMaxSize,
		},
		"pool": map[string]any{
			"initial_workers":         cfg.Pool.InitialWorkers,
			"floor":                   cfg.Pool.Floor,
			"max_workers":             cfg.Pool.MaxWorkers,
			"cpu_high_ratio":          cfg.Pool.CPUHighRatio,
			"queue_high_ratio":        cfg.Pool.QueueHighRatio,
			"queue_low_ratio":         cfg.Pool.QueueLowRatio,
			"resize_interval_seconds": cfg.Pool.ResizeIntervalSeconds,
			"worker_binary":           cfg.Pool.WorkerBinary,
			"worker_args":             cfg.Pool.WorkerArgs,
		},
		"health": map[string]any{
			"interval_seconds": cfg.Health.IntervalSeconds,
			"probe_timeout_ms": cfg.Health.ProbeTimeoutMs,
		},
		"bridge": map[string]any{
			"call_timeout_seconds": cfg.Bridge.CallTimeoutSeconds,
		},
		"logging": map[string]any{
			"enabled":     cfg.Logging.Enabled,
			"level":       cfg.Logging.Level,
			"path":        cfg.Logging.Path,
			"max_size_mb": cfg.Logging.MaxSizeMB,
			"max_backups": cfg.Logging.MaxBackups,
		},
		"telemetry": map[string]any{
			"enabled":                 cfg.Telemetry.Enabled,
			"listen_addr":             cfg.Telemetry.ListenAddr,
			"report_interval_seconds": cfg.Telemetry.ReportIntervalSeconds,
		},
	}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render config: %w", err)
	}
	return string(raw), nil
}

// defaultConfigTemplate is the commented config file written by
// `quote-bot config init`.
const defaultConfigTemplate = `# Quote-bot configuration

# Update dispatch
dispatch:
  # In-flight updates allowed per worker
  capacity: 3
  # Queue depth at which backpressure engages
  queue_max_size: 1000

# Worker pool and resize policy
pool:
  initial_workers: 2
  # Shrink never goes below the floor
  floor: 1
  max_workers: 16
  # Grow when normalized CPU load exceeds this, or the queue passes
  # queue_high_ratio. Shrink needs CPU below half this and the queue
  # below queue_low_ratio.
  cpu_high_ratio: 0.85
  queue_high_ratio: 0.70
  queue_low_ratio: 0.30
  resize_interval_seconds: 30
  # Empty re-execs this binary with worker_args
  worker_binary: ""
  worker_args: ["worker"]

# Worker health probing
health:
  interval_seconds: 15
  probe_timeout_ms: 2000

# Control-plane bridge
bridge:
  call_timeout_seconds: 30

# Structured logging (empty path logs to stderr)
logging:
  enabled: true
  level: info
  path: ""
  max_size_mb: 10
  max_backups: 3

# Metrics endpoint and periodic status line
telemetry:
  enabled: true
  listen_addr: ":9090"
  report_interval_seconds: 30
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(cmd.OutOrStdout(), "\nEnvironment variables: QUOTEBOT_* (e.g., QUOTEBOT_DISPATCH_CAPACITY)")
	return nil
}
