package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete quote-bot configuration
type Config struct {
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Health    HealthConfig    `mapstructure:"health"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// DispatchConfig controls update routing and queueing
type DispatchConfig struct {
	// Capacity is the per-worker in-flight update limit (default: 3)
	Capacity int `mapstructure:"capacity"`
	// QueueMaxSize is the queue depth at which backpressure engages (default: 1000)
	QueueMaxSize int `mapstructure:"queue_max_size"`
}

// PoolConfig controls the worker pool and its resize policy
type PoolConfig struct {
	// InitialWorkers is the number of workers spawned at startup (default: 2)
	InitialWorkers int `mapstructure:"initial_workers"`
	// Floor is the minimum pool size; shrink never goes below it (default: 1)
	Floor int `mapstructure:"floor"`
	// MaxWorkers caps pool growth (default: 16)
	MaxWorkers int `mapstructure:"max_workers"`
	// CPUHighRatio is the normalized CPU load above which the pool grows (default: 0.85)
	CPUHighRatio float64 `mapstructure:"cpu_high_ratio"`
	// QueueHighRatio is the queue fill ratio above which the pool grows (default: 0.70)
	QueueHighRatio float64 `mapstructure:"queue_high_ratio"`
	// QueueLowRatio is the queue fill ratio below which the pool may shrink (default: 0.30)
	QueueLowRatio float64 `mapstructure:"queue_low_ratio"`
	// ResizeIntervalSeconds is how often the resize policy is evaluated (default: 30)
	ResizeIntervalSeconds int `mapstructure:"resize_interval_seconds"`
	// WorkerBinary is the executable spawned for each worker.
	// Empty means re-exec the current binary with WorkerArgs.
	WorkerBinary string `mapstructure:"worker_binary"`
	// WorkerArgs are the arguments passed to the worker binary (default: ["worker"])
	WorkerArgs []string `mapstructure:"worker_args"`
}

// HealthConfig controls worker health probing
type HealthConfig struct {
	// IntervalSeconds is how often all workers are probed (default: 15)
	IntervalSeconds int `mapstructure:"interval_seconds"`
	// ProbeTimeoutMs bounds how long a single probe may take (default: 2000)
	ProbeTimeoutMs int `mapstructure:"probe_timeout_ms"`
}

// BridgeConfig controls the control-plane bridge
type BridgeConfig struct {
	// CallTimeoutSeconds bounds outbound messaging and privileged calls (default: 30)
	CallTimeoutSeconds int `mapstructure:"call_timeout_seconds"`
}

// LoggingConfig controls structured logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Path is the log file path; empty logs to stderr
	Path string `mapstructure:"path"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// TelemetryConfig controls status reporting and the metrics endpoint
type TelemetryConfig struct {
	// Enabled controls whether the metrics endpoint is served (default: true)
	Enabled bool `mapstructure:"enabled"`
	// ListenAddr is the address the metrics HTTP server binds (default: ":9090")
	ListenAddr string `mapstructure:"listen_addr"`
	// ReportIntervalSeconds is how often a status line is logged (default: 30)
	ReportIntervalSeconds int `mapstructure:"report_interval_seconds"`
}

// ResizeInterval returns the resize interval as a time.Duration
func (p *PoolConfig) ResizeInterval() time.Duration {
	return time.Duration(p.ResizeIntervalSeconds) * time.Second
}

// Interval returns the probe sweep interval as a time.Duration
func (h *HealthConfig) Interval() time.Duration {
	return time.Duration(h.IntervalSeconds) * time.Second
}

// ProbeTimeout returns the per-probe timeout as a time.Duration
func (h *HealthConfig) ProbeTimeout() time.Duration {
	return time.Duration(h.ProbeTimeoutMs) * time.Millisecond
}

// CallTimeout returns the bridge call timeout as a time.Duration
func (b *BridgeConfig) CallTimeout() time.Duration {
	return time.Duration(b.CallTimeoutSeconds) * time.Second
}

// ReportInterval returns the status report interval as a time.Duration
func (t *TelemetryConfig) ReportInterval() time.Duration {
	return time.Duration(t.ReportIntervalSeconds) * time.Second
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Dispatch: DispatchConfig{
			Capacity:     3,
			QueueMaxSize: 1000,
		},
		Pool: PoolConfig{
			InitialWorkers:        2,
			Floor:                 1,
			MaxWorkers:            16,
			CPUHighRatio:          0.85,
			QueueHighRatio:        0.70,
			QueueLowRatio:         0.30,
			ResizeIntervalSeconds: 30,
			WorkerBinary:          "", // Empty means re-exec the current binary
			WorkerArgs:            []string{"worker"},
		},
		Health: HealthConfig{
			IntervalSeconds: 15,
			ProbeTimeoutMs:  2000,
		},
		Bridge: BridgeConfig{
			CallTimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Path:       "", // Empty means stderr
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Telemetry: TelemetryConfig{
			Enabled:               true,
			ListenAddr:            ":9090",
			ReportIntervalSeconds: 30,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Dispatch defaults
	viper.SetDefault("dispatch.capacity", defaults.Dispatch.Capacity)
	viper.SetDefault("dispatch.queue_max_size", defaults.Dispatch.QueueMaxSize)

	// Pool defaults
	viper.SetDefault("pool.initial_workers", defaults.Pool.InitialWorkers)
	viper.SetDefault("pool.floor", defaults.Pool.Floor)
	viper.SetDefault("pool.max_workers", defaults.Pool.MaxWorkers)
	viper.SetDefault("pool.cpu_high_ratio", defaults.Pool.CPUHighRatio)
	viper.SetDefault("pool.queue_high_ratio", defaults.Pool.QueueHighRatio)
	viper.SetDefault("pool.queue_low_ratio", defaults.Pool.QueueLowRatio)
	viper.SetDefault("pool.resize_interval_seconds", defaults.Pool.ResizeIntervalSeconds)
	viper.SetDefault("pool.worker_binary", defaults.Pool.WorkerBinary)
	viper.SetDefault("pool.worker_args", defaults.Pool.WorkerArgs)

	// Health defaults
	viper.SetDefault("health.interval_seconds", defaults.Health.IntervalSeconds)
	viper.SetDefault("health.probe_timeout_ms", defaults.Health.ProbeTimeoutMs)

	// Bridge defaults
	viper.SetDefault("bridge.call_timeout_seconds", defaults.Bridge.CallTimeoutSeconds)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.path", defaults.Logging.Path)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", defaults.Telemetry.Enabled)
	viper.SetDefault("telemetry.listen_addr", defaults.Telemetry.ListenAddr)
	viper.SetDefault("telemetry.report_interval_seconds", defaults.Telemetry.ReportIntervalSeconds)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "quote-bot")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quote-bot"
	}
	return filepath.Join(home, ".config", "quote-bot")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
