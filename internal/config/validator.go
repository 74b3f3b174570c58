package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pool.max_workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateDispatch()...)
	errors = append(errors, c.validatePool()...)
	errors = append(errors, c.validateHealth()...)
	errors = append(errors, c.validateBridge()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateTelemetry()...)

	return errors
}

// validateDispatch validates the DispatchConfig
func (c *Config) validateDispatch() []ValidationError {
	var errors []ValidationError

	if c.Dispatch.Capacity < 1 {
		errors = append(errors, ValidationError{
			Field:   "dispatch.capacity",
			Value:   c.Dispatch.Capacity,
			Message: "must be at least 1",
		})
	}

	if c.Dispatch.QueueMaxSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "dispatch.queue_max_size",
			Value:   c.Dispatch.QueueMaxSize,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validatePool validates the PoolConfig
func (c *Config) validatePool() []ValidationError {
	var errors []ValidationError

	if c.Pool.Floor < 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.floor",
			Value:   c.Pool.Floor,
			Message: "must be at least 1",
		})
	}

	if c.Pool.MaxWorkers < c.Pool.Floor {
		errors = append(errors, ValidationError{
			Field:   "pool.max_workers",
			Value:   c.Pool.MaxWorkers,
			Message: fmt.Sprintf("must be at least the floor (%d)", c.Pool.Floor),
		})
	}

	if c.Pool.InitialWorkers < c.Pool.Floor || c.Pool.InitialWorkers > c.Pool.MaxWorkers {
		errors = append(errors, ValidationError{
			Field:   "pool.initial_workers",
			Value:   c.Pool.InitialWorkers,
			Message: fmt.Sprintf("must be between floor (%d) and max_workers (%d)", c.Pool.Floor, c.Pool.MaxWorkers),
		})
	}

	if c.Pool.CPUHighRatio <= 0 || c.Pool.CPUHighRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.cpu_high_ratio",
			Value:   c.Pool.CPUHighRatio,
			Message: "must be in (0, 1]",
		})
	}

	if c.Pool.QueueHighRatio <= 0 || c.Pool.QueueHighRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.queue_high_ratio",
			Value:   c.Pool.QueueHighRatio,
			Message: "must be in (0, 1]",
		})
	}

	if c.Pool.QueueLowRatio <= 0 || c.Pool.QueueLowRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.queue_low_ratio",
			Value:   c.Pool.QueueLowRatio,
			Message: "must be in (0, 1]",
		})
	}

	if c.Pool.QueueLowRatio >= c.Pool.QueueHighRatio {
		errors = append(errors, ValidationError{
			Field:   "pool.queue_low_ratio",
			Value:   c.Pool.QueueLowRatio,
			Message: fmt.Sprintf("must be below queue_high_ratio (%v)", c.Pool.QueueHighRatio),
		})
	}

	if c.Pool.ResizeIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.resize_interval_seconds",
			Value:   c.Pool.ResizeIntervalSeconds,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateHealth validates the HealthConfig
func (c *Config) validateHealth() []ValidationError {
	var errors []ValidationError

	if c.Health.IntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "health.interval_seconds",
			Value:   c.Health.IntervalSeconds,
			Message: "must be at least 1",
		})
	}

	if c.Health.ProbeTimeoutMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "health.probe_timeout_ms",
			Value:   c.Health.ProbeTimeoutMs,
			Message: "must be at least 1",
		})
	}

	// A probe sweep must fit within the sweep interval
	if c.Health.ProbeTimeout() > c.Health.Interval() {
		errors = append(errors, ValidationError{
			Field:   "health.probe_timeout_ms",
			Value:   c.Health.ProbeTimeoutMs,
			Message: fmt.Sprintf("must not exceed interval_seconds (%d)", c.Health.IntervalSeconds),
		})
	}

	return errors
}

// validateBridge validates the BridgeConfig
func (c *Config) validateBridge() []ValidationError {
	var errors []ValidationError

	if c.Bridge.CallTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "bridge.call_timeout_seconds",
			Value:   c.Bridge.CallTimeoutSeconds,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be at least 1",
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateTelemetry validates the TelemetryConfig
func (c *Config) validateTelemetry() []ValidationError {
	var errors []ValidationError

	if c.Telemetry.Enabled && c.Telemetry.ListenAddr == "" {
		errors = append(errors, ValidationError{
			Field:   "telemetry.listen_addr",
			Value:   c.Telemetry.ListenAddr,
			Message: "must be set when telemetry is enabled",
		})
	}

	if c.Telemetry.ReportIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "telemetry.report_interval_seconds",
			Value:   c.Telemetry.ReportIntervalSeconds,
			Message: "must be at least 1",
		})
	}

	return errors
}
