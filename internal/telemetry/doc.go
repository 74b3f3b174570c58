// Package telemetry exposes the engine's operational state: Prometheus
// gauges for per-worker load and health, queue depth, and host pressure,
// plus a periodic structured-log status line. The host sampler also feeds
// the supervisor's CPU signal.
package telemetry
