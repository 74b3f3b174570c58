package telemetry

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mikeyhodl/quote-bot/internal/logging"
	"github.com/mikeyhodl/quote-bot/internal/pool"
	"github.com/mikeyhodl/quote-bot/internal/queue"
)

// DefaultReportInterval spaces status reports.
const DefaultReportInterval = 30 * time.Second

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithLogger sets the reporter's logger.
func WithLogger(l *logging.Logger) ReporterOption {
	return func(r *Reporter) { r.logger = l.WithComponent("telemetry") }
}

// WithClock sets the clock. Tests inject a fake.
func WithClock(c clockwork.Clock) ReporterOption {
	return func(r *Reporter) { r.clock = c }
}

// WithInterval sets the spacing between reports.
func WithInterval(d time.Duration) ReporterOption {
	return func(r *Reporter) { r.interval = d }
}

// Reporter periodically snapshots the pool, queue, and host, updating the
// Prometheus gauges and emitting one structured status line per cycle.
type Reporter struct {
	registry *pool.Registry
	queue    queue.Queue
	host     *Host
	metrics  *Metrics
	logger   *logging.Logger
	clock    clockwork.Clock
	interval time.Duration
}

// NewReporter creates a Reporter.
func NewReporter(registry *pool.Registry, q queue.Queue, host *Host, metrics *Metrics, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		registry: registry,
		queue:    q,
		host:     host,
		metrics:  metrics,
		logger:   logging.NopLogger(),
		clock:    clockwork.NewRealClock(),
		interval: DefaultReportInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reports on a fixed interval until the context is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.Report()
		}
	}
}

// Report performs one snapshot cycle.
func (r *Reporter) Report() {
	views := r.registry.Snapshot()
	st := r.queue.Status()
	r.metrics.ObserveSlots(views)
	r.metrics.ObserveQueue(st)

	totalLoad := 0
	for _, v := range views {
		totalLoad += v.Load
	}

	args := []any{
		"workers", len(views),
		"total_load", totalLoad,
		"queue_depth", st.Depth,
		"queue_paused", st.Paused,
	}

	cpu, cpuErr := r.host.CPURatio()
	memUsed, memErr := r.host.MemoryUsedBytes()
	if cpuErr == nil {
		args = append(args, "cpu_ratio", cpu)
	}
	if memErr == nil {
		args = append(args, "memory_used_bytes", memUsed)
	}
	if cpuErr == nil || memErr == nil {
		r.metrics.ObserveHost(cpu, memUsed)
	}
	if up, err := r.host.Uptime(); err == nil {
		args = append(args, "host_uptime", up.String())
	}

	r.logger.Info("status", args...)
}
