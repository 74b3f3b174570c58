package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikeyhodl/quote-bot/internal/pool"
	"github.com/mikeyhodl/quote-bot/internal/queue"
)

// Metrics holds the engine's Prometheus gauges on a private registry so
// multiple instances (and tests) never collide.
type Metrics struct {
	registry *prometheus.Registry

	workerLoad   *prometheus.GaugeVec
	workerHealth *prometheus.GaugeVec
	queueDepth   prometheus.Gauge
	queuePaused  prometheus.Gauge
	hostCPU      prometheus.Gauge
	hostMemory   prometheus.Gauge
}

// NewMetrics creates the gauge set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		workerLoad: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotebot_worker_load",
			Help: "In-flight updates per worker slot.",
		}, []string{"slot"}),
		workerHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotebot_worker_health",
			Help: "Health score per worker slot (0-100).",
		}, []string{"slot"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "quotebot_queue_depth",
			Help: "Items waiting in the overflow queue.",
		}),
		queuePaused: factory.NewGauge(prometheus.GaugeOpts{
			Name: "quotebot_queue_paused",
			Help: "1 while global backpressure is engaged.",
		}),
		hostCPU: factory.NewGauge(prometheus.GaugeOpts{
			Name: "quotebot_host_cpu_ratio",
			Help: "One-minute load average normalized by core count.",
		}),
		hostMemory: factory.NewGauge(prometheus.GaugeOpts{
			Name: "quotebot_host_memory_used_bytes",
			Help: "Physical memory in use on the host.",
		}),
	}
}

// ObserveSlots records per-slot load and health. Stale slot series from
// before a shrink are dropped.
func (m *Metrics) ObserveSlots(views []pool.SlotView) {
	m.workerLoad.Reset()
	m.workerHealth.Reset()
	for _, v := range views {
		slot := strconv.Itoa(v.Index)
		m.workerLoad.WithLabelValues(slot).Set(float64(v.Load))
		m.workerHealth.WithLabelValues(slot).Set(float64(v.Health))
	}
}

// ObserveQueue records queue depth and pause state.
func (m *Metrics) ObserveQueue(st queue.Status) {
	m.queueDepth.Set(float64(st.Depth))
	if st.Paused {
		m.queuePaused.Set(1)
	} else {
		m.queuePaused.Set(0)
	}
}

// ObserveHost records host pressure.
func (m *Metrics) ObserveHost(cpuRatio float64, memUsedBytes uint64) {
	m.hostCPU.Set(cpuRatio)
	m.hostMemory.Set(float64(memUsedBytes))
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for scraping and tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
