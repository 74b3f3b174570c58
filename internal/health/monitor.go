// Package health scores worker responsiveness. On a fixed interval the
// monitor pings every slot over the control channel and combines round-trip
// latency with current load into a bounded score. Scores feed the
// supervisor's shrink selection only; they never gate dispatch.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mikeyhodl/quote-bot/internal/event"
	"github.com/mikeyhodl/quote-bot/internal/ipc"
	"github.com/mikeyhodl/quote-bot/internal/logging"
	"github.com/mikeyhodl/quote-bot/internal/pool"
)

// Defaults for the probe cycle.
const (
	DefaultInterval     = 15 * time.Second
	DefaultProbeTimeout = 2 * time.Second
)

// Score weighting. A probe that takes the full timeout loses
// latencyWeight points; each unit of in-flight load costs loadPenalty
// points. A failed probe scores zero outright.
const (
	latencyWeight = 50
	loadPenalty   = 5
)

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor's logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) { m.logger = l.WithComponent("health") }
}

// WithBus sets the event bus.
func WithBus(b *event.Bus) Option {
	return func(m *Monitor) { m.bus = b }
}

// WithClock sets the clock. Tests inject a fake.
func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithInterval sets the spacing between sweeps.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithProbeTimeout bounds each individual probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.probeTimeout = d }
}

// Monitor probes workers and writes health scores through the registry.
type Monitor struct {
	registry     *pool.Registry
	logger       *logging.Logger
	bus          *event.Bus
	clock        clockwork.Clock
	interval     time.Duration
	probeTimeout time.Duration

	mu      sync.Mutex
	pending map[string]chan struct{} // correlation id -> probe waiter
}

// NewMonitor creates a Monitor over the given registry.
func NewMonitor(registry *pool.Registry, opts ...Option) *Monitor {
	m := &Monitor{
		registry:     registry,
		logger:       logging.NopLogger(),
		clock:        clockwork.NewRealClock(),
		interval:     DefaultInterval,
		probeTimeout: DefaultProbeTimeout,
		pending:      make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run sweeps on a fixed interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Sweep(ctx)
		}
	}
}

// Sweep probes every current slot concurrently, so one hung worker cannot
// stall scoring of the rest, and records the resulting scores.
func (m *Monitor) Sweep(ctx context.Context) {
	views := m.registry.Snapshot()
	if len(views) == 0 {
		return
	}

	type result struct {
		slot  int
		score int
	}
	results := make(chan result, len(views))

	var wg sync.WaitGroup
	for _, v := range views {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- result{slot: v.Index, score: m.probe(ctx, v)}
		}()
	}
	wg.Wait()
	close(results)

	scores := make(map[int]int, len(views))
	for r := range results {
		scores[r.slot] = r.score
		if err := m.registry.SetHealth(r.slot, r.score); err != nil {
			// Slot removed mid-sweep; its score is moot.
			continue
		}
	}

	if m.bus != nil {
		m.bus.Publish(event.NewHealthScoredEvent(scores))
	}
}

// HandlePong completes the pending probe with the pong's correlation id.
// Pongs for unknown or already-expired probes are dropped.
func (m *Monitor) HandlePong(env ipc.Envelope) {
	m.mu.Lock()
	ch, ok := m.pending[env.CorrelationID]
	if ok {
		delete(m.pending, env.CorrelationID)
	}
	m.mu.Unlock()

	if ok {
		close(ch)
	}
}

// probe pings one slot and converts the outcome to a score. Failures and
// timeouts degrade the slot to zero rather than propagating an error.
func (m *Monitor) probe(ctx context.Context, v pool.SlotView) int {
	ping := ipc.NewPing()
	ch := make(chan struct{})

	m.mu.Lock()
	m.pending[ping.CorrelationID] = ch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, ping.CorrelationID)
		m.mu.Unlock()
	}()

	start := m.clock.Now()
	if err := m.registry.Send(v.Index, ping); err != nil {
		m.probeFailed(v.Index, "send failed: "+err.Error())
		return 0
	}

	select {
	case <-ch:
	case <-m.clock.After(m.probeTimeout):
		m.probeFailed(v.Index, "probe timeout")
		return 0
	case <-ctx.Done():
		return 0
	}

	latency := m.clock.Since(start)
	return score(latency, m.probeTimeout, v.Load)
}

// probeFailed logs and publishes a single probe failure.
func (m *Monitor) probeFailed(slot int, reason string) {
	m.logger.Warn("probe failed", "slot", slot, "reason", reason)
	if m.bus != nil {
		m.bus.Publish(event.NewProbeFailedEvent(slot, reason))
	}
}

// score combines probe latency and in-flight load into a bounded value.
// Higher is healthier.
func score(latency, timeout time.Duration, load int) int {
	latencyPart := 0
	if timeout > 0 {
		latencyPart = int(int64(latencyWeight) * int64(latency) / int64(timeout))
	}
	s := pool.MaxHealth - latencyPart - load*loadPenalty
	if s < pool.MinHealth {
		return pool.MinHealth
	}
	if s > pool.MaxHealth {
		return pool.MaxHealth
	}
	return s
}
