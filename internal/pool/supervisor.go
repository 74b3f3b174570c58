package pool

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/mikeyhodl/quote-bot/internal/errors"
	"github.com/mikeyhodl/quote-bot/internal/event"
	"github.com/mikeyhodl/quote-bot/internal/ipc"
	"github.com/mikeyhodl/quote-bot/internal/logging"
	"github.com/mikeyhodl/quote-bot/internal/queue"
)

// defaultResizeInterval spaces adaptive resize evaluations.
const defaultResizeInterval = 30 * time.Second

// spawnRetryDelay spaces attempts to replace a crashed worker when the
// replacement itself fails to start.
const spawnRetryDelay = time.Second

// InboundHandler receives envelopes read from a worker's stdout, tagged
// with the worker's current slot index.
type InboundHandler func(slot int, env ipc.Envelope)

// Drainer is the dispatcher's drain entry point. The supervisor calls it
// after crash replacement and after every resize so freed or added
// capacity is used immediately.
type Drainer interface {
	Drain()
}

// CPUSource reports normalized host CPU pressure (load average divided by
// core count).
type CPUSource func() (float64, error)

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithLogger sets the supervisor's logger.
func WithLogger(l *logging.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = l.WithComponent("supervisor") }
}

// WithBus sets the event bus for lifecycle events.
func WithBus(b *event.Bus) SupervisorOption {
	return func(s *Supervisor) { s.bus = b }
}

// WithClock sets the clock used for the resize timer. Tests inject a fake.
func WithClock(c clockwork.Clock) SupervisorOption {
	return func(s *Supervisor) { s.clock = c }
}

// WithResizePolicy sets the resize policy.
func WithResizePolicy(p *Policy) SupervisorOption {
	return func(s *Supervisor) { s.policy = p }
}

// WithResizeInterval sets the spacing between resize evaluations.
func WithResizeInterval(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.interval = d }
}

// WithCPUSource sets the host CPU pressure source.
func WithCPUSource(f CPUSource) SupervisorOption {
	return func(s *Supervisor) { s.cpu = f }
}

// WithQueue sets the overflow queue whose occupancy feeds the resize
// policy.
func WithQueue(q queue.Queue) SupervisorOption {
	return func(s *Supervisor) { s.queue = q }
}

// Supervisor owns worker lifecycle: bootstrap, crash replacement, and
// adaptive resizing. All slot state lives in the Registry; the Supervisor
// holds the process handles only inside its per-worker goroutines.
type Supervisor struct {
	registry *Registry
	spawner  Spawner
	policy   *Policy
	queue    queue.Queue
	logger   *logging.Logger
	bus      *event.Bus
	clock    clockwork.Clock
	cpu      CPUSource
	interval time.Duration

	mu      sync.Mutex
	inbound InboundHandler
	drainer Drainer

	stopping atomic.Bool
	wg       sync.WaitGroup
}

// NewSupervisor creates a Supervisor over the given registry and spawner.
func NewSupervisor(registry *Registry, spawner Spawner, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		registry: registry,
		spawner:  spawner,
		policy:   NewPolicy(),
		logger:   logging.NopLogger(),
		clock:    clockwork.NewRealClock(),
		interval: defaultResizeInterval,
		cpu:      func() (float64, error) { return 0, nil },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetInboundHandler installs the handler for worker-to-master envelopes.
// Set before Bootstrap; envelopes read while no handler is installed are
// dropped.
func (s *Supervisor) SetInboundHandler(h InboundHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound = h
}

// SetDrainer installs the dispatcher's drain hook.
func (s *Supervisor) SetDrainer(d Drainer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainer = d
}

// SetResizePolicy swaps the resize policy. Used for config reload; the
// next evaluation uses the new thresholds.
func (s *Supervisor) SetResizePolicy(p *Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
}

// resizePolicy returns the current policy.
func (s *Supervisor) resizePolicy() *Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// Bootstrap spawns n workers in parallel and registers them as slots
// 0..n-1. Fails if any spawn fails; workers that did start are terminated.
func (s *Supervisor) Bootstrap(ctx context.Context, n int) error {
	workers := make([]Worker, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			w, err := s.spawner.Spawn(gctx)
			if err != nil {
				return errors.NewWorkerError("bootstrap spawn failed", err)
			}
			workers[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, w := range workers {
			if w != nil {
				_ = w.Terminate()
			}
		}
		return err
	}

	for _, w := range workers {
		slot := s.registry.Add(w)
		s.watch(w)
		s.logger.Info("worker started", "slot", slot, "pid", w.PID())
	}
	return nil
}

// Resize grows the pool to target by appending fresh slots, or shrinks it
// by removing the single lowest-health slot. Shrinking removes at most one
// slot per call regardless of how far target is below the current count.
func (s *Supervisor) Resize(ctx context.Context, target int) error {
	if target < s.resizePolicy().Floor() {
		return errors.ErrPoolAtFloor
	}

	current := s.registry.Count()
	switch {
	case target > current:
		for s.registry.Count() < target {
			w, err := s.spawner.Spawn(ctx)
			if err != nil {
				return errors.NewWorkerError("resize spawn failed", err)
			}
			slot := s.registry.Add(w)
			s.watch(w)
			s.logger.Info("worker added", "slot", slot, "pid", w.PID())
		}
	case target < current:
		w, view, err := s.registry.RemoveLowestHealth()
		if err != nil {
			return err
		}
		s.logger.Info("worker removed",
			"slot", view.Index,
			"pid", view.PID,
			"health", view.Health,
			"abandoned_load", view.Load)
		if err := w.Terminate(); err != nil {
			s.logger.Warn("terminate failed", "pid", view.PID, "error", err)
		}
	}

	s.drain()
	return nil
}

// Run evaluates the resize policy on a fixed interval until the context
// is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.resizeStep(ctx)
		}
	}
}

// Shutdown terminates every worker. Crash replacement is disabled first so
// the exits are not treated as failures.
func (s *Supervisor) Shutdown() {
	s.stopping.Store(true)
	for _, w := range s.registry.Workers() {
		_ = w.Terminate()
	}
	s.wg.Wait()
}

// resizeStep performs one policy evaluation and applies its decision.
func (s *Supervisor) resizeStep(ctx context.Context) {
	cpuRatio, err := s.cpu()
	if err != nil {
		s.logger.Warn("cpu sample failed", "error", err)
		cpuRatio = 0
	}

	var queueRatio float64
	if s.queue != nil && s.queue.MaxSize() > 0 {
		queueRatio = float64(s.queue.Len()) / float64(s.queue.MaxSize())
	}

	current := s.registry.Count()
	d := s.resizePolicy().Evaluate(cpuRatio, queueRatio, current)
	if d.Action == ActionHold {
		return
	}

	s.logger.Info("resize decision",
		"action", d.Action.String(),
		"from", current,
		"to", d.Target,
		"cpu_ratio", cpuRatio,
		"queue_ratio", queueRatio,
		"reason", d.Reason)
	if s.bus != nil {
		s.bus.Publish(event.NewScalingDecisionEvent(d.Action.String(), current, d.Target, cpuRatio, queueRatio, d.Reason))
	}

	if err := s.Resize(ctx, d.Target); err != nil {
		s.logger.Error("resize failed", "target", d.Target, "error", err)
	}
}

// watch starts the read and wait loops for a worker.
func (s *Supervisor) watch(w Worker) {
	s.wg.Add(2)
	go s.readLoop(w)
	go s.waitLoop(w)
}

// readLoop forwards envelopes from the worker's stdout to the inbound
// handler, resolving the worker's current slot index per envelope so
// completions land on the right slot even after the list shifts.
func (s *Supervisor) readLoop(w Worker) {
	defer s.wg.Done()

	for {
		env, err := w.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			s.logger.Warn("bad envelope from worker", "pid", w.PID(), "error", err)
			continue
		}

		slot, ok := s.registry.IndexOf(w)
		if !ok {
			// Worker already removed; late messages are dropped.
			continue
		}

		s.mu.Lock()
		h := s.inbound
		s.mu.Unlock()
		if h != nil {
			h(slot, env)
		}
	}
}

// waitLoop blocks on process exit. A worker still present in the registry
// when it exits has crashed and is replaced in place; a worker already
// removed was terminated deliberately.
func (s *Supervisor) waitLoop(w Worker) {
	defer s.wg.Done()

	err := w.Wait()

	if s.stopping.Load() {
		return
	}

	slot, ok := s.registry.IndexOf(w)
	if !ok {
		s.logger.Debug("worker exited after removal", "pid", w.PID())
		return
	}

	lostLoad, _ := s.registry.Load(slot)
	s.logger.Warn("worker crashed",
		"slot", slot,
		"pid", w.PID(),
		"lost_load", lostLoad,
		"exit_error", err)
	if s.bus != nil {
		s.bus.Publish(event.NewWorkerCrashedEvent(slot, w.PID(), lostLoad))
	}

	s.replace(w)
}

// replace spawns a successor and installs it in the crashed worker's slot,
// resetting load and health. The in-flight load of the dead worker is
// discarded; queued items still naming the slot go to the fresh process.
// The slot is resolved by handle at install time, not by the index seen at
// crash time, so a shrink that compacts the list while the spawn is in
// flight cannot make the replacement land on a live worker.
func (s *Supervisor) replace(dead Worker) {
	var next Worker
	for {
		if s.stopping.Load() {
			return
		}
		w, err := s.spawner.Spawn(context.Background())
		if err == nil {
			next = w
			break
		}
		s.logger.Error("replacement spawn failed", "pid", dead.PID(), "error", err)
		s.clock.Sleep(spawnRetryDelay)
	}

	slot, err := s.registry.Replace(dead, next)
	if err != nil {
		// Dead worker removed between crash and replacement (concurrent
		// shrink picked it as the victim).
		s.logger.Warn("worker gone before replacement", "pid", dead.PID())
		_ = next.Terminate()
		return
	}

	s.watch(next)
	s.logger.Info("worker replaced", "slot", slot, "old_pid", dead.PID(), "new_pid", next.PID())
	if s.bus != nil {
		s.bus.Publish(event.NewWorkerReplacedEvent(slot, dead.PID(), next.PID()))
	}

	s.drain()
}

// drain invokes the dispatcher's drain hook if one is installed.
func (s *Supervisor) drain() {
	s.mu.Lock()
	d := s.drainer
	s.mu.Unlock()
	if d != nil {
		d.Drain()
	}
}
