package master

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/mikeyhodl/quote-bot/internal/bridge"
	"github.com/mikeyhodl/quote-bot/internal/config"
	"github.com/mikeyhodl/quote-bot/internal/dispatch"
	"github.com/mikeyhodl/quote-bot/internal/errors"
	"github.com/mikeyhodl/quote-bot/internal/event"
	"github.com/mikeyhodl/quote-bot/internal/health"
	"github.com/mikeyhodl/quote-bot/internal/logging"
	"github.com/mikeyhodl/quote-bot/internal/pool"
	"github.com/mikeyhodl/quote-bot/internal/queue/inmem"
	"github.com/mikeyhodl/quote-bot/internal/routing"
	"github.com/mikeyhodl/quote-bot/internal/telemetry"
)

// maxUpdateBytes bounds the body of a single ingested update.
const maxUpdateBytes = 1 << 20

// httpShutdownTimeout bounds how long the metrics server may take to
// finish in-flight requests during shutdown.
const httpShutdownTimeout = 5 * time.Second

// Option configures a Master.
type Option func(*Master)

// WithLogger sets the logger. Without it one is built from the config's
// logging section.
func WithLogger(l *logging.Logger) Option {
	return func(m *Master) { m.logger = l }
}

// WithClock sets the clock shared by all periodic loops. Tests inject a
// fake.
func WithClock(c clockwork.Clock) Option {
	return func(m *Master) { m.clock = c }
}

// WithSpawner overrides the worker spawner.
func WithSpawner(s pool.Spawner) Option {
	return func(m *Master) { m.spawner = s }
}

// WithMessenger sets the bot-platform messaging client.
func WithMessenger(c bridge.MessagingClient) Option {
	return func(m *Master) { m.messenger = c }
}

// WithInvoker sets the privileged call backend.
func WithInvoker(i bridge.PrivilegedInvoker) Option {
	return func(m *Master) { m.invoker = i }
}

// Master owns the engine's components and their run loops.
type Master struct {
	cfg    *config.Config
	logger *logging.Logger
	clock  clockwork.Clock

	spawner   pool.Spawner
	messenger bridge.MessagingClient
	invoker   bridge.PrivilegedInvoker

	bus        *event.Bus
	queue      *inmem.Queue
	registry   *pool.Registry
	supervisor *pool.Supervisor
	dispatcher *dispatch.Dispatcher
	monitor    *health.Monitor
	bridge     *bridge.Bridge
	host       *telemetry.Host
	metrics    *telemetry.Metrics
	reporter   *telemetry.Reporter
}

// New builds a Master from the given configuration.
func New(cfg *config.Config, opts ...Option) (*Master, error) {
	m := &Master{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		logger, err := logging.NewLogger(cfg.Logging.Path, cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		})
		if err != nil {
			return nil, fmt.Errorf("master: logger: %w", err)
		}
		if !cfg.Logging.Enabled {
			logger = logging.NopLogger()
		}
		m.logger = logger
	}

	if m.spawner == nil {
		binary := cfg.Pool.WorkerBinary
		if binary == "" {
			self, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("master: resolve worker binary: %w", err)
			}
			binary = self
		}
		m.spawner = &pool.ExecSpawner{Binary: binary, Args: cfg.Pool.WorkerArgs}
	}
	if m.messenger == nil {
		m.messenger = &logMessenger{logger: m.logger.WithComponent("messenger")}
	}
	if m.invoker == nil {
		m.invoker = &logInvoker{logger: m.logger.WithComponent("invoker")}
	}

	m.bus = event.NewBus()
	m.queue = inmem.New(cfg.Dispatch.QueueMaxSize)
	m.registry = pool.NewRegistry(m.logger)
	m.host = telemetry.NewHost()

	m.supervisor = pool.NewSupervisor(m.registry, m.spawner,
		pool.WithLogger(m.logger),
		pool.WithBus(m.bus),
		pool.WithClock(m.clock),
		pool.WithQueue(m.queue),
		pool.WithResizePolicy(policyFromConfig(cfg)),
		pool.WithResizeInterval(cfg.Pool.ResizeInterval()),
		pool.WithCPUSource(m.host.CPURatio),
	)

	m.dispatcher = dispatch.NewDispatcher(m.registry, m.queue,
		dispatch.WithLogger(m.logger),
		dispatch.WithBus(m.bus),
		dispatch.WithCapacity(cfg.Dispatch.Capacity),
	)

	m.monitor = health.NewMonitor(m.registry,
		health.WithLogger(m.logger),
		health.WithBus(m.bus),
		health.WithClock(m.clock),
		health.WithInterval(cfg.Health.Interval()),
		health.WithProbeTimeout(cfg.Health.ProbeTimeout()),
	)

	m.bridge = bridge.New(m.registry, m.dispatcher, m.messenger, m.invoker,
		bridge.WithLogger(m.logger),
		bridge.WithCallTimeout(cfg.Bridge.CallTimeout()),
		bridge.WithPongHandler(m.monitor),
	)

	m.supervisor.SetInboundHandler(m.bridge.HandleInbound)
	m.supervisor.SetDrainer(m.dispatcher)

	m.metrics = telemetry.NewMetrics()
	m.reporter = telemetry.NewReporter(m.registry, m.queue, m.host, m.metrics,
		telemetry.WithLogger(m.logger),
		telemetry.WithClock(m.clock),
		telemetry.WithInterval(cfg.Telemetry.ReportInterval()),
	)

	return m, nil
}

// policyFromConfig builds a resize policy from the pool config section.
func policyFromConfig(cfg *config.Config) *pool.Policy {
	return pool.NewPolicy(
		pool.WithFloor(cfg.Pool.Floor),
		pool.WithMaxWorkers(cfg.Pool.MaxWorkers),
		pool.WithCPUHigh(cfg.Pool.CPUHighRatio),
		pool.WithQueueThresholds(cfg.Pool.QueueHighRatio, cfg.Pool.QueueLowRatio),
	)
}

// Submit hands one update to the dispatcher.
func (m *Master) Submit(u routing.Update) error {
	return m.dispatcher.Submit(u)
}

// ApplyConfig applies the reloadable parts of a new configuration:
// per-worker capacity and the resize thresholds. Everything else needs a
// restart.
func (m *Master) ApplyConfig(cfg *config.Config) {
	m.dispatcher.SetCapacity(cfg.Dispatch.Capacity)
	m.supervisor.SetResizePolicy(policyFromConfig(cfg))
	m.logger.Info("config applied",
		"capacity", cfg.Dispatch.Capacity,
		"floor", cfg.Pool.Floor,
		"max_workers", cfg.Pool.MaxWorkers)
	m.dispatcher.Drain()
}

// Run bootstraps the pool and blocks until the context is cancelled or a
// run-loop goroutine fails. Workers are terminated on the way out.
func (m *Master) Run(ctx context.Context) error {
	if err := m.supervisor.Bootstrap(ctx, m.cfg.Pool.InitialWorkers); err != nil {
		return fmt.Errorf("master: bootstrap: %w", err)
	}
	m.logger.Info("engine started",
		"workers", m.cfg.Pool.InitialWorkers,
		"capacity", m.cfg.Dispatch.Capacity)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(m.protect(gctx, "supervisor", m.supervisor.Run))
	g.Go(m.protect(gctx, "health", m.monitor.Run))
	g.Go(m.protect(gctx, "reporter", m.reporter.Run))

	if m.cfg.Telemetry.Enabled {
		srv := &http.Server{
			Addr:    m.cfg.Telemetry.ListenAddr,
			Handler: m.httpHandler(),
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("master: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()

	m.supervisor.Shutdown()
	m.logger.Info("engine stopped")
	_ = m.logger.Close()

	return exitErr(err)
}

// exitErr filters cancellations, wrapped or bare, out of Run's result so
// an orderly shutdown exits zero.
func exitErr(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// protect wraps a run loop so an escaping panic becomes a fatal error
// instead of taking the process down with half the engine still running.
// The errgroup cancels the sibling loops and Run terminates the workers.
func (m *Master) protect(ctx context.Context, name string, fn func(context.Context)) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("fatal panic", "goroutine", name, "panic", fmt.Sprint(r))
				err = fmt.Errorf("master: %s panicked: %v", name, r)
			}
		}()
		fn(ctx)
		return nil
	}
}

// httpHandler serves the metrics endpoint plus a minimal update ingest
// endpoint so the engine can be driven without a platform client.
func (m *Master) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.metrics.Handler())
	mux.HandleFunc("/updates", m.handleIngest)
	return mux
}

func (m *Master) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if err := m.Submit(routing.Parse(body)); err != nil {
		m.logger.Error("ingest failed", "error", err)
		http.Error(w, "submit", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
