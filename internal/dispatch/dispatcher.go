package dispatch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mikeyhodl/quote-bot/internal/errors"
	"github.com/mikeyhodl/quote-bot/internal/event"
	"github.com/mikeyhodl/quote-bot/internal/ipc"
	"github.com/mikeyhodl/quote-bot/internal/logging"
	"github.com/mikeyhodl/quote-bot/internal/pool"
	"github.com/mikeyhodl/quote-bot/internal/queue"
	"github.com/mikeyhodl/quote-bot/internal/routing"
)

// DefaultCapacity is the per-worker in-flight bound when none is
// configured.
const DefaultCapacity = 3

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = l.WithComponent("dispatch") }
}

// WithBus sets the event bus.
func WithBus(b *event.Bus) Option {
	return func(d *Dispatcher) { d.bus = b }
}

// WithCapacity sets the per-worker in-flight capacity.
func WithCapacity(n int) Option {
	return func(d *Dispatcher) { d.capacity.Store(int64(n)) }
}

// Dispatcher routes inbound updates to workers through the registry,
// spilling into the overflow queue when a slot is saturated or global
// backpressure is engaged.
type Dispatcher struct {
	registry *pool.Registry
	queue    queue.Queue
	logger   *logging.Logger
	bus      *event.Bus
	capacity atomic.Int64

	// drainMu serializes drain passes so stop-on-first-blockage holds
	// even when completions arrive from several workers at once.
	drainMu sync.Mutex
}

// NewDispatcher creates a Dispatcher over the given registry and queue.
func NewDispatcher(registry *pool.Registry, q queue.Queue, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		queue:    q,
		logger:   logging.NopLogger(),
	}
	d.capacity.Store(DefaultCapacity)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Capacity returns the per-worker in-flight bound.
func (d *Dispatcher) Capacity() int {
	return int(d.capacity.Load())
}

// SetCapacity updates the per-worker in-flight bound. Takes effect for
// subsequent dispatch decisions; in-flight work is unaffected.
func (d *Dispatcher) SetCapacity(n int) {
	if n < 1 {
		n = 1
	}
	d.capacity.Store(int64(n))
}

// Submit routes one inbound update. It is delivered immediately iff
// backpressure is off and the target slot has spare capacity; otherwise it
// is queued with its slot and priority resolved now. Pause state takes
// precedence over spare capacity.
func (d *Dispatcher) Submit(u routing.Update) error {
	key := routing.Identify(u)
	prio := routing.Classify(u)
	slot := routing.Route(key, d.registry.Count())

	if !d.queue.IsPaused() {
		ok, err := d.registry.TryAcquire(slot, d.Capacity())
		if err == nil && ok {
			if err := d.deliver(slot, u.Raw); err == nil {
				return nil
			}
		}
	}

	return d.enqueue(&queue.Item{
		Payload:    u.Raw,
		Key:        key,
		Slot:       slot,
		Priority:   prio,
		EnqueuedAt: time.Now(),
	})
}

// Drain moves queued items to workers while capacity allows. Items come
// out highest-priority-first, FIFO within a tier; an item whose slot is
// full goes back to the front of its tier and the pass stops, so tier
// order is never violated by skipping ahead. Afterwards backpressure is
// lifted if the queue has fallen below its low-water mark.
func (d *Dispatcher) Drain() {
	d.drainMu.Lock()
	defer d.drainMu.Unlock()

	for d.queue.HasUpdates() {
		item := d.queue.Next()
		if item == nil {
			break
		}

		slot, ok := d.place(item)
		if !ok {
			d.queue.PushFront(item)
			break
		}

		if err := d.deliver(slot, item.Payload); err != nil {
			d.queue.PushFront(item)
			break
		}
	}

	if d.queue.ShouldResume() {
		d.queue.Resume()
		d.logger.Info("backpressure lifted", "depth", d.queue.Len())
	}

	d.publishDepth()
}

// place resolves the item's target slot against the current worker set
// and acquires capacity on it. A stale index from before a shrink is
// re-resolved from the routing key rather than dropped.
func (d *Dispatcher) place(item *queue.Item) (int, bool) {
	count := d.registry.Count()
	if count == 0 {
		return 0, false
	}

	slot := item.Slot
	if slot >= count {
		slot = routing.Route(item.Key, count)
		d.logger.Debug("stale slot re-resolved",
			"key", item.Key,
			"old_slot", item.Slot,
			"new_slot", slot)
	}

	ok, err := d.registry.TryAcquire(slot, d.Capacity())
	if err != nil || !ok {
		return 0, false
	}
	return slot, true
}

// deliver sends the payload to the slot's worker, releasing the acquired
// capacity on failure.
func (d *Dispatcher) deliver(slot int, payload []byte) error {
	if err := d.registry.Send(slot, ipc.NewUpdate(payload)); err != nil {
		if derr := d.registry.Decrement(slot); derr != nil && !errors.Is(derr, errors.ErrLedgerUnderflow) {
			d.logger.Warn("release after failed send", "slot", slot, "error", derr)
		}
		d.logger.Warn("delivery failed", "slot", slot, "error", err)
		return errors.NewDispatchError("delivery failed", err).WithSlot(slot)
	}
	return nil
}

// enqueue adds the item to the overflow queue and reports the new depth.
func (d *Dispatcher) enqueue(item *queue.Item) error {
	if err := d.queue.Add(item); err != nil {
		return errors.NewDispatchError("enqueue failed", err).
			WithSlot(item.Slot).
			WithRoutingKey(item.Key)
	}

	if d.bus != nil {
		d.bus.Publish(event.NewUpdateQueuedEvent(item.Slot, item.Key, item.Priority.String()))
	}
	d.publishDepth()
	return nil
}

// publishDepth emits the current queue status.
func (d *Dispatcher) publishDepth() {
	if d.bus == nil {
		return
	}
	st := d.queue.Status()
	d.bus.Publish(event.NewQueueDepthChangedEvent(st.Depth, d.queue.MaxSize(), st.Paused))
}
