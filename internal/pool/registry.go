package pool

import (
	"sync"
	"sync/atomic"

	"github.com/mikeyhodl/quote-bot/internal/errors"
	"github.com/mikeyhodl/quote-bot/internal/ipc"
	"github.com/mikeyhodl/quote-bot/internal/logging"
)

// Health score bounds. New and replaced workers start at DefaultHealth.
const (
	MinHealth     = 0
	MaxHealth     = 100
	DefaultHealth = 50
)

// slotState is one worker plus its load/health bookkeeping. Owned by the
// Registry; never escapes it.
type slotState struct {
	worker Worker
	load   int
	health int
}

// SlotView is a read-only snapshot of one slot.
type SlotView struct {
	Index  int
	PID    int
	Load   int
	Health int
}

// Registry is the single owner of the live slot list and its load/health
// counters. Dispatch, completion, health scoring, and structural mutation
// (crash replacement, resize) all serialize on its mutex. Lookups and
// counter updates hold the lock briefly; process I/O happens outside it.
type Registry struct {
	mu         sync.Mutex
	slots      []*slotState
	logger     *logging.Logger
	underflows atomic.Uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Registry{logger: logger.WithComponent("registry")}
}

// Count returns the current number of slots.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Add appends a fresh slot for the worker and returns its index.
func (r *Registry) Add(w Worker) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.slots = append(r.slots, &slotState{worker: w, health: DefaultHealth})
	return len(r.slots) - 1
}

// Replace installs next in the slot currently occupied by old, resetting
// load and health, and returns the slot index it landed in. The lookup and
// the swap happen under one lock acquisition so a concurrent shrink cannot
// shift the slot list between them and hand the replacement to the wrong
// occupant. Fails when old is no longer registered.
func (r *Registry) Replace(old, next Worker) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.slots {
		if s.worker == old {
			r.slots[i] = &slotState{worker: next, health: DefaultHealth}
			return i, nil
		}
	}
	return 0, errors.ErrSlotNotFound
}

// RemoveLowestHealth removes the slot with the lowest health score,
// compacting the list, and returns the removed worker and its view.
// Fails when the registry is empty.
func (r *Registry) RemoveLowestHealth() (Worker, SlotView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.slots) == 0 {
		return nil, SlotView{}, errors.ErrSlotNotFound
	}

	victim := 0
	for i, s := range r.slots {
		if s.health < r.slots[victim].health {
			victim = i
		}
	}

	s := r.slots[victim]
	view := SlotView{Index: victim, PID: s.worker.PID(), Load: s.load, Health: s.health}
	r.slots = append(r.slots[:victim], r.slots[victim+1:]...)
	return s.worker, view, nil
}

// IndexOf resolves a worker handle to its current slot index. Returns
// false when the worker is no longer registered, which is how deliberate
// removals are told apart from crashes.
func (r *Registry) IndexOf(w Worker) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.slots {
		if s.worker == w {
			return i, true
		}
	}
	return 0, false
}

// TryAcquire atomically checks that the slot's load is strictly below
// capacity and increments it. Returns false without incrementing when the
// slot is at capacity.
func (r *Registry) TryAcquire(slot, capacity int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.at(slot)
	if err != nil {
		return false, err
	}
	if s.load >= capacity {
		return false, nil
	}
	s.load++
	return true, nil
}

// Increment adds one to the slot's in-flight load.
func (r *Registry) Increment(slot int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.at(slot)
	if err != nil {
		return err
	}
	s.load++
	return nil
}

// Decrement subtracts one from the slot's in-flight load, clamping at
// zero. An unmatched decrement is a protocol violation by the worker
// (duplicate or spurious completion); it is logged and counted, and the
// sentinel is returned so callers can observe it, but load stays at zero.
func (r *Registry) Decrement(slot int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.at(slot)
	if err != nil {
		return err
	}
	if s.load == 0 {
		n := r.underflows.Add(1)
		r.logger.Warn("load decrement below zero",
			"slot", slot,
			"total_underflows", n)
		return errors.ErrLedgerUnderflow
	}
	s.load--
	return nil
}

// Load returns the slot's current in-flight load.
func (r *Registry) Load(slot int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.at(slot)
	if err != nil {
		return 0, err
	}
	return s.load, nil
}

// SetHealth records a fresh health score for the slot, clamped to
// [MinHealth, MaxHealth]. Last writer wins.
func (r *Registry) SetHealth(slot, score int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.at(slot)
	if err != nil {
		return err
	}
	if score < MinHealth {
		score = MinHealth
	}
	if score > MaxHealth {
		score = MaxHealth
	}
	s.health = score
	return nil
}

// Health returns the slot's current health score.
func (r *Registry) Health(slot int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.at(slot)
	if err != nil {
		return 0, err
	}
	return s.health, nil
}

// Send delivers an envelope to the slot's worker. The handle is resolved
// under the lock; the pipe write happens outside it so a slow worker
// cannot stall other slots.
func (r *Registry) Send(slot int, env ipc.Envelope) error {
	r.mu.Lock()
	s, err := r.at(slot)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	w := s.worker
	r.mu.Unlock()

	return w.Send(env)
}

// Snapshot returns a view of every slot in index order.
func (r *Registry) Snapshot() []SlotView {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]SlotView, len(r.slots))
	for i, s := range r.slots {
		views[i] = SlotView{Index: i, PID: s.worker.PID(), Load: s.load, Health: s.health}
	}
	return views
}

// Workers returns the current worker handles. Used for shutdown.
func (r *Registry) Workers() []Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws := make([]Worker, len(r.slots))
	for i, s := range r.slots {
		ws[i] = s.worker
	}
	return ws
}

// Underflows returns the lifetime count of clamped decrements.
func (r *Registry) Underflows() uint64 {
	return r.underflows.Load()
}

// at returns the slot at index. Caller holds r.mu.
func (r *Registry) at(index int) (*slotState, error) {
	if index < 0 || index >= len(r.slots) {
		return nil, errors.NewDispatchError("slot lookup failed", errors.ErrSlotNotFound).WithSlot(index)
	}
	return r.slots[index], nil
}
