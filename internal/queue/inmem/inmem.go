// Package inmem provides the in-memory overflow queue used by the
// dispatcher. Two FIFO tiers (command, default) back the priority ordering;
// backpressure latches when depth reaches the configured bound and lifts
// once depth falls below the low-water mark.
package inmem

import (
	"sync"

	"github.com/mikeyhodl/quote-bot/internal/errors"
	"github.com/mikeyhodl/quote-bot/internal/queue"
	"github.com/mikeyhodl/quote-bot/internal/routing"
)

// DefaultMaxSize bounds the queue when no size is configured.
const DefaultMaxSize = 1000

// lowWaterRatio is the fraction of MaxSize below which backpressure lifts.
const lowWaterRatio = 0.25

// Queue is a mutex-guarded, two-tier FIFO implementation of queue.Queue.
type Queue struct {
	mu       sync.Mutex
	command  []*queue.Item
	standard []*queue.Item
	maxSize  int
	lowWater int
	paused   bool

	totalEnqueued uint64
	totalDequeued uint64
	peakDepth     int
	pauseCount    uint64
}

var _ queue.Queue = (*Queue)(nil)

// New creates a Queue bounded at maxSize. Non-positive sizes fall back to
// DefaultMaxSize.
func New(maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	lowWater := int(float64(maxSize) * lowWaterRatio)
	if lowWater < 1 {
		lowWater = 1
	}
	return &Queue{
		maxSize:  maxSize,
		lowWater: lowWater,
	}
}

// IsPaused reports whether backpressure is engaged.
func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Add enqueues the item at the back of its tier. Reaching capacity engages
// backpressure but never rejects the item; only a nil item fails.
func (q *Queue) Add(item *queue.Item) error {
	if item == nil {
		return errors.ErrNilItem
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.push(item, false)
	q.totalEnqueued++

	if q.depth() >= q.maxSize && !q.paused {
		q.paused = true
		q.pauseCount++
	}
	return nil
}

// PushFront returns the item to the front of its tier. Depth accounting is
// unchanged because the item was never counted as dequeued by the caller's
// failed delivery.
func (q *Queue) PushFront(item *queue.Item) {
	if item == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.push(item, true)
	// Not a fresh enqueue; undo the dequeue count of the delivery being
	// reversed. A PushFront without a matching Next must not wrap the
	// counter.
	if q.totalDequeued > 0 {
		q.totalDequeued--
	}
}

// HasUpdates reports whether any item is queued.
func (q *Queue) HasUpdates() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth() > 0
}

// Next removes and returns the oldest item from the highest non-empty
// tier, or nil when the queue is empty.
func (q *Queue) Next() *queue.Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var item *queue.Item
	switch {
	case len(q.command) > 0:
		item = q.command[0]
		q.command = q.command[1:]
	case len(q.standard) > 0:
		item = q.standard[0]
		q.standard = q.standard[1:]
	default:
		return nil
	}
	q.totalDequeued++
	return item
}

// ShouldResume reports whether backpressure can lift.
func (q *Queue) ShouldResume() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused && q.depth() < q.lowWater
}

// Resume lifts backpressure.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
}

// Pause engages backpressure.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.paused {
		q.paused = true
		q.pauseCount++
	}
}

// Status returns a snapshot of current state.
func (q *Queue) Status() queue.Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return queue.Status{
		Depth:        q.depth(),
		CommandDepth: len(q.command),
		DefaultDepth: len(q.standard),
		Paused:       q.paused,
	}
}

// Metrics returns cumulative counters.
func (q *Queue) Metrics() queue.Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return queue.Metrics{
		TotalEnqueued: q.totalEnqueued,
		TotalDequeued: q.totalDequeued,
		PeakDepth:     q.peakDepth,
		PauseCount:    q.pauseCount,
	}
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth()
}

// MaxSize returns the configured capacity bound.
func (q *Queue) MaxSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxSize
}

// push appends or prepends within the item's tier. Caller holds q.mu.
func (q *Queue) push(item *queue.Item, front bool) {
	tier := &q.standard
	if item.Priority == routing.PriorityCommand {
		tier = &q.command
	}
	if front {
		*tier = append([]*queue.Item{item}, *tier...)
	} else {
		*tier = append(*tier, item)
	}
	if d := q.depth(); d > q.peakDepth {
		q.peakDepth = d
	}
}

// depth returns the total queued count. Caller holds q.mu.
func (q *Queue) depth() int {
	return len(q.command) + len(q.standard)
}
