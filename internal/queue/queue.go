package queue

import (
	"encoding/json"
	"time"

	"github.com/mikeyhodl/quote-bot/internal/routing"
)

// Item is one unit of overflow work. The target slot is resolved when the
// item is enqueued and is not re-resolved while it waits; consumers must
// handle the slot disappearing before delivery.
type Item struct {
	Payload    json.RawMessage  // Raw update, opaque to the queue
	Key        string           // Routing key the slot was resolved from
	Slot       int              // Target slot index at enqueue time
	Priority   routing.Priority // Ordering tier
	EnqueuedAt time.Time
}

// Status is a point-in-time snapshot of queue state.
type Status struct {
	Depth        int  // Total queued items
	CommandDepth int  // Items in the command tier
	DefaultDepth int  // Items in the default tier
	Paused       bool // Whether global backpressure is engaged
}

// Metrics are cumulative counters over the queue's lifetime.
type Metrics struct {
	TotalEnqueued uint64 // Items accepted by Add
	TotalDequeued uint64 // Items handed out by Next
	PeakDepth     int    // Highest depth ever observed
	PauseCount    uint64 // Times backpressure engaged
}

// Queue holds overflow items ordered by priority tier, FIFO within a tier,
// and tracks global pause state. Implementations must be safe for
// concurrent use.
type Queue interface {
	// IsPaused reports whether global backpressure is engaged.
	IsPaused() bool

	// Add enqueues an item at the back of its priority tier. Adding the
	// item that fills the queue to capacity engages backpressure; the item
	// is still accepted. Add fails only on a nil item.
	Add(item *Item) error

	// PushFront returns an item to the front of its priority tier. Used
	// when a drain attempt could not deliver the item.
	PushFront(item *Item)

	// HasUpdates reports whether any item is queued.
	HasUpdates() bool

	// Next removes and returns the highest-priority, oldest item, or nil
	// when the queue is empty.
	Next() *Item

	// ShouldResume reports whether backpressure can lift, i.e. the queue
	// is paused and depth has fallen below the low-water mark.
	ShouldResume() bool

	// Resume lifts backpressure.
	Resume()

	// Pause engages backpressure.
	Pause()

	// Status returns a snapshot of current state.
	Status() Status

	// Metrics returns cumulative counters.
	Metrics() Metrics

	// Len returns the number of queued items.
	Len() int

	// MaxSize returns the configured capacity bound.
	MaxSize() int
}
