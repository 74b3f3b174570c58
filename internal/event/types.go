package event

import "time"

// Event type identifiers. Subscribers use these with Bus.Subscribe.
const (
	EventUpdateQueued      = "update.queued"
	EventQueueDepthChanged = "queue.depth_changed"
	EventWorkerCrashed     = "worker.crashed"
	EventWorkerReplaced    = "worker.replaced"
	EventScalingDecision   = "pool.scaling_decision"
	EventProbeFailed       = "health.probe_failed"
	EventHealthScored      = "health.scored"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "queue.depth_changed",
	// "worker.crashed").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// UpdateQueuedEvent is emitted when an update overflows into the queue
// instead of being delivered immediately.
type UpdateQueuedEvent struct {
	baseEvent
	Slot       int    // Target slot resolved at enqueue time
	RoutingKey string // Routing key of the queued update
	Priority   string // Priority tier name
}

// NewUpdateQueuedEvent creates an UpdateQueuedEvent.
func NewUpdateQueuedEvent(slot int, routingKey, priority string) UpdateQueuedEvent {
	return UpdateQueuedEvent{
		baseEvent:  newBaseEvent(EventUpdateQueued),
		Slot:       slot,
		RoutingKey: routingKey,
		Priority:   priority,
	}
}

// QueueDepthChangedEvent is emitted whenever the overflow queue's depth
// changes. Telemetry and scaling both consume it.
type QueueDepthChangedEvent struct {
	baseEvent
	Depth   int  // Current queue depth
	MaxSize int  // Configured queue bound
	Paused  bool // Whether global backpressure is engaged
}

// NewQueueDepthChangedEvent creates a QueueDepthChangedEvent.
func NewQueueDepthChangedEvent(depth, maxSize int, paused bool) QueueDepthChangedEvent {
	return QueueDepthChangedEvent{
		baseEvent: newBaseEvent(EventQueueDepthChanged),
		Depth:     depth,
		MaxSize:   maxSize,
		Paused:    paused,
	}
}

// WorkerCrashedEvent is emitted when a worker process exits unexpectedly.
type WorkerCrashedEvent struct {
	baseEvent
	Slot     int // Slot index of the dead worker
	PID      int // Process id of the dead worker
	LostLoad int // In-flight load discarded with the crash
}

// NewWorkerCrashedEvent creates a WorkerCrashedEvent.
func NewWorkerCrashedEvent(slot, pid, lostLoad int) WorkerCrashedEvent {
	return WorkerCrashedEvent{
		baseEvent: newBaseEvent(EventWorkerCrashed),
		Slot:      slot,
		PID:       pid,
		LostLoad:  lostLoad,
	}
}

// WorkerReplacedEvent is emitted when a crashed worker has been replaced
// in place by a fresh process.
type WorkerReplacedEvent struct {
	baseEvent
	Slot   int // Slot index, unchanged across the replacement
	OldPID int // Process id of the dead worker
	NewPID int // Process id of the replacement
}

// NewWorkerReplacedEvent creates a WorkerReplacedEvent.
func NewWorkerReplacedEvent(slot, oldPID, newPID int) WorkerReplacedEvent {
	return WorkerReplacedEvent{
		baseEvent: newBaseEvent(EventWorkerReplaced),
		Slot:      slot,
		OldPID:    oldPID,
		NewPID:    newPID,
	}
}

// ScalingDecisionEvent is emitted when the supervisor decides to grow or
// shrink the pool.
type ScalingDecisionEvent struct {
	baseEvent
	Action      string  // "grow" or "shrink"
	FromWorkers int     // Pool size before applying the decision
	ToWorkers   int     // Pool size after applying the decision
	CPURatio    float64 // Normalized CPU load that informed the decision
	QueueRatio  float64 // Queue occupancy that informed the decision
	Reason      string  // Human-readable explanation
}

// NewScalingDecisionEvent creates a ScalingDecisionEvent.
func NewScalingDecisionEvent(action string, from, to int, cpuRatio, queueRatio float64, reason string) ScalingDecisionEvent {
	return ScalingDecisionEvent{
		baseEvent:   newBaseEvent(EventScalingDecision),
		Action:      action,
		FromWorkers: from,
		ToWorkers:   to,
		CPURatio:    cpuRatio,
		QueueRatio:  queueRatio,
		Reason:      reason,
	}
}

// ProbeFailedEvent is emitted when a health probe to a worker fails or
// times out.
type ProbeFailedEvent struct {
	baseEvent
	Slot   int    // Slot index of the probed worker
	Reason string // Failure description
}

// NewProbeFailedEvent creates a ProbeFailedEvent.
func NewProbeFailedEvent(slot int, reason string) ProbeFailedEvent {
	return ProbeFailedEvent{
		baseEvent: newBaseEvent(EventProbeFailed),
		Slot:      slot,
		Reason:    reason,
	}
}

// HealthScoredEvent is emitted after a full health sweep with the fresh
// score for each slot.
type HealthScoredEvent struct {
	baseEvent
	Scores map[int]int // slot index -> health score
}

// NewHealthScoredEvent creates a HealthScoredEvent. The map is copied so
// handlers can hold it without racing the monitor.
func NewHealthScoredEvent(scores map[int]int) HealthScoredEvent {
	cp := make(map[int]int, len(scores))
	for k, v := range scores {
		cp[k] = v
	}
	return HealthScoredEvent{
		baseEvent: newBaseEvent(EventHealthScored),
		Scores:    cp,
	}
}
