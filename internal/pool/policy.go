package pool

import "fmt"

// Default policy values.
const (
	defaultFloorWorkers = 1
	defaultMaxWorkers   = 16
	defaultCPUHigh      = 0.85
	defaultQueueHigh    = 0.70
	defaultQueueLow     = 0.30
)

// Action represents a resize decision action.
type Action string

const (
	// ActionGrow indicates one worker should be added.
	ActionGrow Action = "grow"

	// ActionShrink indicates one worker should be removed.
	ActionShrink Action = "shrink"

	// ActionHold indicates no change.
	ActionHold Action = "hold"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// Decision is the result of evaluating the resize policy.
type Decision struct {
	// Action is the recommended resize action.
	Action Action

	// Target is the worker count after applying the decision.
	Target int

	// Reason is a human-readable explanation.
	Reason string
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithFloor sets the minimum worker count the pool never shrinks below.
func WithFloor(n int) PolicyOption {
	return func(p *Policy) { p.floor = n }
}

// WithMaxWorkers sets the maximum worker count.
func WithMaxWorkers(n int) PolicyOption {
	return func(p *Policy) { p.maxWorkers = n }
}

// WithCPUHigh sets the normalized CPU threshold above which the pool grows.
// Shrinking requires CPU below half this value.
func WithCPUHigh(v float64) PolicyOption {
	return func(p *Policy) { p.cpuHigh = v }
}

// WithQueueThresholds sets the queue occupancy ratios for growing and
// shrinking.
func WithQueueThresholds(high, low float64) PolicyOption {
	return func(p *Policy) {
		p.queueHigh = high
		p.queueLow = low
	}
}

// Policy decides whether the pool should grow or shrink by one worker.
// Growth triggers on either pressure signal; shrinking requires both
// signals to be quiet. One step per evaluation keeps resizing smooth.
type Policy struct {
	floor      int
	maxWorkers int
	cpuHigh    float64
	queueHigh  float64
	queueLow   float64
}

// NewPolicy creates a Policy with the given options.
// Unset options use defaults.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		floor:      defaultFloorWorkers,
		maxWorkers: defaultMaxWorkers,
		cpuHigh:    defaultCPUHigh,
		queueHigh:  defaultQueueHigh,
		queueLow:   defaultQueueLow,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Floor returns the configured minimum worker count.
func (p *Policy) Floor() int {
	return p.floor
}

// Evaluate inspects the pressure signals and current worker count,
// returning a single-step resize decision.
func (p *Policy) Evaluate(cpuRatio, queueRatio float64, current int) Decision {
	if cpuRatio > p.cpuHigh || queueRatio > p.queueHigh {
		if current >= p.maxWorkers {
			return Decision{
				Action: ActionHold,
				Target: current,
				Reason: fmt.Sprintf("pressure high but pool at maximum (%d)", p.maxWorkers),
			}
		}
		return Decision{
			Action: ActionGrow,
			Target: current + 1,
			Reason: fmt.Sprintf("cpu %.2f > %.2f or queue %.2f > %.2f", cpuRatio, p.cpuHigh, queueRatio, p.queueHigh),
		}
	}

	if cpuRatio < p.cpuHigh/2 && queueRatio < p.queueLow {
		if current <= p.floor {
			return Decision{
				Action: ActionHold,
				Target: current,
				Reason: fmt.Sprintf("load low but pool at floor (%d)", p.floor),
			}
		}
		return Decision{
			Action: ActionShrink,
			Target: current - 1,
			Reason: fmt.Sprintf("cpu %.2f < %.2f and queue %.2f < %.2f", cpuRatio, p.cpuHigh/2, queueRatio, p.queueLow),
		}
	}

	return Decision{
		Action: ActionHold,
		Target: current,
		Reason: "load within thresholds",
	}
}
