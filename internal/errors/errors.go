// Package errors provides centralized error definitions and handling
// utilities for the quote-bot dispatch engine. It defines domain-specific
// errors, semantic error types, constructors with context wrapping, and
// classification helpers.
//
// Domain-specific errors cover the engine's subsystems:
//   - DispatchError: routing and delivery failures
//   - WorkerError: worker process lifecycle failures
//   - BridgeError: control-plane protocol failures
//
// Semantic errors represent common conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrSlotNotFound) { ... }
//
//	var workerErr *errors.WorkerError
//	if errors.As(err, &workerErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions so callers can import only this
// package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Dispatch-related sentinel errors
var (
	// ErrSlotNotFound indicates a worker slot index that no longer exists.
	ErrSlotNotFound = New("worker slot not found")
	// ErrLedgerUnderflow indicates a completion signal with no matching
	// dispatch, a protocol violation by a worker.
	ErrLedgerUnderflow = New("load decrement below zero")
	// ErrQueueSaturated indicates the overflow queue rejected an item.
	ErrQueueSaturated = New("overflow queue saturated")
	// ErrNilItem indicates a nil item was offered to the queue.
	ErrNilItem = New("nil queue item")
)

// Worker-related sentinel errors
var (
	// ErrWorkerNotRunning indicates an operation that requires a live worker.
	ErrWorkerNotRunning = New("worker not running")
	// ErrWorkerSpawnFailed indicates a worker process failed to start.
	ErrWorkerSpawnFailed = New("worker failed to start")
	// ErrPoolAtFloor indicates a shrink request at the configured minimum.
	ErrPoolAtFloor = New("worker pool at minimum size")
)

// Bridge-related sentinel errors
var (
	// ErrProbeTimeout indicates a health probe did not return in time.
	ErrProbeTimeout = New("health probe timed out")
	// ErrCallTimeout indicates a privileged call reply never arrived.
	ErrCallTimeout = New("privileged call timed out")
	// ErrUnknownKind indicates an envelope kind the bridge does not handle.
	ErrUnknownKind = New("unknown message kind")
	// ErrDuplicateCorrelation indicates a correlation id already in flight.
	ErrDuplicateCorrelation = New("duplicate correlation id")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// EngineError is the base interface for all dispatch-engine errors. It
// extends the standard error interface with classification methods.
type EngineError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the
	// operation may succeed on retry.
	IsRetryable() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }

func (e *baseError) IsRetryable() bool { return e.retryable }

// DispatchError represents errors in routing or delivering updates.
//
// Example:
//
//	err := errors.NewDispatchError("drain aborted", errors.ErrSlotNotFound).
//		WithSlot(3).WithRoutingKey("u:42")
type DispatchError struct {
	baseError
	Slot       int
	RoutingKey string
}

// NewDispatchError creates a new DispatchError.
func NewDispatchError(message string, cause error) *DispatchError {
	return &DispatchError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
		Slot: -1,
	}
}

// WithSlot adds a slot index to the error context.
func (e *DispatchError) WithSlot(slot int) *DispatchError {
	e.Slot = slot
	return e
}

// WithRoutingKey adds a routing key to the error context.
func (e *DispatchError) WithRoutingKey(key string) *DispatchError {
	e.RoutingKey = key
	return e
}

// WithSeverity sets the error severity.
func (e *DispatchError) WithSeverity(s Severity) *DispatchError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *DispatchError) Error() string {
	var parts []string
	if e.Slot >= 0 {
		parts = append(parts, fmt.Sprintf("slot=%d", e.Slot))
	}
	if e.RoutingKey != "" {
		parts = append(parts, fmt.Sprintf("key=%s", e.RoutingKey))
	}

	prefix := "dispatch error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("dispatch error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *DispatchError) Is(target error) bool {
	if _, ok := target.(*DispatchError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// WorkerError represents errors in worker process lifecycle management.
//
// Example:
//
//	err := errors.NewWorkerError("replacement failed", errors.ErrWorkerSpawnFailed).
//		WithSlot(1).WithPID(4242)
type WorkerError struct {
	baseError
	Slot int
	PID  int
}

// NewWorkerError creates a new WorkerError.
func NewWorkerError(message string, cause error) *WorkerError {
	return &WorkerError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
		Slot: -1,
	}
}

// WithSlot adds a slot index to the error context.
func (e *WorkerError) WithSlot(slot int) *WorkerError {
	e.Slot = slot
	return e
}

// WithPID adds a process id to the error context.
func (e *WorkerError) WithPID(pid int) *WorkerError {
	e.PID = pid
	return e
}

// WithSeverity sets the error severity.
func (e *WorkerError) WithSeverity(s Severity) *WorkerError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *WorkerError) WithRetryable(r bool) *WorkerError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *WorkerError) Error() string {
	var parts []string
	if e.Slot >= 0 {
		parts = append(parts, fmt.Sprintf("slot=%d", e.Slot))
	}
	if e.PID != 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", e.PID))
	}

	prefix := "worker error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("worker error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *WorkerError) Is(target error) bool {
	if _, ok := target.(*WorkerError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// BridgeError represents errors in the master-worker control plane.
//
// Example:
//
//	err := errors.NewBridgeError("reply undeliverable", errors.ErrWorkerNotRunning).
//		WithCorrelationID("abc").WithMethod("getChat")
type BridgeError struct {
	baseError
	CorrelationID string
	Method        string
}

// NewBridgeError creates a new BridgeError.
func NewBridgeError(message string, cause error) *BridgeError {
	return &BridgeError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning,
		},
	}
}

// WithCorrelationID adds a correlation id to the error context.
func (e *BridgeError) WithCorrelationID(id string) *BridgeError {
	e.CorrelationID = id
	return e
}

// WithMethod adds a privileged method name to the error context.
func (e *BridgeError) WithMethod(method string) *BridgeError {
	e.Method = method
	return e
}

// WithSeverity sets the error severity.
func (e *BridgeError) WithSeverity(s Severity) *BridgeError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *BridgeError) Error() string {
	var parts []string
	if e.CorrelationID != "" {
		parts = append(parts, fmt.Sprintf("id=%s", e.CorrelationID))
	}
	if e.Method != "" {
		parts = append(parts, fmt.Sprintf("method=%s", e.Method))
	}

	prefix := "bridge error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("bridge error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *BridgeError) Is(target error) bool {
	if _, ok := target.(*BridgeError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("slot", "3")
//	fmt.Println(err) // "slot '3' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:  fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity: SeverityWarning,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("worker capacity must be positive").
//		WithField("dispatch.worker_capacity").WithValue(-1)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityWarning,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for probe reply", 2*time.Second)
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:   operation,
			severity:  SeverityWarning,
			retryable: true, // Timeouts are generally retryable
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.IsRetryable()
	}

	if Is(err, ErrTimeout) || Is(err, ErrProbeTimeout) || Is(err, ErrCallTimeout) {
		return true
	}

	return false
}

// GetSeverity returns the severity level of the error. Errors that do not
// implement EngineError report SeverityError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.Severity()
	}

	return SeverityError
}

// IsProtocolViolation returns true for errors caused by a worker breaking
// the control-plane contract, which are logged but never fatal.
func IsProtocolViolation(err error) bool {
	return Is(err, ErrLedgerUnderflow) || Is(err, ErrUnknownKind) || Is(err, ErrDuplicateCorrelation)
}

// Wrap wraps an error with an additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
