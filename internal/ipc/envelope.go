package ipc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of an envelope.
type Kind string

const (
	// KindUpdate carries a raw update from the master to a worker.
	KindUpdate Kind = "UPDATE"

	// KindTaskCompleted tells the master a worker finished processing
	// one update.
	KindTaskCompleted Kind = "TASK_COMPLETED"

	// KindSendMessage asks the master to send an outbound message on the
	// worker's behalf.
	KindSendMessage Kind = "SEND_MESSAGE"

	// KindTDLibRequest asks the master to perform a privileged TDLib call.
	KindTDLibRequest Kind = "TDLIB_REQUEST"

	// KindTDLibResponse returns the outcome of a TDLib call to the worker
	// that requested it.
	KindTDLibResponse Kind = "TDLIB_RESPONSE"

	// KindPing is a master-to-worker health probe.
	KindPing Kind = "PING"

	// KindPong acknowledges a ping.
	KindPong Kind = "PONG"
)

// Envelope is a single protocol message. Fields beyond Kind are populated
// according to the kind; a TDLIB_RESPONSE carries exactly one of Result or
// Error.
type Envelope struct {
	Kind          Kind            `json:"kind"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Method        string          `json:"method,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Valid envelope kinds for validation.
var validKinds = map[Kind]bool{
	KindUpdate:        true,
	KindTaskCompleted: true,
	KindSendMessage:   true,
	KindTDLibRequest:  true,
	KindTDLibResponse: true,
	KindPing:          true,
	KindPong:          true,
}

// ValidateKind returns true if the given kind is a known envelope kind.
func ValidateKind(k Kind) bool {
	return validKinds[k]
}

// Validate checks the envelope's internal consistency.
func (e Envelope) Validate() error {
	if !ValidateKind(e.Kind) {
		return fmt.Errorf("ipc: unknown envelope kind %q", e.Kind)
	}
	switch e.Kind {
	case KindTDLibRequest:
		if e.CorrelationID == "" {
			return fmt.Errorf("ipc: %s requires a correlation ID", e.Kind)
		}
		if e.Method == "" {
			return fmt.Errorf("ipc: %s requires a method", e.Kind)
		}
	case KindTDLibResponse:
		if e.CorrelationID == "" {
			return fmt.Errorf("ipc: %s requires a correlation ID", e.Kind)
		}
		hasResult := len(e.Result) > 0
		hasError := e.Error != ""
		if hasResult == hasError {
			return fmt.Errorf("ipc: %s requires exactly one of result or error", e.Kind)
		}
	case KindPing, KindPong:
		if e.CorrelationID == "" {
			return fmt.Errorf("ipc: %s requires a correlation ID", e.Kind)
		}
	}
	return nil
}

// NewUpdate wraps a raw update payload for delivery to a worker.
func NewUpdate(payload json.RawMessage) Envelope {
	return Envelope{
		Kind:      KindUpdate,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// NewTaskCompleted reports one finished update.
func NewTaskCompleted() Envelope {
	return Envelope{
		Kind:      KindTaskCompleted,
		Timestamp: time.Now(),
	}
}

// NewSendMessage asks the master to forward an outbound message.
func NewSendMessage(payload json.RawMessage) Envelope {
	return Envelope{
		Kind:      KindSendMessage,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// NewTDLibRequest builds a privileged call request with a fresh
// correlation ID.
func NewTDLibRequest(method string, payload json.RawMessage) Envelope {
	return Envelope{
		Kind:          KindTDLibRequest,
		CorrelationID: uuid.NewString(),
		Method:        method,
		Payload:       payload,
		Timestamp:     time.Now(),
	}
}

// NewTDLibResult builds a successful response to a TDLib request.
func NewTDLibResult(correlationID string, result json.RawMessage) Envelope {
	return Envelope{
		Kind:          KindTDLibResponse,
		CorrelationID: correlationID,
		Result:        result,
		Timestamp:     time.Now(),
	}
}

// NewTDLibError builds a failed response to a TDLib request.
func NewTDLibError(correlationID string, errMsg string) Envelope {
	return Envelope{
		Kind:          KindTDLibResponse,
		CorrelationID: correlationID,
		Error:         errMsg,
		Timestamp:     time.Now(),
	}
}

// NewPing builds a health probe with a fresh correlation ID.
func NewPing() Envelope {
	return Envelope{
		Kind:          KindPing,
		CorrelationID: uuid.NewString(),
		Timestamp:     time.Now(),
	}
}

// NewPong acknowledges the ping with the given correlation ID.
func NewPong(correlationID string) Envelope {
	return Envelope{
		Kind:          KindPong,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}
}
