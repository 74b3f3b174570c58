package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mikeyhodl/quote-bot/internal/errors"
	"github.com/mikeyhodl/quote-bot/internal/ipc"
	"github.com/mikeyhodl/quote-bot/internal/logging"
	"github.com/mikeyhodl/quote-bot/internal/pool"
)

// DefaultCallTimeout bounds one privileged invocation.
const DefaultCallTimeout = 30 * time.Second

// MessagingClient sends outbound messages on behalf of workers.
type MessagingClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// PrivilegedInvoker performs master-only operations requested by workers,
// addressed by method name with positional arguments.
type PrivilegedInvoker interface {
	Invoke(ctx context.Context, method string, args []json.RawMessage) (json.RawMessage, error)
}

// PongHandler receives probe acknowledgements. The health monitor
// implements it.
type PongHandler interface {
	HandlePong(env ipc.Envelope)
}

// sendPayload is the SEND_MESSAGE envelope body.
type sendPayload struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// requestPayload is the TDLIB_REQUEST envelope body.
type requestPayload struct {
	Args []json.RawMessage `json:"args"`
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge's logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bridge) { b.logger = l.WithComponent("bridge") }
}

// WithCallTimeout bounds privileged invocations.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.callTimeout = d }
}

// WithPongHandler routes PONG envelopes to the given handler.
func WithPongHandler(h PongHandler) Option {
	return func(b *Bridge) { b.pongs = h }
}

// Bridge dispatches inbound worker envelopes by kind.
type Bridge struct {
	registry    *pool.Registry
	drainer     pool.Drainer
	messenger   MessagingClient
	invoker     PrivilegedInvoker
	pongs       PongHandler
	logger      *logging.Logger
	callTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{} // correlation ids of running privileged calls
}

// New creates a Bridge. The drainer is the dispatcher; it runs after every
// completion so freed capacity is used immediately.
func New(registry *pool.Registry, drainer pool.Drainer, messenger MessagingClient, invoker PrivilegedInvoker, opts ...Option) *Bridge {
	b := &Bridge{
		registry:    registry,
		drainer:     drainer,
		messenger:   messenger,
		invoker:     invoker,
		logger:      logging.NopLogger(),
		callTimeout: DefaultCallTimeout,
		inflight:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandleInbound processes one envelope from the worker at the given slot.
// Never blocks on I/O: sends and privileged calls run on their own
// goroutines so a slow collaborator cannot stall the read loop.
func (b *Bridge) HandleInbound(slot int, env ipc.Envelope) {
	switch env.Kind {
	case ipc.KindTaskCompleted:
		b.handleCompleted(slot)
	case ipc.KindSendMessage:
		b.handleSend(slot, env)
	case ipc.KindTDLibRequest:
		b.handleRequest(slot, env)
	case ipc.KindPong:
		if b.pongs != nil {
			b.pongs.HandlePong(env)
		}
	default:
		b.logger.Warn("unexpected envelope from worker",
			"slot", slot,
			"kind", string(env.Kind))
	}
}

// handleCompleted decrements the slot's load and drains the queue. An
// underflow means the worker sent a spurious or duplicate completion; the
// ledger has already clamped and logged it.
func (b *Bridge) handleCompleted(slot int) {
	if err := b.registry.Decrement(slot); err != nil && !errors.Is(err, errors.ErrLedgerUnderflow) {
		b.logger.Warn("completion for unknown slot", "slot", slot, "error", err)
		return
	}
	if b.drainer != nil {
		b.drainer.Drain()
	}
}

// handleSend forwards an outbound message to the messaging client,
// fire-and-forget.
func (b *Bridge) handleSend(slot int, env ipc.Envelope) {
	var p sendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		b.logger.Warn("bad send payload", "slot", slot, "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.callTimeout)
		defer cancel()
		if err := b.messenger.SendMessage(ctx, p.ChatID, p.Text); err != nil {
			b.logger.Warn("outbound send failed",
				"slot", slot,
				"chat_id", p.ChatID,
				"error", err)
		}
	}()
}

// handleRequest invokes a privileged method and replies to the requesting
// worker with the same correlation id. The reply carries either a result
// or an error string, never both. Replies from concurrent calls are
// distinguishable only by correlation id; order is not guaranteed.
func (b *Bridge) handleRequest(slot int, env ipc.Envelope) {
	if err := env.Validate(); err != nil {
		b.logger.Warn("bad privileged request", "slot", slot, "error", err)
		return
	}

	b.mu.Lock()
	if _, dup := b.inflight[env.CorrelationID]; dup {
		b.mu.Unlock()
		b.logger.Warn("duplicate correlation id",
			"slot", slot,
			"correlation_id", env.CorrelationID)
		b.reply(slot, ipc.NewTDLibError(env.CorrelationID, errors.ErrDuplicateCorrelation.Error()))
		return
	}
	b.inflight[env.CorrelationID] = struct{}{}
	b.mu.Unlock()

	var p requestPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			b.clearInflight(env.CorrelationID)
			b.reply(slot, ipc.NewTDLibError(env.CorrelationID, "malformed arguments: "+err.Error()))
			return
		}
	}

	go func() {
		defer b.clearInflight(env.CorrelationID)

		ctx, cancel := context.WithTimeout(context.Background(), b.callTimeout)
		defer cancel()

		result, err := b.invoker.Invoke(ctx, env.Method, p.Args)
		if err != nil {
			b.reply(slot, ipc.NewTDLibError(env.CorrelationID, err.Error()))
			return
		}
		b.reply(slot, ipc.NewTDLibResult(env.CorrelationID, result))
	}()
}

// reply sends a response envelope back to the slot's worker.
func (b *Bridge) reply(slot int, env ipc.Envelope) {
	if err := b.registry.Send(slot, env); err != nil {
		b.logger.Warn("reply failed",
			"slot", slot,
			"correlation_id", env.CorrelationID,
			"error", err)
	}
}

func (b *Bridge) clearInflight(id string) {
	b.mu.Lock()
	delete(b.inflight, id)
	b.mu.Unlock()
}
