package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mikeyhodl/quote-bot/internal/errors"
	"github.com/mikeyhodl/quote-bot/internal/ipc"
	"github.com/mikeyhodl/quote-bot/internal/logging"
	"github.com/mikeyhodl/quote-bot/internal/routing"
)

// DefaultCallTimeout bounds one privileged call round trip to the master.
const DefaultCallTimeout = 30 * time.Second

// Handler processes one update. Implementations use the Client for
// outbound messages and privileged calls.
type Handler interface {
	Handle(ctx context.Context, u routing.Update, c *Client) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u routing.Update, c *Client) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, u routing.Update, c *Client) error {
	return f(ctx, u, c)
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime's logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runtime) { r.logger = l.WithComponent("worker") }
}

// WithCallTimeout bounds privileged call round trips.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Runtime) { r.callTimeout = d }
}

// Runtime is the worker-side protocol loop.
type Runtime struct {
	dec         *ipc.Decoder
	enc         *ipc.Encoder
	handler     Handler
	logger      *logging.Logger
	callTimeout time.Duration

	mu      sync.Mutex
	pending map[string]chan ipc.Envelope // privileged calls awaiting response

	wg sync.WaitGroup
}

// NewRuntime creates a Runtime reading envelopes from in and writing to
// out.
func NewRuntime(in io.Reader, out io.Writer, handler Handler, opts ...Option) *Runtime {
	r := &Runtime{
		dec:         ipc.NewDecoder(in),
		enc:         ipc.NewEncoder(out),
		handler:     handler,
		logger:      logging.NopLogger(),
		callTimeout: DefaultCallTimeout,
		pending:     make(map[string]chan ipc.Envelope),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes envelopes until the input stream closes or the context is
// cancelled. In-flight updates are given a chance to finish.
func (r *Runtime) Run(ctx context.Context) error {
	defer r.wg.Wait()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		env, err := r.dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			r.logger.Warn("bad envelope", "error", err)
			continue
		}

		switch env.Kind {
		case ipc.KindUpdate:
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.handleUpdate(ctx, env)
			}()
		case ipc.KindPing:
			if err := r.enc.Encode(ipc.NewPong(env.CorrelationID)); err != nil {
				r.logger.Warn("pong failed", "error", err)
			}
		case ipc.KindTDLibResponse:
			r.resolve(env)
		default:
			r.logger.Warn("unexpected envelope from master", "kind", string(env.Kind))
		}
	}
}

// handleUpdate runs the handler and always acknowledges with a completion
// notice, even when handling fails, so the master's ledger stays balanced.
func (r *Runtime) handleUpdate(ctx context.Context, env ipc.Envelope) {
	defer func() {
		if err := r.enc.Encode(ipc.NewTaskCompleted()); err != nil {
			r.logger.Error("completion notice failed", "error", err)
		}
	}()

	u := routing.Parse(env.Payload)
	if err := r.handler.Handle(ctx, u, &Client{rt: r}); err != nil {
		r.logger.Warn("update handling failed",
			"chat_id", u.ChatID,
			"error", err)
	}
}

// resolve completes a pending privileged call.
func (r *Runtime) resolve(env ipc.Envelope) {
	r.mu.Lock()
	ch, ok := r.pending[env.CorrelationID]
	if ok {
		delete(r.pending, env.CorrelationID)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("response for unknown call", "correlation_id", env.CorrelationID)
		return
	}
	ch <- env
}

// Client is the handler-facing surface for reaching the master.
type Client struct {
	rt *Runtime
}

// SendMessage asks the master to send an outbound message,
// fire-and-forget.
func (c *Client) SendMessage(chatID int64, text string) error {
	payload, err := json.Marshal(struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("worker: marshal send: %w", err)
	}
	return c.rt.enc.Encode(ipc.NewSendMessage(payload))
}

// Call performs a privileged operation on the master and waits for its
// response. Returns the result payload, or the error string relayed by
// the master as an error.
func (c *Client) Call(ctx context.Context, method string, args []json.RawMessage) (json.RawMessage, error) {
	payload, err := json.Marshal(struct {
		Args []json.RawMessage `json:"args"`
	}{Args: args})
	if err != nil {
		return nil, fmt.Errorf("worker: marshal args: %w", err)
	}

	req := ipc.NewTDLibRequest(method, payload)
	ch := make(chan ipc.Envelope, 1)

	c.rt.mu.Lock()
	c.rt.pending[req.CorrelationID] = ch
	c.rt.mu.Unlock()
	defer func() {
		c.rt.mu.Lock()
		delete(c.rt.pending, req.CorrelationID)
		c.rt.mu.Unlock()
	}()

	if err := c.rt.enc.Encode(req); err != nil {
		return nil, fmt.Errorf("worker: send request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.rt.callTimeout)
	defer cancel()

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return nil, errors.NewBridgeError("privileged call failed", errors.New(resp.Error)).
				WithCorrelationID(resp.CorrelationID).
				WithMethod(method)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, errors.NewTimeoutError("privileged call "+method, c.rt.callTimeout)
	}
}
