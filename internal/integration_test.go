// Package internal contains integration tests that verify the engine's
// packages work together: the master wiring, the ipc protocol, and the
// worker runtime joined by in-process pipes instead of subprocesses.
package internal

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mikeyhodl/quote-bot/internal/config"
	"github.com/mikeyhodl/quote-bot/internal/ipc"
	"github.com/mikeyhodl/quote-bot/internal/logging"
	"github.com/mikeyhodl/quote-bot/internal/master"
	"github.com/mikeyhodl/quote-bot/internal/pool"
	"github.com/mikeyhodl/quote-bot/internal/routing"
	"github.com/mikeyhodl/quote-bot/internal/worker"
)

// pipeWorker is a pool.Worker backed by a worker.Runtime running in this
// process, joined over io.Pipe pairs the way a subprocess would be joined
// over stdin/stdout.
type pipeWorker struct {
	pid  int
	enc  *ipc.Encoder
	dec  *ipc.Decoder
	in   *io.PipeWriter
	done chan struct{}
	once sync.Once
}

func (w *pipeWorker) PID() int { return w.pid }

func (w *pipeWorker) Send(env ipc.Envelope) error { return w.enc.Encode(env) }

func (w *pipeWorker) Recv() (ipc.Envelope, error) { return w.dec.Next() }

func (w *pipeWorker) Wait() error {
	<-w.done
	return nil
}

func (w *pipeWorker) Terminate() error {
	// Closing the inbound pipe gives the runtime its EOF.
	w.once.Do(func() { _ = w.in.Close() })
	return nil
}

type pipeSpawner struct {
	mu      sync.Mutex
	nextPID int
}

func (s *pipeSpawner) Spawn(ctx context.Context) (pool.Worker, error) {
	s.mu.Lock()
	s.nextPID++
	pid := 9000 + s.nextPID
	s.mu.Unlock()

	masterIn, workerOut := io.Pipe()
	workerIn, masterOut := io.Pipe()

	rt := worker.NewRuntime(workerIn, workerOut, worker.NewQuoteHandler())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rt.Run(context.Background())
		_ = workerOut.Close()
	}()

	return &pipeWorker{
		pid:  pid,
		enc:  ipc.NewEncoder(masterOut),
		dec:  ipc.NewDecoder(masterIn),
		in:   masterOut,
		done: done,
	}, nil
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMessenger) SendMessage(ctx context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, fmt.Sprintf("%d:%s", chatID, text))
	return nil
}

func (m *recordingMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMessenger) at(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[i]
}

func textUpdate(senderID, chatID int64, text string) routing.Update {
	raw := fmt.Sprintf(`{"message":{"from":{"id":%d},"chat":{"id":%d},"text":%q}}`, senderID, chatID, text)
	return routing.Parse([]byte(raw))
}

// TestMasterWorkerRoundTrip drives the full path: update in, worker
// handler run, quote sent back out through the bridge.
func TestMasterWorkerRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Pool.InitialWorkers = 2
	cfg.Telemetry.Enabled = false

	messenger := &recordingMessenger{}
	m, err := master.New(cfg,
		master.WithLogger(logging.NopLogger()),
		master.WithClock(clockwork.NewFakeClock()),
		master.WithSpawner(&pipeSpawner{}),
		master.WithMessenger(messenger),
	)
	if err != nil {
		t.Fatalf("master.New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- m.Run(ctx) }()

	// First remember a line, then ask for a quote. The worker handles
	// updates concurrently, so keep asking until the remembered line has
	// landed.
	if err := m.Submit(textUpdate(5, 5, "a line worth quoting")); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	quoted := false
	for !quoted {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for a quote reply")
		}

		seen := messenger.count()
		if err := m.Submit(textUpdate(5, 5, "/quote")); err != nil {
			t.Fatalf("Submit() error: %v", err)
		}

		replyDeadline := time.Now().Add(time.Second)
		for messenger.count() == seen && time.Now().Before(replyDeadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if messenger.count() == seen {
			continue
		}

		reply := messenger.at(messenger.count() - 1)
		if strings.Contains(reply, "a line worth quoting") {
			if !strings.HasPrefix(reply, "5:") {
				t.Errorf("reply chat = %q, want chat 5", reply)
			}
			quoted = true
		}
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to stop")
	}
}

// TestMasterSurvivesManyUpdates floods the engine and checks the run loop
// stays up and shutdown is clean.
func TestMasterSurvivesManyUpdates(t *testing.T) {
	cfg := config.Default()
	cfg.Pool.InitialWorkers = 3
	cfg.Telemetry.Enabled = false

	m, err := master.New(cfg,
		master.WithLogger(logging.NopLogger()),
		master.WithClock(clockwork.NewFakeClock()),
		master.WithSpawner(&pipeSpawner{}),
		master.WithMessenger(&recordingMessenger{}),
	)
	if err != nil {
		t.Fatalf("master.New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- m.Run(ctx) }()

	for i := 0; i < 50; i++ {
		u := textUpdate(int64(i%7+1), int64(i%7+1), fmt.Sprintf("message %d", i))
		if err := m.Submit(u); err != nil {
			t.Fatalf("Submit(%d) error: %v", i, err)
		}
	}

	// Give completions time to flow back before shutting down.
	time.Sleep(200 * time.Millisecond)

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to stop")
	}
}
