package pool

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/mikeyhodl/quote-bot/internal/ipc"
)

// Worker is a handle on one worker process. The Registry tracks workers by
// slot index; the Supervisor's read and wait loops hold the handle directly.
type Worker interface {
	// PID returns the operating system process id.
	PID() int

	// Send writes one envelope to the worker's stdin.
	Send(env ipc.Envelope) error

	// Recv blocks for the next envelope from the worker's stdout.
	// Returns io.EOF when the worker closes its end.
	Recv() (ipc.Envelope, error)

	// Wait blocks until the process exits.
	Wait() error

	// Terminate asks the process to exit.
	Terminate() error
}

// Spawner creates worker processes.
type Spawner interface {
	Spawn(ctx context.Context) (Worker, error)
}

// ExecSpawner launches worker subprocesses of the given binary, wired to
// the master over stdin/stdout pipes. Worker stderr passes through to the
// master's stderr so crashes leave a trace.
type ExecSpawner struct {
	Binary string
	Args   []string
}

// Spawn starts one worker process.
func (s *ExecSpawner) Spawn(ctx context.Context) (Worker, error) {
	cmd := exec.CommandContext(ctx, s.Binary, s.Args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("pool: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pool: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pool: start worker: %w", err)
	}

	return &execWorker{
		cmd:   cmd,
		stdin: stdin,
		enc:   ipc.NewEncoder(stdin),
		dec:   ipc.NewDecoder(stdout),
	}, nil
}

// execWorker wraps a running subprocess.
type execWorker struct {
	cmd   *exec.Cmd
	stdin interface{ Close() error }
	enc   *ipc.Encoder
	dec   *ipc.Decoder
}

func (w *execWorker) PID() int {
	return w.cmd.Process.Pid
}

func (w *execWorker) Send(env ipc.Envelope) error {
	return w.enc.Encode(env)
}

func (w *execWorker) Recv() (ipc.Envelope, error) {
	return w.dec.Next()
}

func (w *execWorker) Wait() error {
	return w.cmd.Wait()
}

// Terminate closes the worker's stdin and sends SIGTERM. The wait loop
// observes the exit; callers do not wait here.
func (w *execWorker) Terminate() error {
	_ = w.stdin.Close()
	if err := w.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return w.cmd.Process.Kill()
	}
	return nil
}
