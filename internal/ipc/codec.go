package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxLineBytes bounds a single envelope line. Updates carrying media
// metadata can run large, but anything past this is a protocol violation.
const maxLineBytes = 1 << 20

// Encoder writes envelopes as JSONL to a stream. Writes are serialized so
// concurrent senders cannot interleave partial lines.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode marshals the envelope, writes it as a single line, and flushes.
func (e *Encoder) Encode(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("ipc: marshal envelope: %w", err)
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("ipc: write envelope: %w", err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("ipc: flush envelope: %w", err)
	}
	return nil
}

// Decoder reads envelopes from a JSONL stream.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Decoder{scanner: scanner}
}

// Next returns the next envelope from the stream. Blank lines are skipped.
// A malformed line yields an error but leaves the decoder usable for the
// lines that follow. io.EOF signals a cleanly closed stream.
func (d *Decoder) Next() (Envelope, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return Envelope{}, fmt.Errorf("ipc: decode envelope: %w", err)
		}
		return env, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Envelope{}, fmt.Errorf("ipc: scan stream: %w", err)
	}
	return Envelope{}, io.EOF
}
