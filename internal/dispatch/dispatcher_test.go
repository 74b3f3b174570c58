package dispatch

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/mikeyhodl/quote-bot/internal/ipc"
	"github.com/mikeyhodl/quote-bot/internal/pool"
	"github.com/mikeyhodl/quote-bot/internal/queue"
	"github.com/mikeyhodl/quote-bot/internal/queue/inmem"
	"github.com/mikeyhodl/quote-bot/internal/routing"
)

// stubWorker records envelopes sent to it. Recv/Wait block forever, which
// is fine here: these tests never exercise the supervisor's loops.
type stubWorker struct {
	pid  int
	mu   sync.Mutex
	sent []ipc.Envelope
}

func (w *stubWorker) PID() int { return w.pid }

func (w *stubWorker) Send(env ipc.Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, env)
	return nil
}

func (w *stubWorker) Recv() (ipc.Envelope, error) { select {} }
func (w *stubWorker) Wait() error                 { select {} }
func (w *stubWorker) Terminate() error            { return nil }

func (w *stubWorker) delivered() []ipc.Envelope {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ipc.Envelope, len(w.sent))
	copy(out, w.sent)
	return out
}

func newHarness(t *testing.T, workers, capacity, queueSize int) (*Dispatcher, *pool.Registry, queue.Queue, []*stubWorker) {
	t.Helper()
	r := pool.NewRegistry(nil)
	ws := make([]*stubWorker, workers)
	for i := range ws {
		ws[i] = &stubWorker{pid: 100 + i}
		r.Add(ws[i])
	}
	q := inmem.New(queueSize)
	d := NewDispatcher(r, q, WithCapacity(capacity))
	return d, r, q, ws
}

// senderUpdate builds an update whose routing key "u:<id>" is fully
// deterministic.
func senderUpdate(senderID int64, text string) routing.Update {
	raw, _ := json.Marshal(map[string]any{
		"message": map[string]any{
			"from": map[string]any{"id": senderID},
			"chat": map[string]any{"id": senderID},
			"text": text,
		},
	})
	return routing.Update{Raw: raw, SenderID: senderID, ChatID: senderID, Text: text}
}

// slotFor resolves where a sender's updates land.
func slotFor(senderID int64, slots int) int {
	return routing.Route(fmt.Sprintf("u:%d", senderID), slots)
}

func TestSubmitDeliversUnderCapacity(t *testing.T) {
	d, r, q, ws := newHarness(t, 2, 3, 100)

	u := senderUpdate(7, "hello")
	if err := d.Submit(u); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	slot := slotFor(7, 2)
	got := ws[slot].delivered()
	if len(got) != 1 || got[0].Kind != ipc.KindUpdate {
		t.Fatalf("worker %d received %+v", slot, got)
	}
	if load, _ := r.Load(slot); load != 1 {
		t.Errorf("load = %d, want 1", load)
	}
	if q.Len() != 0 {
		t.Errorf("queue depth = %d, want 0", q.Len())
	}
}

func TestSubmitSameSenderSameSlot(t *testing.T) {
	d, _, _, ws := newHarness(t, 4, 100, 100)

	for i := 0; i < 5; i++ {
		if err := d.Submit(senderUpdate(42, "msg")); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	slot := slotFor(42, 4)
	if got := len(ws[slot].delivered()); got != 5 {
		t.Errorf("slot %d received %d updates, want 5", slot, got)
	}
	for i, w := range ws {
		if i != slot && len(w.delivered()) != 0 {
			t.Errorf("slot %d received updates for sender 42", i)
		}
	}
}

func TestSubmitOverflowsToQueue(t *testing.T) {
	// 2 workers, capacity 3, 8 updates to one slot: 3 delivered
	// immediately, 5 queued. One completion then frees exactly one.
	d, r, q, ws := newHarness(t, 2, 3, 100)

	sender := int64(1) // "u:1" routes to slot 0 with 2 slots
	slot := slotFor(sender, 2)

	for i := 0; i < 8; i++ {
		if err := d.Submit(senderUpdate(sender, fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}

	if got := len(ws[slot].delivered()); got != 3 {
		t.Fatalf("delivered = %d, want 3", got)
	}
	if q.Len() != 5 {
		t.Fatalf("queued = %d, want 5", q.Len())
	}
	if load, _ := r.Load(slot); load != 3 {
		t.Fatalf("load = %d, want 3", load)
	}

	// Completion signal: decrement then drain.
	if err := r.Decrement(slot); err != nil {
		t.Fatalf("Decrement failed: %v", err)
	}
	d.Drain()

	if got := len(ws[slot].delivered()); got != 4 {
		t.Errorf("delivered after drain = %d, want 4", got)
	}
	if q.Len() != 4 {
		t.Errorf("queued after drain = %d, want 4", q.Len())
	}
	if load, _ := r.Load(slot); load != 3 {
		t.Errorf("load after drain = %d, want 3", load)
	}
}

func TestSubmitNeverExceedsCapacity(t *testing.T) {
	d, r, _, _ := newHarness(t, 1, 2, 100)

	for i := 0; i < 10; i++ {
		d.Submit(senderUpdate(5, "x"))
	}
	if load, _ := r.Load(0); load != 2 {
		t.Errorf("load = %d, capacity 2 exceeded", load)
	}
}

func TestPausePrecedesSpareCapacity(t *testing.T) {
	d, r, q, ws := newHarness(t, 2, 3, 100)

	q.Pause()
	if err := d.Submit(senderUpdate(7, "held")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	for _, w := range ws {
		if len(w.delivered()) != 0 {
			t.Error("update delivered while paused despite spare capacity")
		}
	}
	if q.Len() != 1 {
		t.Errorf("queued = %d, want 1", q.Len())
	}
	slot := slotFor(7, 2)
	if load, _ := r.Load(slot); load != 0 {
		t.Errorf("load = %d, want 0", load)
	}
}

func TestDrainPriorityThenFIFO(t *testing.T) {
	// Items [P0-A, P1-B, P0-C] against a saturated slot drain as
	// [P1-B, P0-A, P0-C] when capacity frees one at a time.
	d, r, q, ws := newHarness(t, 1, 1, 100)

	// Saturate the only slot.
	if ok, _ := r.TryAcquire(0, 1); !ok {
		t.Fatal("setup acquire failed")
	}

	d.Submit(senderUpdate(3, "A"))
	d.Submit(senderUpdate(3, "/B"))
	d.Submit(senderUpdate(3, "C"))
	if q.Len() != 3 {
		t.Fatalf("queued = %d, want 3", q.Len())
	}

	var texts []string
	for i := 0; i < 3; i++ {
		if err := r.Decrement(0); err != nil {
			t.Fatalf("Decrement failed: %v", err)
		}
		d.Drain()

		got := ws[0].delivered()
		if len(got) != i+1 {
			t.Fatalf("after drain %d: delivered = %d, want %d", i, len(got), i+1)
		}
		var payload struct {
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
		}
		if err := json.Unmarshal(got[i].Payload, &payload); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		texts = append(texts, payload.Message.Text)
	}

	want := []string{"/B", "A", "C"}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("delivery order = %v, want %v", texts, want)
			break
		}
	}
}

func TestDrainStopsOnFirstBlockage(t *testing.T) {
	// Two items for a saturated slot, one for a free slot, all default
	// tier. Drain must stop at the blocked head rather than skip ahead.
	d, r, q, ws := newHarness(t, 2, 1, 100)

	var s0, s1 int64
	for id := int64(1); s1 == 0; id++ {
		switch slotFor(id, 2) {
		case 0:
			if s0 == 0 {
				s0 = id
			}
		case 1:
			s1 = id
		}
	}

	// Saturate both slots so everything queues in order.
	r.TryAcquire(0, 1)
	r.TryAcquire(1, 1)
	d.Submit(senderUpdate(s0, "first"))
	d.Submit(senderUpdate(s0, "second"))
	d.Submit(senderUpdate(s1, "other"))

	// Only slot 1 frees up; the head of the queue targets slot 0.
	r.Decrement(1)
	d.Drain()

	if len(ws[0].delivered()) != 0 {
		t.Error("blocked item delivered")
	}
	if len(ws[1].delivered()) != 0 {
		t.Error("drain skipped past a blocked head item")
	}
	if q.Len() != 3 {
		t.Errorf("queued = %d, want 3", q.Len())
	}

	// Slot 0 frees once: only the head item goes; the next slot 0 item
	// blocks again before the slot 1 item can move.
	r.Decrement(0)
	d.Drain()
	if len(ws[0].delivered()) != 1 || len(ws[1].delivered()) != 0 {
		t.Errorf("delivered = %d/%d, want 1/0",
			len(ws[0].delivered()), len(ws[1].delivered()))
	}
	if q.Len() != 2 {
		t.Errorf("queued = %d, want 2", q.Len())
	}

	// Another free slot 0 lets the rest of the backlog through.
	r.Decrement(0)
	d.Drain()
	if len(ws[0].delivered()) != 2 || len(ws[1].delivered()) != 1 {
		t.Errorf("delivered = %d/%d, want 2/1",
			len(ws[0].delivered()), len(ws[1].delivered()))
	}
	if q.Len() != 0 {
		t.Errorf("queued = %d, want 0", q.Len())
	}
}

func TestDrainReresolvesStaleSlot(t *testing.T) {
	d, r, q, ws := newHarness(t, 3, 1, 100)

	// Queue an item explicitly naming slot 2.
	item := &queue.Item{
		Payload:  []byte(`{}`),
		Key:      "u:9",
		Slot:     2,
		Priority: routing.PriorityDefault,
	}
	if err := q.Add(item); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// Shrink: slot 2 no longer exists.
	r.SetHealth(2, 1)
	r.RemoveLowestHealth()

	d.Drain()

	want := routing.Route("u:9", 2)
	if got := len(ws[want].delivered()); got != 1 {
		t.Errorf("re-resolved slot %d delivered %d, want 1", want, got)
	}
	if q.Len() != 0 {
		t.Errorf("stale item still queued (depth %d)", q.Len())
	}
}

func TestDrainLiftsBackpressure(t *testing.T) {
	d, r, q, ws := newHarness(t, 1, 100, 8) // low-water mark 2

	sender := int64(1)
	// Saturate the slot, then the queue, to engage backpressure.
	for i := 0; i < 100; i++ {
		r.Increment(0)
	}
	for i := 0; i < 8; i++ {
		d.Submit(senderUpdate(sender, "x"))
	}
	if !q.IsPaused() {
		t.Fatal("queue not paused at capacity")
	}

	// Free the slot fully; drain delivers everything and lifts the pause.
	for i := 0; i < 100; i++ {
		r.Decrement(0)
	}
	d.Drain()

	if q.Len() != 0 {
		t.Errorf("queued = %d, want 0", q.Len())
	}
	if q.IsPaused() {
		t.Error("backpressure not lifted after drain below low-water mark")
	}
	if got := len(ws[0].delivered()); got != 8 {
		t.Errorf("delivered = %d, want 8", got)
	}
}

func TestDrainWithNoWorkers(t *testing.T) {
	r := pool.NewRegistry(nil)
	q := inmem.New(10)
	d := NewDispatcher(r, q)

	q.Add(&queue.Item{Payload: []byte(`{}`), Key: "u:1", Slot: 0, Priority: routing.PriorityDefault})
	d.Drain()

	if q.Len() != 1 {
		t.Errorf("item lost with no workers: depth = %d, want 1", q.Len())
	}
}

func TestSetCapacity(t *testing.T) {
	d, _, _, _ := newHarness(t, 1, 3, 10)

	d.SetCapacity(5)
	if d.Capacity() != 5 {
		t.Errorf("Capacity = %d, want 5", d.Capacity())
	}
	d.SetCapacity(0)
	if d.Capacity() != 1 {
		t.Errorf("Capacity = %d, want clamp to 1", d.Capacity())
	}
}
