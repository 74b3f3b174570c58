package inmem

import (
	"fmt"
	"sync"
	"testing"

	"github.com/mikeyhodl/quote-bot/internal/errors"
	"github.com/mikeyhodl/quote-bot/internal/queue"
	"github.com/mikeyhodl/quote-bot/internal/routing"
)

func item(key string, slot int, prio routing.Priority) *queue.Item {
	return &queue.Item{Key: key, Slot: slot, Priority: prio}
}

func TestAddNilItem(t *testing.T) {
	q := New(10)
	if err := q.Add(nil); !errors.Is(err, errors.ErrNilItem) {
		t.Errorf("Add(nil) = %v, want ErrNilItem", err)
	}
}

func TestFIFOWithinTier(t *testing.T) {
	q := New(10)
	for i := 0; i < 3; i++ {
		if err := q.Add(item(fmt.Sprintf("u:%d", i), i, routing.PriorityDefault)); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		got := q.Next()
		if got == nil {
			t.Fatalf("Next returned nil at %d", i)
		}
		if want := fmt.Sprintf("u:%d", i); got.Key != want {
			t.Errorf("Next %d: key = %q, want %q", i, got.Key, want)
		}
	}
	if q.Next() != nil {
		t.Error("Next on empty queue should return nil")
	}
}

func TestCommandTierOutranksDefault(t *testing.T) {
	q := New(10)
	q.Add(item("u:a", 0, routing.PriorityDefault))
	q.Add(item("u:b", 0, routing.PriorityCommand))
	q.Add(item("u:c", 0, routing.PriorityDefault))

	wantOrder := []string{"u:b", "u:a", "u:c"}
	for i, want := range wantOrder {
		got := q.Next()
		if got == nil || got.Key != want {
			t.Fatalf("drain position %d: got %v, want key %q", i, got, want)
		}
	}
}

func TestPushFrontRestoresOrder(t *testing.T) {
	q := New(10)
	q.Add(item("u:a", 0, routing.PriorityDefault))
	q.Add(item("u:b", 0, routing.PriorityDefault))

	first := q.Next()
	if first.Key != "u:a" {
		t.Fatalf("Next = %q, want u:a", first.Key)
	}
	q.PushFront(first)

	if got := q.Next(); got.Key != "u:a" {
		t.Errorf("after PushFront, Next = %q, want u:a", got.Key)
	}
	if got := q.Next(); got.Key != "u:b" {
		t.Errorf("second Next = %q, want u:b", got.Key)
	}
}

func TestPushFrontKeepsTierPriority(t *testing.T) {
	q := New(10)
	q.Add(item("u:cmd", 0, routing.PriorityCommand))
	q.Add(item("u:def", 0, routing.PriorityDefault))

	cmd := q.Next()
	q.PushFront(cmd)

	if got := q.Next(); got.Key != "u:cmd" {
		t.Errorf("command tier item lost priority after PushFront: got %q", got.Key)
	}
}

func TestPauseLatchesAtCapacity(t *testing.T) {
	q := New(4)
	for i := 0; i < 3; i++ {
		q.Add(item("u:x", 0, routing.PriorityDefault))
	}
	if q.IsPaused() {
		t.Fatal("paused before reaching capacity")
	}

	if err := q.Add(item("u:x", 0, routing.PriorityDefault)); err != nil {
		t.Fatalf("Add at capacity should still accept: %v", err)
	}
	if !q.IsPaused() {
		t.Error("not paused after reaching capacity")
	}

	// Over capacity still accepts.
	if err := q.Add(item("u:x", 0, routing.PriorityDefault)); err != nil {
		t.Errorf("Add over capacity should still accept: %v", err)
	}
	if q.Len() != 5 {
		t.Errorf("Len = %d, want 5", q.Len())
	}
}

func TestShouldResumeBelowLowWater(t *testing.T) {
	q := New(8) // low-water mark is 2

	for i := 0; i < 8; i++ {
		q.Add(item("u:x", 0, routing.PriorityDefault))
	}
	if !q.IsPaused() {
		t.Fatal("expected pause at capacity")
	}
	if q.ShouldResume() {
		t.Error("ShouldResume true at full depth")
	}

	for i := 0; i < 6; i++ {
		q.Next()
	}
	// Depth 2, low water 2: not yet below.
	if q.ShouldResume() {
		t.Error("ShouldResume true at the low-water mark")
	}

	q.Next()
	if !q.ShouldResume() {
		t.Error("ShouldResume false below the low-water mark")
	}

	q.Resume()
	if q.IsPaused() {
		t.Error("still paused after Resume")
	}
	if q.ShouldResume() {
		t.Error("ShouldResume true while not paused")
	}
}

func TestStatusAndLen(t *testing.T) {
	q := New(10)
	q.Add(item("u:a", 0, routing.PriorityCommand))
	q.Add(item("u:b", 0, routing.PriorityDefault))
	q.Add(item("u:c", 0, routing.PriorityDefault))

	st := q.Status()
	if st.Depth != 3 || st.CommandDepth != 1 || st.DefaultDepth != 2 {
		t.Errorf("Status = %+v", st)
	}
	if st.Paused {
		t.Error("Status reports paused on a queue below capacity")
	}
	if q.Len() != 3 {
		t.Errorf("Len = %d, want 3", q.Len())
	}
	if q.MaxSize() != 10 {
		t.Errorf("MaxSize = %d, want 10", q.MaxSize())
	}
	if !q.HasUpdates() {
		t.Error("HasUpdates false on non-empty queue")
	}
}

func TestMetrics(t *testing.T) {
	q := New(2)
	q.Add(item("u:a", 0, routing.PriorityDefault))
	q.Add(item("u:b", 0, routing.PriorityDefault)) // hits capacity, pause
	q.Next()
	q.Next()

	m := q.Metrics()
	if m.TotalEnqueued != 2 {
		t.Errorf("TotalEnqueued = %d, want 2", m.TotalEnqueued)
	}
	if m.TotalDequeued != 2 {
		t.Errorf("TotalDequeued = %d, want 2", m.TotalDequeued)
	}
	if m.PeakDepth != 2 {
		t.Errorf("PeakDepth = %d, want 2", m.PeakDepth)
	}
	if m.PauseCount != 1 {
		t.Errorf("PauseCount = %d, want 1", m.PauseCount)
	}
}

func TestPushFrontReversesDequeueCount(t *testing.T) {
	q := New(10)
	q.Add(item("u:a", 0, routing.PriorityDefault))

	it := q.Next()
	q.PushFront(it)

	m := q.Metrics()
	if m.TotalDequeued != 0 {
		t.Errorf("TotalDequeued = %d after PushFront reversal, want 0", m.TotalDequeued)
	}
}

func TestPushFrontWithoutDequeueDoesNotWrap(t *testing.T) {
	q := New(10)

	// No prior Next: the dequeue counter is zero and must stay there
	// rather than wrapping around.
	q.PushFront(item("u:a", 0, routing.PriorityDefault))

	m := q.Metrics()
	if m.TotalDequeued != 0 {
		t.Errorf("TotalDequeued = %d, want 0", m.TotalDequeued)
	}
	if got := q.Next(); got == nil || got.Key != "u:a" {
		t.Errorf("Next = %v, want key u:a", got)
	}
}

func TestDefaultMaxSize(t *testing.T) {
	q := New(0)
	if q.MaxSize() != DefaultMaxSize {
		t.Errorf("MaxSize = %d, want %d", q.MaxSize(), DefaultMaxSize)
	}
	q = New(-5)
	if q.MaxSize() != DefaultMaxSize {
		t.Errorf("MaxSize = %d, want %d", q.MaxSize(), DefaultMaxSize)
	}
}

func TestConcurrentAddNext(t *testing.T) {
	q := New(1000)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q.Add(item("u:x", 0, routing.PriorityDefault))
			}
		}()
	}
	wg.Wait()

	count := 0
	for q.Next() != nil {
		count++
	}
	if count != 200 {
		t.Errorf("dequeued %d items, want 200", count)
	}
}
