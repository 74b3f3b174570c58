package event

import (
	"sync"
	"testing"
	"time"
)

func TestBusSubscribePublish(t *testing.T) {
	bus := NewBus()

	received := make([]Event, 0)
	bus.Subscribe(EventWorkerCrashed, func(e Event) {
		received = append(received, e)
	})

	ev := NewWorkerCrashedEvent(2, 4242, 3)
	bus.Publish(ev)

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	crashed, ok := received[0].(WorkerCrashedEvent)
	if !ok {
		t.Fatalf("expected WorkerCrashedEvent, got %T", received[0])
	}
	if crashed.Slot != 2 || crashed.PID != 4242 || crashed.LostLoad != 3 {
		t.Errorf("unexpected event payload: %+v", crashed)
	}
}

func TestBusSubscribeWrongType(t *testing.T) {
	bus := NewBus()

	called := false
	bus.Subscribe(EventWorkerCrashed, func(e Event) {
		called = true
	})

	bus.Publish(NewQueueDepthChangedEvent(5, 100, false))

	if called {
		t.Error("handler called for event type it did not subscribe to")
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus()

	var got []string
	bus.SubscribeAll(func(e Event) {
		got = append(got, e.EventType())
	})

	bus.Publish(NewUpdateQueuedEvent(0, "u:123", "command"))
	bus.Publish(NewProbeFailedEvent(1, "timeout"))

	want := []string{EventUpdateQueued, EventProbeFailed}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBusSpecificBeforeWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) {
		order = append(order, "wildcard")
	})
	bus.Subscribe(EventScalingDecision, func(e Event) {
		order = append(order, "specific")
	})

	bus.Publish(NewScalingDecisionEvent("grow", 2, 3, 0.91, 0.4, "cpu above high watermark"))

	if len(order) != 2 || order[0] != "specific" || order[1] != "wildcard" {
		t.Errorf("expected [specific wildcard], got %v", order)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	id := bus.Subscribe(EventWorkerReplaced, func(e Event) {
		calls++
	})

	bus.Publish(NewWorkerReplacedEvent(0, 100, 200))
	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false for valid ID")
	}
	bus.Publish(NewWorkerReplacedEvent(0, 200, 300))

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if bus.Unsubscribe(id) {
		t.Error("Unsubscribe returned true for already removed ID")
	}
}

func TestBusPanicRecovery(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(EventQueueDepthChanged, func(e Event) {
		panic("handler failure")
	})

	survived := false
	bus.Subscribe(EventQueueDepthChanged, func(e Event) {
		survived = true
	})

	bus.Publish(NewQueueDepthChangedEvent(90, 100, true))

	if !survived {
		t.Error("panic in one handler prevented delivery to the next")
	}
}

func TestBusClear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(EventHealthScored, func(e Event) {})
	bus.SubscribeAll(func(e Event) {})

	if bus.SubscriptionCount() != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", bus.SubscriptionCount())
	}
	bus.Clear()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("expected 0 subscriptions after Clear, got %d", bus.SubscriptionCount())
	}
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.Subscribe(EventUpdateQueued, func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			bus.Publish(NewUpdateQueuedEvent(slot, "u:1", "default"))
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Errorf("expected 10 deliveries, got %d", count)
	}
}

func TestEventTimestamp(t *testing.T) {
	before := time.Now()
	ev := NewHealthScoredEvent(map[int]int{0: 80, 1: 55})
	after := time.Now()

	ts := ev.Timestamp()
	if ts.Before(before) || ts.After(after) {
		t.Errorf("timestamp %v outside [%v, %v]", ts, before, after)
	}
}

func TestHealthScoredEventCopiesScores(t *testing.T) {
	src := map[int]int{0: 70}
	ev := NewHealthScoredEvent(src)
	src[0] = 5

	if ev.Scores[0] != 70 {
		t.Errorf("constructor did not copy scores map: got %d", ev.Scores[0])
	}
}
