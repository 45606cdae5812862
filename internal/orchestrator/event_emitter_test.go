package orchestrator

import (
	"testing"
	"time"
)

func TestEventEmitter_SubscribersInOrder(t *testing.T) {
	e := NewEventEmitter(0, nil)

	var order []string
	e.Subscribe(func(ev Event) { order = append(order, "first:"+ev.TaskID) })
	e.Subscribe(func(ev Event) { order = append(order, "second:"+ev.TaskID) })
	e.Subscribe(nil)

	e.Emit(Event{Type: EventTaskQueued, TaskID: "a"})
	e.Emit(Event{Type: EventTaskStarted, TaskID: "b"})

	want := []string{"first:a", "second:a", "first:b", "second:b"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
	if e.Events() != nil {
		t.Error("expected no channel for zero buffer size")
	}
}

func TestEventEmitter_StampsTimestamp(t *testing.T) {
	e := NewEventEmitter(0, nil)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	var got []Event
	e.Subscribe(func(ev Event) { got = append(got, ev) })

	e.Emit(Event{Type: EventTaskQueued})
	preset := fixed.Add(time.Hour)
	e.Emit(Event{Type: EventTaskQueued, Timestamp: preset})

	if !got[0].Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", got[0].Timestamp, fixed)
	}
	if !got[1].Timestamp.Equal(preset) {
		t.Errorf("preset timestamp overwritten: %v", got[1].Timestamp)
	}
}

func TestEventEmitter_ChannelDelivery(t *testing.T) {
	e := NewEventEmitter(4, nil)

	e.Emit(Event{Type: EventTaskQueued, TaskID: "a"})
	e.Emit(Event{Type: EventTaskStarted, TaskID: "a"})

	for _, want := range []EventType{EventTaskQueued, EventTaskStarted} {
		select {
		case ev := <-e.Events():
			if ev.Type != want {
				t.Errorf("got %s, want %s", ev.Type, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestEventEmitter_DropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1, nil)

	delivered := 0
	e.Subscribe(func(Event) { delivered++ })

	e.Emit(Event{Type: EventTaskQueued})
	e.Emit(Event{Type: EventTaskStarted})

	if e.DroppedCount() != 1 {
		t.Errorf("DroppedCount() = %d, want 1", e.DroppedCount())
	}
	if delivered != 2 {
		t.Errorf("subscribers saw %d events, want 2", delivered)
	}
	if ev := <-e.Events(); ev.Type != EventTaskQueued {
		t.Errorf("buffered event = %s, want taskQueued", ev.Type)
	}
}

func TestEventEmitter_CloseStopsDelivery(t *testing.T) {
	e := NewEventEmitter(2, nil)

	delivered := 0
	e.Subscribe(func(Event) { delivered++ })

	e.Close()
	e.Close()
	e.Emit(Event{Type: EventTaskQueued})

	if delivered != 0 {
		t.Errorf("subscriber called after Close")
	}
	if _, ok := <-e.Events(); ok {
		t.Error("expected closed channel")
	}
}

func TestEventEmitter_NilSafe(t *testing.T) {
	var e *EventEmitter
	e.Emit(Event{Type: EventTaskQueued})
	e.Subscribe(func(Event) {})
	e.Close()
}

func TestEventType_IsTerminal(t *testing.T) {
	terminal := map[EventType]bool{
		EventTaskQueued:         false,
		EventTaskStarted:        false,
		EventStepOutput:         false,
		EventIterationCompleted: false,
		EventTaskCompleted:      true,
		EventTaskFailed:         true,
		EventTaskEscalated:      true,
		EventTaskCancelled:      true,
	}
	for typ, want := range terminal {
		if got := typ.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", typ, got, want)
		}
	}
}
