package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("connection.", 10)
	defer unsub()

	b.Publish(Event{Kind: "connection.state_changed", Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != "connection.state_changed" {
			t.Errorf("got kind %q, want connection.state_changed", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("view.", 10)
	defer unsub()

	b.Publish(Event{Kind: "connection.state_changed"})
	b.Publish(Event{Kind: "view.changed"})

	select {
	case evt := <-ch:
		if evt.Kind != "view.changed" {
			t.Errorf("got kind %q, want view.changed", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure connection event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("connection.", 10)
	unsub()

	b.Publish(Event{Kind: "connection.state_changed"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

func TestEmitStampsTime(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(KindViewChanged, 1)
	defer unsub()

	before := time.Now()
	b.Emit(KindViewChanged, "conv-1")

	select {
	case evt := <-ch:
		if evt.Timestamp.Before(before) {
			t.Errorf("timestamp %v before publish time %v", evt.Timestamp, before)
		}
		if evt.Payload != "conv-1" {
			t.Errorf("payload = %v, want conv-1", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestFullSubscriberDropsAndCounts(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("send.", 1)
	defer unsub()

	b.Emit(KindSendAck, 1)
	b.Emit(KindSendAck, 2)
	b.Emit(KindSendFailed, 3)

	if got := b.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
}

func TestUnsubscribeTwice(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("view.", 1)
	unsub()
	unsub()
}
