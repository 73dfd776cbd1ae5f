package events

import (
	"testing"
	"time"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("NewBus() returned nil")
	}
	if bus.RoomEvents == nil {
		t.Fatal("RoomEvents channel is nil")
	}
}

func TestBus_PublishReceive(t *testing.T) {
	bus := NewBus()
	bus.Publish(RoomEvent{Kind: KindRaceStarted, RoomCode: "ABCD"})

	select {
	case received := <-bus.RoomEvents:
		if received.Kind != KindRaceStarted {
			t.Errorf("received Kind = %q, want %q", received.Kind, KindRaceStarted)
		}
		if received.RoomCode != "ABCD" {
			t.Errorf("received RoomCode = %q, want %q", received.RoomCode, "ABCD")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	bus.Publish(RoomEvent{Kind: KindRacerJoined, RoomCode: "ABCD"})

	bus.Close()
	bus.Close() // safe to repeat

	// Publishing after close is a no-op, not a panic.
	bus.Publish(RoomEvent{Kind: KindRacerLeft, RoomCode: "ABCD"})

	// Buffered events drain, then the channel reports closed so consumers
	// ranging over it terminate.
	ev, ok := <-bus.RoomEvents
	if !ok || ev.Kind != KindRacerJoined {
		t.Fatalf("drained event = %+v ok=%v, want buffered racerJoined", ev, ok)
	}
	if _, ok := <-bus.RoomEvents; ok {
		t.Error("channel should be closed after Close")
	}
}

func TestBus_PublishDoesNotBlockWhenFull(t *testing.T) {
	bus := NewBus()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(RoomEvent{Kind: KindRacerUpdate, RoomCode: "ABCD"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Publish blocked on a full bus")
	}
}
