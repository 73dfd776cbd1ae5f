package events

import "sync"

// Kind identifies a room lifecycle event for the notification sink.
type Kind string

const (
	KindRacerJoined        Kind = "racerJoined"
	KindRacerLeft          Kind = "racerLeft"
	KindRacerUpdate        Kind = "racerUpdate"
	KindCountdownStarted   Kind = "countdownStarted"
	KindCountdownCancelled Kind = "countdownCancelled"
	KindRaceStarted        Kind = "raceStarted"
	KindRaceComplete       Kind = "raceComplete"
	KindRaceCancelled      Kind = "raceCancelled"
)

// RoomEvent is the structured payload handed to the notification sink; the
// chat layer owns user-facing text.
type RoomEvent struct {
	Kind     Kind
	RoomCode string
	Payload  any
}

type Bus struct {
	RoomEvents chan RoomEvent

	mu     sync.Mutex
	closed bool
}

func NewBus() *Bus {
	return &Bus{
		RoomEvents: make(chan RoomEvent, 32),
	}
}

// Publish is non-blocking: if nothing is draining the bus the event is
// dropped rather than stalling a room operation. Publishing to a closed bus
// is a no-op.
func (b *Bus) Publish(ev RoomEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.RoomEvents <- ev:
	default:
	}
}

// Close shuts the bus down; consumers ranging over RoomEvents terminate once
// the buffered events drain. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.RoomEvents)
}
