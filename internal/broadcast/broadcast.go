package broadcast

import (
	"encoding/json"
	"log"
	"sync"

	"racebot/internal/events"
)

// EventMessage is one notification as delivered to a subscriber: the event
// kind plus its JSON-encoded payload.
type EventMessage struct {
	Event string
	Data  string
}

// Broadcaster fans room events out to every subscribed client.
type Broadcaster struct {
	Mu      sync.Mutex
	Clients map[chan EventMessage]bool
}

func NewBroadcaster(bus *events.Bus) *Broadcaster {
	b := &Broadcaster{
		Clients: make(map[chan EventMessage]bool),
	}
	go func() {
		for ev := range bus.RoomEvents {
			data, err := json.Marshal(ev.Payload)
			if err != nil {
				log.Printf("[Broadcast] Marshal error: %v\n", err)
				continue
			}
			b.Broadcast(string(ev.Kind), string(data))
		}
	}()
	return b
}

func (b *Broadcaster) Subscribe() chan EventMessage {
	ch := make(chan EventMessage, 10)
	b.Mu.Lock()
	b.Clients[ch] = true
	b.Mu.Unlock()
	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan EventMessage) {
	b.Mu.Lock()
	delete(b.Clients, ch)
	b.Mu.Unlock()
	close(ch)
}

func (b *Broadcaster) Broadcast(event string, data string) {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	for ch := range b.Clients {
		select {
		case ch <- EventMessage{Event: event, Data: data}:
		default:
			// skip clients with full data channels
		}
	}
}
