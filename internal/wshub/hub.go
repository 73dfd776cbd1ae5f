package wshub

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/coder/websocket"
)

// ServerMessage is the JSON structure pushed to clients watching a room.
type ServerMessage struct {
	Type     string `json:"t"`
	RoomCode string `json:"room,omitempty"`
	RacerID  string `json:"id,omitempty"`
	Name     string `json:"n,omitempty"`
	Status   string `json:"s,omitempty"`
	Detail   string `json:"d,omitempty"`
}

// Client represents a single WebSocket connection in the hub.
type Client struct {
	RacerID string
	Conn    *websocket.Conn
	Send    chan []byte
}

// WritePump reads from the Send channel and writes to the WebSocket connection.
func (c *Client) WritePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.Conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}

// Hub manages one room's WebSocket connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds a client to the hub, replacing any prior connection for the
// same racer.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if old, ok := h.clients[c.RacerID]; ok {
		close(old.Send)
	}
	h.clients[c.RacerID] = c
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(racerID string) {
	h.mu.Lock()
	c, ok := h.clients[racerID]
	if ok {
		close(c.Send)
		delete(h.clients, racerID)
	}
	h.mu.Unlock()
}

// UnregisterClient removes the client only if it is still the registered
// connection for its racer, so a replaced connection leaves its successor
// alone.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.RacerID]; ok && cur == c {
		close(cur.Send)
		delete(h.clients, c.RacerID)
	}
	h.mu.Unlock()
}

// Close disconnects every client. Used on room teardown.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, c := range h.clients {
		close(c.Send)
		delete(h.clients, id)
	}
	h.mu.Unlock()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to all clients. Non-blocking: drops if a client's
// channel is full.
func (h *Hub) Broadcast(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WSHub] Marshal error: %v\n", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.Send <- data:
		default:
			// Drop message if channel full
		}
	}
}
