package wshub

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestClient(id string) *Client {
	return &Client{
		RacerID: id,
		Send:    make(chan []byte, 10),
	}
}

func TestNewHub(t *testing.T) {
	h := NewHub()
	if h == nil {
		t.Fatal("NewHub() returned nil")
	}
	if h.Count() != 0 {
		t.Error("new hub should have no clients")
	}
}

func TestRegisterUnregister(t *testing.T) {
	h := NewHub()
	c := newTestClient("r1")
	h.Register(c)
	if h.Count() != 1 {
		t.Errorf("count = %d, want 1", h.Count())
	}

	h.Unregister("r1")
	if h.Count() != 0 {
		t.Errorf("count after unregister = %d, want 0", h.Count())
	}
	if _, open := <-c.Send; open {
		t.Error("send channel should be closed after unregister")
	}
}

func TestRegister_ReplacesPriorConnection(t *testing.T) {
	h := NewHub()
	old := newTestClient("r1")
	h.Register(old)

	replacement := newTestClient("r1")
	h.Register(replacement)

	if h.Count() != 1 {
		t.Errorf("count = %d, want 1", h.Count())
	}
	if _, open := <-old.Send; open {
		t.Error("old connection's send channel should be closed")
	}
}

func TestUnregisterClient_IgnoresReplacedConnection(t *testing.T) {
	h := NewHub()
	old := newTestClient("r1")
	h.Register(old)

	replacement := newTestClient("r1")
	h.Register(replacement)

	h.UnregisterClient(old)
	if h.Count() != 1 {
		t.Errorf("count = %d, want 1 (replacement should survive)", h.Count())
	}

	h.UnregisterClient(replacement)
	if h.Count() != 0 {
		t.Errorf("count = %d, want 0", h.Count())
	}
}

func TestBroadcast(t *testing.T) {
	h := NewHub()
	c1 := newTestClient("r1")
	c2 := newTestClient("r2")
	h.Register(c1)
	h.Register(c2)

	h.Broadcast(ServerMessage{Type: "racerUpdate", RacerID: "r1", Status: "Ready!"})

	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.Send:
			var msg ServerMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("unmarshal broadcast: %v", err)
			}
			if msg.Type != "racerUpdate" || msg.Status != "Ready!" {
				t.Errorf("got %+v", msg)
			}
		case <-time.After(1 * time.Second):
			t.Fatalf("client %s did not receive broadcast", c.RacerID)
		}
	}
}

func TestBroadcast_DropsWhenFull(t *testing.T) {
	h := NewHub()
	c := newTestClient("r1")
	h.Register(c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			h.Broadcast(ServerMessage{Type: "racerUpdate"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Broadcast blocked on a full client channel")
	}
}
