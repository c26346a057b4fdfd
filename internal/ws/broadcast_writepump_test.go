package ws

import (
	"testing"
	"time"
)

// TestWritePump_RemovesClientOnWriteError verifies that when writePump
// encounters a write error it calls RemoveClient so the dead client is
// removed from the broadcaster's client map.
func TestWritePump_RemovesClientOnWriteError(t *testing.T) {
	srv, serverConn := dialTestWS(t)
	defer srv.Close()

	b := NewBroadcaster(newTestRegistry(), time.Hour, time.Hour, 0)
	defer b.Stop()

	c := &client{
		conn: serverConn,
		b:    b,
		send: make(chan []byte, 64),
	}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	if got := b.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client before test, got %d", got)
	}

	// Close the connection so any write attempt will immediately fail.
	serverConn.Close()

	c.send <- []byte(`{"type":"test"}`)

	go c.writePump()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("client not removed after write error; ClientCount = %d", b.ClientCount())
}
