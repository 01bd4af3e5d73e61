package surface

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialTestSurface connects a client to a WSSurface behind httptest.
func dialTestSurface(t *testing.T, s *WSSurface) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(s)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial surface: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestWSSurfaceBroadcast verifies Send reaches connected clients.
func TestWSSurfaceBroadcast(t *testing.T) {
	s := NewWSSurface(nil)
	defer s.Close()

	conn := dialTestSurface(t, s)

	// Registration happens in the server's handler goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for client registration")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.Send([]byte(`{"type":"updateMarkers"}`)); err != nil {
		t.Fatalf("Failed to broadcast: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}
	if string(data) != `{"type":"updateMarkers"}` {
		t.Errorf("Unexpected payload: %s", data)
	}
}

// TestWSSurfaceEvents verifies client messages reach the event handler.
func TestWSSurfaceEvents(t *testing.T) {
	events := make(chan string, 4)
	s := NewWSSurface(func(event string) { events <- event })
	defer s.Close()

	conn := dialTestSurface(t, s)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("MAP_READY")); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}

	select {
	case got := <-events:
		if got != "MAP_READY" {
			t.Errorf("Expected MAP_READY, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

// TestWSSurfaceDisconnect verifies dropped clients are pruned.
func TestWSSurfaceDisconnect(t *testing.T) {
	s := NewWSSurface(nil)
	defer s.Close()

	conn := dialTestSurface(t, s)

	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for client registration")
		}
		time.Sleep(10 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for s.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for client removal")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
