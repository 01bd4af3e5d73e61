// Package surface provides concrete map rendering surfaces: a WebSocket
// broadcast surface for browser renderers and an in-process scene surface
// for terminal renderers. Both sit behind the bridge's Surface interface.
package surface

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSSurface broadcasts bridge commands to every connected browser client
// and forwards client-reported events (MAP_READY, USER_INTERACTION) back to
// the host.
type WSSurface struct {
	upgrader websocket.Upgrader
	onEvent  func(event string)

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

// NewWSSurface creates a WebSocket surface. onEvent receives every text
// message a client sends; clients report plain event names.
func NewWSSurface(onEvent func(event string)) *WSSurface {
	return &WSSurface{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The map page is served from the same host; cross-origin
			// embedding is not supported.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		onEvent: onEvent,
		conns:   make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP upgrades the connection and pumps client events until the
// socket closes.
func (s *WSSurface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.conns[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if s.onEvent != nil {
			s.onEvent(string(data))
		}
	}
}

// Send broadcasts a command payload to all connected clients. Failed writes
// drop the client; the channel is fire-and-forget.
func (s *WSSurface) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(s.conns, conn)
			conn.Close()
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (s *WSSurface) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every client.
func (s *WSSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
		delete(s.conns, conn)
	}
	return nil
}
