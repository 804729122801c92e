// Package eventstream relays engine notifications to websocket clients.
//
// The server subscribes to the notification bus and pushes every event as
// a JSON text message to each connected client. Connections are write-only
// from the server's point of view; anything a client sends is drained and
// discarded. A slow client never blocks the bus: each connection has a
// bounded send queue and messages that do not fit are dropped for that
// client alone.
package eventstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/fabula/internal/event"
)

const (
	// sendQueueSize bounds the per-client backlog before drops start.
	sendQueueSize = 64

	// writeTimeout bounds a single websocket write.
	writeTimeout = 5 * time.Second
)

// client is one connected websocket consumer.
type client struct {
	msgs chan []byte
	done chan struct{}
}

// Server accepts websocket connections and broadcasts bus events to them.
type Server struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	handles []event.Handle
	bus     *event.Bus
}

// NewServer creates a Server subscribed to every event kind on bus.
// Call [Server.Close] to detach it.
func NewServer(bus *event.Bus) *Server {
	s := &Server{
		clients: make(map[*client]struct{}),
		bus:     bus,
	}
	s.handles = bus.SubscribeAll(s.broadcast)
	return s
}

// broadcast fans ev out to every connected client as JSON.
func (s *Server) broadcast(ev event.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("eventstream: marshal event", "kind", ev.Kind, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.msgs <- payload:
		default:
			// Queue full: this client is too slow, drop the event for it.
			slog.Debug("eventstream: dropping event for slow client", "kind", ev.Kind)
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams events until
// the client disconnects or the server closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("eventstream: websocket accept failed", "error", err)
		return
	}

	c := &client{
		msgs: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "server closing")
		return
	}
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()

	slog.Info("eventstream: client connected", "clients", n)
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "stream closed")
		slog.Info("eventstream: client disconnected")
	}()

	// The connection is write-only; CloseRead drains incoming frames and
	// cancels the returned context when the client goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case payload := <-c.msgs:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				slog.Debug("eventstream: write failed", "error", err)
				return
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close detaches the server from the bus and disconnects all clients.
func (s *Server) Close() {
	for _, h := range s.handles {
		s.bus.Unsubscribe(h)
	}

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for c := range s.clients {
			close(c.done)
		}
	}
	s.mu.Unlock()
}
