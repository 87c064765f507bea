// Package realtime is the push channel for generated artifacts. Delivery is
// at most once and best effort: nothing is queued or replayed, and an event
// for a room without subscribers is dropped silently. The durable artifact
// record is the authoritative state; this channel only saves clients a poll.
package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Hub tracks subscriber connections per room.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*websocket.Conn]bool
	logger *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*websocket.Conn]bool),
		logger: logger,
	}
}

// Emit serializes the payload and writes it to every connection joined to
// the room. Connections that fail to take the write are dropped.
func (h *Hub) Emit(event string, payload any, room string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	message, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		return err
	}

	h.mu.RLock()
	connections := make([]*websocket.Conn, 0, len(h.rooms[room]))
	for connection := range h.rooms[room] {
		connections = append(connections, connection)
	}
	h.mu.RUnlock()

	for _, connection := range connections {
		_ = connection.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := connection.WriteMessage(websocket.TextMessage, message); err != nil {
			h.leave(room, connection)
			connection.Close()
		}
	}

	if h.logger != nil {
		h.logger.Printf("emitted %q room=%s subscribers=%d", event, room, len(connections))
	}
	return nil
}

// Subscribers reports how many connections are joined to a room.
func (h *Hub) Subscribers(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Serve upgrades the request and keeps the connection joined to the room
// until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, room string) {
	connection, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("websocket upgrade failed room=%s err=%v", room, err)
		}
		return
	}
	defer connection.Close()

	h.join(room, connection)
	defer h.leave(room, connection)

	// Inbound messages are ignored; the read loop only detects the close.
	for {
		if _, _, err := connection.ReadMessage(); err != nil {
			return
		}
	}
}

// Close drops every subscriber connection. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, connections := range h.rooms {
		for connection := range connections {
			connection.Close()
		}
		delete(h.rooms, room)
	}
}

func (h *Hub) join(room string, connection *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*websocket.Conn]bool)
	}
	h.rooms[room][connection] = true
}

func (h *Hub) leave(room string, connection *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[room], connection)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
}
