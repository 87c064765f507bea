package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type sinkWriter struct{}

func (sinkWriter) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *log.Logger {
	return log.New(sinkWriter{}, "", 0)
}

func newHubServer(hub *Hub) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		room := strings.TrimPrefix(r.URL.Path, "/ws/")
		hub.Serve(w, r, room)
	}))
}

func dial(t *testing.T, server *httptest.Server, room string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + room
	connection, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return connection
}

func waitForSubscribers(t *testing.T, hub *Hub, room string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Subscribers(room) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s never reached %d subscribers", room, want)
}

func TestHubEmitsToRoomSubscribers(t *testing.T) {
	hub := NewHub(quietLogger())
	server := newHubServer(hub)
	defer server.Close()

	connection := dial(t, server, "report-1")
	defer connection.Close()
	waitForSubscribers(t, hub, "report-1", 1)

	payload := map[string]any{"report": map[string]any{"media_id": "m-1"}}
	if err := hub.Emit("Pdf Report", payload, "report-1"); err != nil {
		t.Fatalf("emit: %v", err)
	}

	_ = connection.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := connection.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var received struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &received); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if received.Event != "Pdf Report" {
		t.Fatalf("unexpected event %q", received.Event)
	}
	if !strings.Contains(string(received.Data), `"media_id":"m-1"`) {
		t.Fatalf("unexpected data %s", received.Data)
	}
}

func TestHubEmitWithoutSubscribersSucceeds(t *testing.T) {
	hub := NewHub(quietLogger())
	if err := hub.Emit("Pdf Report", map[string]any{"report": nil}, "empty-room"); err != nil {
		t.Fatalf("emit to empty room must succeed, got %v", err)
	}
}

func TestHubScopesEmitsToTheRoom(t *testing.T) {
	hub := NewHub(quietLogger())
	server := newHubServer(hub)
	defer server.Close()

	inRoom := dial(t, server, "report-1")
	defer inRoom.Close()
	otherRoom := dial(t, server, "report-2")
	defer otherRoom.Close()
	waitForSubscribers(t, hub, "report-1", 1)
	waitForSubscribers(t, hub, "report-2", 1)

	if err := hub.Emit("Pdf Report", map[string]any{"report": "r1"}, "report-1"); err != nil {
		t.Fatalf("emit: %v", err)
	}

	_ = inRoom.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := inRoom.ReadMessage(); err != nil {
		t.Fatalf("subscriber in room should receive the event: %v", err)
	}

	_ = otherRoom.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := otherRoom.ReadMessage(); err == nil {
		t.Fatalf("subscriber in another room must not receive the event")
	}
}

func TestHubDropsSubscriberOnDisconnect(t *testing.T) {
	hub := NewHub(quietLogger())
	server := newHubServer(hub)
	defer server.Close()

	connection := dial(t, server, "report-1")
	waitForSubscribers(t, hub, "report-1", 1)

	connection.Close()
	waitForSubscribers(t, hub, "report-1", 0)
}
