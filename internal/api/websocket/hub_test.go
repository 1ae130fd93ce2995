package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T, cfg HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHubWithConfig(cfg)
	go hub.Run()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(func() {
		hub.Stop()
		server.Close()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}
	return ev
}

func TestHub_BroadcastToClient(t *testing.T) {
	hub, server := startHub(t, HubConfig{})
	conn := dial(t, server, "")
	waitForClients(t, hub, 1)

	if !hub.BroadcastEvent(Event{Type: "simulation:completed", Data: map[string]interface{}{"phase": "target_reached"}}) {
		t.Fatal("Expected broadcast to succeed")
	}

	ev := readEvent(t, conn)
	if ev.Type != "simulation:completed" {
		t.Errorf("Expected simulation:completed, got %s", ev.Type)
	}
	data, ok := ev.Data.(map[string]interface{})
	if !ok || data["phase"] != "target_reached" {
		t.Errorf("Unexpected data: %v", ev.Data)
	}
}

func TestHub_UserFilter(t *testing.T) {
	hub, server := startHub(t, HubConfig{})
	alice := dial(t, server, "?user=alice")
	waitForClients(t, hub, 1)

	hub.BroadcastEvent(Event{Type: "player:refreshed", User: "bob"})
	hub.BroadcastEvent(Event{Type: "player:refreshed", User: "Alice"})
	hub.BroadcastEvent(Event{Type: "data:reloaded"})

	first := readEvent(t, alice)
	if first.Type != "player:refreshed" || first.User != "Alice" {
		t.Errorf("Expected Alice's event first, got %+v", first)
	}
	second := readEvent(t, alice)
	if second.Type != "data:reloaded" {
		t.Errorf("Expected global event, got %+v", second)
	}
}

func TestHub_OriginCheck(t *testing.T) {
	_, server := startHub(t, HubConfig{AllowedOrigins: []string{"http://localhost:3000"}})
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	if _, resp, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("Expected foreign origin to be rejected")
	} else if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", resp.StatusCode)
	}

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Expected allowed origin to connect: %v", err)
	}
	_ = conn.Close()
}

func TestOriginChecker_Wildcard(t *testing.T) {
	check := originChecker([]string{"http://a.test", "*"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://b.test")
	if !check(req) {
		t.Error("Expected wildcard to allow any origin")
	}
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hub.Stop()
	hub.Stop()

	deadline := time.Now().Add(time.Second)
	for !hub.IsStopped() {
		if time.Now().After(deadline) {
			t.Fatal("Hub did not stop")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if hub.BroadcastEvent(Event{Type: "x"}) {
		t.Error("Expected broadcast on stopped hub to fail")
	}

	w := httptest.NewRecorder()
	hub.ServeWs(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}
