package websocket

import (
	"strings"

	"github.com/ramonehamilton/CHUNI-Companion/internal/events"
)

// WebSocketObserver forwards dispatcher events to WebSocket clients.
type WebSocketObserver struct {
	name     string
	hub      *Hub
	prefixes []string
}

// NewWebSocketObserver creates an observer that forwards events whose type
// starts with one of prefixes, or every event when none are given.
func NewWebSocketObserver(hub *Hub, prefixes ...string) *WebSocketObserver {
	return &WebSocketObserver{
		name:     "WebSocketObserver",
		hub:      hub,
		prefixes: prefixes,
	}
}

// OnEvent broadcasts the event. The player is taken from the payload's
// "user" field so per-player subscribers can be filtered.
func (o *WebSocketObserver) OnEvent(event events.Event) error {
	if o.hub == nil {
		return nil
	}

	ws := Event{Type: event.Type, Data: event.Data}
	if event.TypedData != nil {
		ws.Data = event.TypedData
	}
	if user, ok := event.Data["user"].(string); ok {
		ws.User = user
	}
	o.hub.BroadcastEvent(ws)
	return nil
}

// GetName returns the observer's name.
func (o *WebSocketObserver) GetName() string {
	return o.name
}

// ShouldHandle applies the prefix filter.
func (o *WebSocketObserver) ShouldHandle(eventType string) bool {
	if len(o.prefixes) == 0 {
		return true
	}
	for _, p := range o.prefixes {
		if strings.HasPrefix(eventType, p) {
			return true
		}
	}
	return false
}

var _ events.Observer = (*WebSocketObserver)(nil)
