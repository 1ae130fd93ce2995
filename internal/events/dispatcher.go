// Package events distributes simulation and data lifecycle events to
// in-process observers such as the websocket hub.
package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Event is a domain event delivered to observers.
type Event struct {
	// Type is the event type, e.g. "simulation:completed".
	Type string

	// Data is the payload flattened to a map for generic consumers.
	Data map[string]interface{}

	// TypedData is the payload struct. Observers that know the type
	// should prefer it over Data.
	TypedData any

	Context context.Context
}

// Observer receives dispatched events.
type Observer interface {
	// OnEvent handles one event. Errors are logged by the dispatcher and
	// do not stop delivery to other observers.
	OnEvent(event Event) error

	GetName() string

	// ShouldHandle filters the event types this observer cares about.
	ShouldHandle(eventType string) bool
}

// Dispatcher fans events out to registered observers. Safe for concurrent use.
type Dispatcher struct {
	observers []Observer
	mu        sync.RWMutex
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		observers: make([]Observer, 0),
	}
}

// Register adds an observer.
func (d *Dispatcher) Register(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.observers = append(d.observers, observer)
	log.Printf("[Dispatcher] Registered observer: %s", observer.GetName())
}

// Unregister removes an observer. Unknown observers are ignored.
func (d *Dispatcher) Unregister(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, obs := range d.observers {
		if obs == observer {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			log.Printf("[Dispatcher] Unregistered observer: %s", observer.GetName())
			return
		}
	}
}

func (d *Dispatcher) snapshot() []Observer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	return observers
}

// Dispatch notifies observers sequentially in registration order.
func (d *Dispatcher) Dispatch(event Event) {
	for _, observer := range d.snapshot() {
		if !observer.ShouldHandle(event.Type) {
			continue
		}
		if err := observer.OnEvent(event); err != nil {
			log.Printf("[Dispatcher] Observer %s failed to handle event %s: %v",
				observer.GetName(), event.Type, err)
		}
	}
}

// DispatchAsync notifies each interested observer in its own goroutine.
func (d *Dispatcher) DispatchAsync(event Event) {
	for _, observer := range d.snapshot() {
		if !observer.ShouldHandle(event.Type) {
			continue
		}
		go func(obs Observer) {
			if err := obs.OnEvent(event); err != nil {
				log.Printf("[Dispatcher] Observer %s failed to handle event %s: %v",
					obs.GetName(), event.Type, err)
			}
		}(observer)
	}
}

// ObserverCount returns the number of registered observers.
func (d *Dispatcher) ObserverCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.observers)
}

// Clear removes all observers.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = make([]Observer, 0)
}

// NewTypedEvent wraps a payload struct in an Event, filling Data with its
// JSON field names.
func NewTypedEvent[T any](eventType string, data T, ctx context.Context) Event {
	return Event{
		Type:      eventType,
		Data:      toMap(data),
		TypedData: data,
		Context:   ctx,
	}
}

func toMap(v any) map[string]interface{} {
	result := make(map[string]interface{})
	if v == nil {
		return result
	}
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return result
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return make(map[string]interface{})
	}
	return result
}

// GetTypedData extracts the payload of an Event as T.
func GetTypedData[T any](event Event) (T, bool) {
	var zero T
	if event.TypedData == nil {
		return zero, false
	}
	typed, ok := event.TypedData.(T)
	return typed, ok
}
