package events

import (
	"log/slog"
	"strings"
)

// LoggingObserver writes every event to a slog logger.
type LoggingObserver struct {
	name    string
	logger  *slog.Logger
	verbose bool
}

// NewLoggingObserver creates a LoggingObserver. A nil logger uses slog.Default().
func NewLoggingObserver(logger *slog.Logger, verbose bool) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{name: "LoggingObserver", logger: logger, verbose: verbose}
}

// OnEvent logs the event.
func (o *LoggingObserver) OnEvent(event Event) error {
	if o.verbose {
		o.logger.Debug("event", "type", event.Type, "data", event.Data)
	} else {
		o.logger.Debug("event", "type", event.Type)
	}
	return nil
}

// GetName returns the observer's name.
func (o *LoggingObserver) GetName() string {
	return o.name
}

// ShouldHandle accepts every event.
func (o *LoggingObserver) ShouldHandle(string) bool {
	return true
}

// FuncObserver adapts a function to Observer, optionally restricted to
// event types with a given prefix ("simulation:").
type FuncObserver struct {
	Name   string
	Prefix string
	Fn     func(Event) error
}

// OnEvent calls Fn.
func (o *FuncObserver) OnEvent(event Event) error {
	if o.Fn == nil {
		return nil
	}
	return o.Fn(event)
}

// GetName returns the observer's name.
func (o *FuncObserver) GetName() string {
	return o.Name
}

// ShouldHandle matches the prefix; an empty prefix matches everything.
func (o *FuncObserver) ShouldHandle(eventType string) bool {
	return strings.HasPrefix(eventType, o.Prefix)
}
