// Package events is a small publish/subscribe bus for build lifecycle
// events such as "compile.finished" and "config.reloaded".
package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event names published by watch mode.
const (
	CompileStarted  = "compile.started"
	CompileFinished = "compile.finished"
	CompileFailed   = "compile.failed"
	ConfigReloaded  = "config.reloaded"
	ConfigRejected  = "config.rejected"
)

// Event is one published event.
type Event struct {
	// Name is "<topic>.<action>", e.g. "compile.finished".
	Name string

	// At is when the event happened.
	At time.Time

	// Err is set for failure events.
	Err error

	// Data carries the payload, e.g. the compile result.
	Data map[string]any
}

// Topic returns the part of the name before the first dot.
func (e Event) Topic() string {
	topic, _, _ := strings.Cut(e.Name, ".")
	return topic
}

// Handler processes an event.
type Handler func(ctx context.Context, event Event) error

// Bus dispatches events to subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler. Patterns:
//   - "compile.finished" - exact match
//   - "compile.*" - every compile event
//   - "*" - all events
func (b *Bus) Subscribe(pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pattern] = append(b.handlers[pattern], handler)
}

// Publish calls every matching handler synchronously: exact subscribers
// first, then topic wildcards, then "*". Handler errors are logged and do
// not stop delivery.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	var matched []Handler
	matched = append(matched, b.handlers[event.Name]...)
	matched = append(matched, b.handlers[event.Topic()+".*"]...)
	matched = append(matched, b.handlers["*"]...)
	b.mu.RUnlock()

	b.logger.Debug().Str("event", event.Name).Int("handlers", len(matched)).Msg("event published")

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

// HasSubscribers reports whether Publish(name) would reach any handler.
func (b *Bus) HasSubscribers(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topic, _, _ := strings.Cut(name, ".")
	return len(b.handlers[name]) > 0 || len(b.handlers[topic+".*"]) > 0 || len(b.handlers["*"]) > 0
}
