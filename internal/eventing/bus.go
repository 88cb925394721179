// Package eventing provides the in-process event bus used to decouple
// ingestion and archival from their observers.
package eventing

import (
	"context"
	"errors"
	"reflect"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(ctx context.Context, event any) error

// ErrNilEvent is returned when a nil event is published.
var ErrNilEvent = errors.New("eventing: nil event")

// ErrInvalidEventType is returned when the event type cannot be determined.
var ErrInvalidEventType = errors.New("eventing: invalid event type")

// InMemoryBus delivers events synchronously to handlers keyed by the
// event's type name.
type InMemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]EventHandler
}

// NewInMemoryBus constructs an empty bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subs: make(map[string][]EventHandler)}
}

// Publish dispatches an event to all handlers of its type. Every handler
// runs even when an earlier one fails; the first error is returned.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	eventType := EventType(event)
	if eventType == "" {
		return ErrInvalidEventType
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subs[eventType]...)
	b.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscribe registers an untyped handler for an event type name. Most
// callers want On instead.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], handler)
	b.mu.Unlock()
}

// On registers a typed handler. It only ever sees events of type T;
// events of other types are routed past it.
func On[T any](bus *InMemoryBus, handler func(ctx context.Context, event T) error) {
	if bus == nil || handler == nil {
		return
	}
	bus.Subscribe(EventTypeOf[T](), func(ctx context.Context, event any) error {
		typed, ok := event.(T)
		if !ok {
			return ErrInvalidEventType
		}
		return handler(ctx, typed)
	})
}

// EventType returns the fully-qualified type name for an event instance.
func EventType(event any) string {
	if event == nil {
		return ""
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// EventTypeOf returns the fully-qualified type name for a type parameter.
func EventTypeOf[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
