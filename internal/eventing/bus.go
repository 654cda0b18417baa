package eventing

import (
	"context"
	"errors"
	"sync"
)

// EventHandler handles a delivered envelope.
type EventHandler func(ctx context.Context, env Envelope) error

// ErrEmptyEventType is returned when the event type is missing.
var ErrEmptyEventType = errors.New("eventing: empty event type")

// InMemoryBus is a minimal in-process bus used when no broker is
// configured, and by tests.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewInMemoryBus constructs a new in-memory bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string][]EventHandler)}
}

// Publish builds an envelope and dispatches it to all handlers of its type.
func (b *InMemoryBus) Publish(ctx context.Context, eventType, tenantID string, payload any) error {
	env, err := BuildEnvelope(eventType, tenantID, payload)
	if err != nil {
		return err
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, env); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscribe registers a handler for an event type.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}
