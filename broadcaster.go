package magiclink

import (
	"sync"
	"time"
)

// AuthEventType is the fixed vocabulary of auth state changes.
type AuthEventType string

const (
	AuthEventLogin  AuthEventType = "login"
	AuthEventLogout AuthEventType = "logout"
)

// AuthEvent describes a session transition. Session is nil on logout.
type AuthEvent struct {
	Type       AuthEventType
	Session    *SessionObject
	OccurredAt time.Time
}

// Broadcaster fans auth state changes out to in-process subscribers so UI
// regions can observe login/logout without polling. Delivery is
// at-least-once per publish: handlers must treat a repeated identical event
// as a no-op rather than a unique, consumable signal.
type Broadcaster struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(AuthEvent)
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		handlers: map[int]func(AuthEvent){},
	}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Unsubscribing twice is harmless.
func (b *Broadcaster) Subscribe(handler func(AuthEvent)) func() {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every current subscriber synchronously, in
// no particular order.
func (b *Broadcaster) Publish(event AuthEvent) {
	b.mu.RLock()
	handlers := make([]func(AuthEvent), 0, len(b.handlers))
	for _, handler := range b.handlers {
		handlers = append(handlers, handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
