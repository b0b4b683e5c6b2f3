// Package events provides the in-process publish/subscribe bus each engine
// instance owns. There is no process-wide bus: construct one per engine and
// let it die with it.
package events

import "sync"

// Event names published by the engine.
const (
	BoardCreated   = "board:created"
	BoardUpdated   = "board:updated"
	BoardDeleted   = "board:deleted"
	TicketCreated  = "ticket:created"
	TicketUpdated  = "ticket:updated"
	TicketDeleted  = "ticket:deleted"
	CommentCreated = "comment:created"
)

// Handler receives an event payload. Handlers run synchronously inside the
// publishing call, in registration order.
type Handler func(payload any)

// Subscription identifies one registered handler so it can be removed.
type Subscription struct {
	event string
	id    int
}

type entry struct {
	id      int
	handler Handler
}

// Bus dispatches events to subscribed handlers. The zero value is not
// usable; call NewBus.
type Bus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string][]entry
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]entry)}
}

// Subscribe registers a handler for the named event and returns a token
// for Unsubscribe.
func (b *Bus) Subscribe(event string, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[event] = append(b.handlers[event], entry{id: b.nextID, handler: h})
	return Subscription{event: event, id: b.nextID}
}

// Unsubscribe removes a previously registered handler. Unknown tokens are
// ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[sub.event]
	for i, e := range entries {
		if e.id == sub.id {
			b.handlers[sub.event] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Publish invokes every handler subscribed to the event, in registration
// order. A panicking handler does not prevent subsequent handlers from
// running.
func (b *Bus) Publish(event string, payload any) {
	b.mu.Lock()
	entries := append([]entry(nil), b.handlers[event]...)
	b.mu.Unlock()
	for _, e := range entries {
		invoke(e.handler, payload)
	}
}

func invoke(h Handler, payload any) {
	defer func() { _ = recover() }()
	h(payload)
}
