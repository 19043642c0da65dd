// Package bus implements the synchronous change-notification channel between
// the node store and its observers.
//
// Delivery contract: Publish invokes every handler subscribed to the event's
// kind, in subscription order, on the caller's goroutine, before returning.
// Synchronous in-order delivery is part of the contract, not an incidental
// property.
package bus

import (
	"sync"

	"github.com/starford/eihwaz/internal/models"
)

// EventKind names a state transition announced by the store.
type EventKind string

// Event kinds and their payload fields:
//
//	NodesChanged      no payload
//	NodeCreated       Node
//	NodeUpdated       Node
//	NodeDeleted       ID
//	NodeMoved         Node
//	SelectionChanged  ID ("" for cleared selection)
//	ContentChanged    Content
//	ActiveChanged     ID
//	ExpansionChanged  ID
const (
	NodesChanged     EventKind = "nodes.changed"
	NodeCreated      EventKind = "node.created"
	NodeUpdated      EventKind = "node.updated"
	NodeDeleted      EventKind = "node.deleted"
	NodeMoved        EventKind = "node.moved"
	SelectionChanged EventKind = "selection.changed"
	ContentChanged   EventKind = "content.changed"
	ActiveChanged    EventKind = "active.changed"
	ExpansionChanged EventKind = "expansion.changed"
)

// Event carries a state transition and its payload.
type Event struct {
	Kind    EventKind       `json:"kind"`
	ID      string          `json:"id,omitempty"`
	Node    *models.Node    `json:"node,omitempty"`
	Content *models.Content `json:"content,omitempty"`
}

// Handler observes events of one kind.
type Handler func(Event)

type subscription struct {
	token   int
	kind    EventKind
	handler Handler
}

// Bus registers observers by event kind and delivers synchronously.
// Subscribe returns a token for Unsubscribe. The mutex only guards the
// subscription list; handlers run outside any Bus-internal ordering concern
// because store operations are serialized by the caller anyway.
type Bus struct {
	mu   sync.Mutex
	next int
	subs []subscription
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers h for events of the given kind and returns an
// unsubscribe token.
func (b *Bus) Subscribe(kind EventKind, h Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs = append(b.subs, subscription{token: b.next, kind: kind, handler: h})
	return b.next
}

// SubscribeAll registers h for every event kind.
func (b *Bus) SubscribeAll(h Handler) int {
	return b.Subscribe(kindAll, h)
}

// kindAll is an internal wildcard used by SubscribeAll.
const kindAll EventKind = "*"

// Unsubscribe removes the subscription identified by token. Unknown tokens
// are a no-op.
func (b *Bus) Unsubscribe(token int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.token == token {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to all matching handlers in subscription order.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.kind == ev.Kind || s.kind == kindAll {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
