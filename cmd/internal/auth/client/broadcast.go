package authclient

import (
	"sync"
	"time"
)

// EventType enumerates the cross-tab auth events.
type EventType string

const (
	EventLogin          EventType = "login"
	EventLogout         EventType = "logout"
	EventSessionExpired EventType = "session_expired"
)

// Event is the payload shared between browsing contexts of one browser.
// UserID is set on login events so other tabs can tell whether the account
// actually changed.
type Event struct {
	Type   EventType `json:"type"`
	TS     time.Time `json:"ts"`
	UserID string    `json:"userId,omitempty"`
}

// Broadcaster is the shared channel between browsing contexts.
// Like a browser BroadcastChannel, a subscription never receives the
// events it published itself.
type Broadcaster interface {
	Subscribe(handler func(Event)) *Subscription
}

// Subscription is one end of the channel, owned by a single AuthContext.
type Subscription struct {
	b       *MemoryBroadcaster
	id      int
	handler func(Event)
}

// Publish delivers ev to every other live subscription, synchronously.
func (s *Subscription) Publish(ev Event) {
	if s == nil || s.b == nil {
		return
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	s.b.publish(s.id, ev)
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	if s == nil || s.b == nil {
		return
	}
	s.b.unsubscribe(s.id)
	s.b = nil
}

// MemoryBroadcaster is an in-process Broadcaster. One instance stands in
// for the browser-level channel shared by all tabs.
type MemoryBroadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*Subscription
}

func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{subs: make(map[int]*Subscription)}
}

func (b *MemoryBroadcaster) Subscribe(handler func(Event)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{b: b, id: b.nextID, handler: handler}
	b.subs[sub.id] = sub
	return sub
}

func (b *MemoryBroadcaster) publish(fromID int, ev Event) {
	b.mu.Lock()
	var handlers []func(Event)
	for id, sub := range b.subs {
		if id != fromID && sub.handler != nil {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (b *MemoryBroadcaster) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}
