package eventbus

import (
	"sync"
	"sync/atomic"
)

// SubscriberID identifies a filtered subscription for later Unsubscribe.
type SubscriberID uint64

// Filter reports whether a subscriber wants to see a given event.
type Filter func(Event) bool

const defaultBacklog = 256

// Bus is the process-wide broadcast channel. Safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[SubscriberID]chan Event
	filters     map[SubscriberID]Filter
	nextID      uint64
}

// New returns an empty event bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[SubscriberID]chan Event),
		filters:     make(map[SubscriberID]Filter),
	}
}

// Publish sends event to every subscriber whose filter accepts it (or
// who has none). Delivery is non-blocking: a subscriber with a full
// backlog silently misses the event rather than stalling the publisher.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subscribers {
		if f, ok := b.filters[id]; ok && f != nil && !f(event) {
			continue
		}
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a receive channel that gets every published event.
func (b *Bus) Subscribe() (SubscriberID, <-chan Event) {
	return b.SubscribeFiltered(nil)
}

// SubscribeFiltered returns a receive channel gated by filter. A nil
// filter matches everything.
func (b *Bus) SubscribeFiltered(filter Filter) (SubscriberID, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := SubscriberID(atomic.AddUint64(&b.nextID, 1))
	ch := make(chan Event, defaultBacklog)
	b.subscribers[id] = ch
	if filter != nil {
		b.filters[id] = filter
	}
	return id, ch
}

// SubscribeSession returns a receive channel limited to events carrying
// the given session id.
func (b *Bus) SubscribeSession(sessionID string) (SubscriberID, <-chan Event) {
	return b.SubscribeFiltered(func(e Event) bool { return e.SessionID == sessionID })
}

// SubscribeTopic returns a receive channel limited to a single topic name.
func (b *Bus) SubscribeTopic(name string) (SubscriberID, <-chan Event) {
	return b.SubscribeFiltered(func(e Event) bool { return e.Name == name })
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
		delete(b.filters, id)
	}
}

// SubscriberCount returns the number of currently registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
