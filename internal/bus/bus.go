// Package bus provides the in-process event bus that decouples the
// execution core from dashboard and logging consumers. Publishing never
// blocks: subscribers with full buffers simply miss events.
package bus

import (
	"sync"
	"time"
)

// Well-known topics published by the execution core.
const (
	TopicStateChange    = "tool:stateChange"
	TopicRecoveryExec   = "recovery:executed"
	TopicProviderStatus = "provider:status:changed"
)

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 64

// Event is one published message.
type Event struct {
	Topic     string
	Payload   interface{}
	Timestamp time.Time
}

// Subscription receives events for the topics it was registered with.
// Close it via Bus.Unsubscribe when done.
type Subscription struct {
	C      chan Event
	topics map[string]bool
}

// wants reports whether this subscription should receive events on the
// given topic. A subscription with no topic filter receives everything.
func (s *Subscription) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	return s.topics[topic]
}

// Bus fans events out to subscribers. Safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}

	clock func() time.Time
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs:  make(map[*Subscription]struct{}),
		clock: time.Now,
	}
}

// Subscribe registers a subscriber for the given topics. With no topics
// the subscriber receives all events. The returned subscription's
// channel is buffered; slow consumers drop events rather than blocking
// publishers.
func (b *Bus) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{
		C:      make(chan Event, defaultBuffer),
		topics: make(map[string]bool, len(topics)),
	}
	for _, t := range topics {
		sub.topics[t] = true
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()

	if ok {
		close(sub.C)
	}
}

// Publish delivers an event to every matching subscriber without
// blocking. Subscribers whose buffer is full miss the event.
func (b *Bus) Publish(topic string, payload interface{}) {
	event := Event{
		Topic:     topic,
		Payload:   payload,
		Timestamp: b.clock(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if !sub.wants(topic) {
			continue
		}
		select {
		case sub.C <- event:
		default:
			// Buffer full - drop for this subscriber.
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
