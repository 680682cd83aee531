package events

import (
	"sync"
)

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(topic Topic, event Event)
}

// Subscriber is the read side of the bus.
type Subscriber interface {
	Subscribe(topic Topic, bufSize int) <-chan Event
	SubscribeAll(bufSize int) <-chan Event
	Unsubscribe(ch <-chan Event)
}

// EventBus is a channel-based pub-sub event bus with typed topics.
// Listeners are independent: each gets its own channel and a slow listener
// only loses its own events.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[Topic][]chan Event
	allSubs []chan Event
	closed  bool
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[Topic][]chan Event),
	}
}

func newSubChan(bufSize int) chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}
	return make(chan Event, bufSize)
}

// Subscribe returns a channel receiving every event published to topic.
// bufSize defaults to 256 if <= 0.
func (b *EventBus) Subscribe(topic Topic, bufSize int) <-chan Event {
	ch := newSubChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// SubscribeAll returns a channel receiving events from every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	ch := newSubChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.allSubs = append(b.allSubs, ch)
	return ch
}

// Unsubscribe detaches and closes a channel returned by Subscribe or
// SubscribeAll. Unknown channels are ignored.
func (b *EventBus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for topic, channels := range b.subs {
		for i, c := range channels {
			if c == ch {
				b.subs[topic] = append(channels[:i:i], channels[i+1:]...)
				close(c)
				return
			}
		}
	}
	for i, c := range b.allSubs {
		if c == ch {
			b.allSubs = append(b.allSubs[:i:i], b.allSubs[i+1:]...)
			close(c)
			return
		}
	}
}

// Publish delivers event to the topic's subscribers and to SubscribeAll
// channels. Never blocks: a full subscriber channel drops the event.
func (b *EventBus) Publish(topic Topic, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs[topic] {
		select {
		case ch <- event:
		default:
		}
	}
	for _, ch := range b.allSubs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes the bus and every subscriber channel. Idempotent.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Topic, Event) {}
