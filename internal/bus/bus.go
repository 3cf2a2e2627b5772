package bus

import (
	"sync"

	"github.com/boardkit/dispatch/internal/logger"
)

// DefaultCapacity is the per-subscriber channel buffer size.
const DefaultCapacity = 100

// Subscription is an active subscription to engine events.
type Subscription struct {
	id int64
	ch chan Event
}

// Ch returns the channel to receive events on.
func (s *Subscription) Ch() <-chan Event {
	return s.ch
}

// EventBus fans engine lifecycle events out to subscribers.
type EventBus struct {
	mu       sync.RWMutex
	logger   *logger.Logger
	capacity int
	subs     map[int64]*Subscription
	nextID   int64
}

// New creates an EventBus with the given per-subscriber capacity.
// A capacity of 0 or less uses DefaultCapacity.
func New(capacity int, log *logger.Logger) *EventBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &EventBus{
		logger:   log,
		capacity: capacity,
		subs:     make(map[int64]*Subscription),
	}
}

// Subscribe registers a new subscriber and returns its subscription.
func (b *EventBus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id: b.nextID,
		ch: make(chan Event, b.capacity),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish delivers an event to all subscribers without blocking.
// If a subscriber's buffer is full the event is dropped for that subscriber.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			if b.logger != nil {
				b.logger.Warn("event dropped, subscriber buffer full",
					logger.Field{Key: "event_type", Value: string(event.Type)},
					logger.Field{Key: "task_id", Value: event.TaskID})
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes all subscriber channels and removes them.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
