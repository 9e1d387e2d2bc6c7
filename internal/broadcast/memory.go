package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/plotforge/plotforge-api/internal/events"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind starts losing events; it can recover state by
// re-reading the event log.
const subscriberBuffer = 16

// MemoryBroadcaster is an in-process topic hub. Publish fans an event out
// to every live subscriber of the topic with a non-blocking send, so one
// slow consumer never stalls the publisher or its siblings.
type MemoryBroadcaster struct {
	mu     sync.RWMutex
	topics map[string]map[int]chan events.Event
	nextID int
	logger *slog.Logger
}

// NewMemoryBroadcaster creates a new in-process broadcaster.
func NewMemoryBroadcaster(logger *slog.Logger) *MemoryBroadcaster {
	return &MemoryBroadcaster{
		topics: make(map[string]map[int]chan events.Event),
		logger: logger.With("component", "memory_broadcaster"),
	}
}

// Publish delivers the event to all current subscribers of the topic.
// Subscribers whose buffers are full are skipped.
func (b *MemoryBroadcaster) Publish(ctx context.Context, topic string, event events.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.topics[topic] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				"topic", topic,
				"subscriber_id", id,
				"event_type", event.EventType)
		}
	}
	return nil
}

// Subscribe registers a subscriber for the topic. The returned cancel
// function removes the subscription and closes the channel; it is safe to
// call more than once.
func (b *MemoryBroadcaster) Subscribe(ctx context.Context, topic string) (<-chan events.Event, func(), error) {
	ch := make(chan events.Event, subscriberBuffer)

	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[int]chan events.Event)
	}
	id := b.nextID
	b.nextID++
	b.topics[topic][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.topics[topic]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.topics, topic)
				}
			}
			close(ch)
		})
	}

	// Detach automatically when the subscriber's context ends.
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return ch, cancel, nil
}

// Ensure MemoryBroadcaster satisfies the full contract.
var _ Broadcaster = (*MemoryBroadcaster)(nil)
