package mocks

import (
	"context"
	"sync"

	"github.com/plotforge/plotforge-api/internal/events"
)

// CapturePublisher records every published event for test assertions.
type CapturePublisher struct {
	mu        sync.Mutex
	published []PublishedEvent

	// PublishErr, when set, is returned by every Publish call.
	PublishErr error
}

// PublishedEvent is one captured Publish call.
type PublishedEvent struct {
	Topic string
	Event events.Event
}

// NewCapturePublisher creates an empty CapturePublisher.
func NewCapturePublisher() *CapturePublisher {
	return &CapturePublisher{}
}

// Publish implements events.Publisher.
func (p *CapturePublisher) Publish(ctx context.Context, topic string, event events.Event) error {
	if p.PublishErr != nil {
		return p.PublishErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, PublishedEvent{Topic: topic, Event: event})
	return nil
}

// Published returns the captured calls in order.
func (p *CapturePublisher) Published() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PublishedEvent, len(p.published))
	copy(out, p.published)
	return out
}

var _ events.Publisher = (*CapturePublisher)(nil)
