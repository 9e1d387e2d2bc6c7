package broadcast

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotforge/plotforge-api/internal/events"
)

func newTestBroadcaster() *MemoryBroadcaster {
	return NewMemoryBroadcaster(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testEvent(eventType events.Type) events.Event {
	jobID := uuid.New()
	return events.Event{
		ID:         uuid.New(),
		JobID:      &jobID,
		EntityType: events.EntityJob,
		EntityID:   jobID,
		EventType:  eventType,
		Level:      events.LevelInfo,
		CreatedAt:  time.Now().UTC(),
	}
}

func receive(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()

	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestMemoryBroadcasterFanOut(t *testing.T) {
	ctx := context.Background()
	b := newTestBroadcaster()

	first, cancelFirst, err := b.Subscribe(ctx, "job-1")
	require.NoError(t, err)
	defer cancelFirst()

	second, cancelSecond, err := b.Subscribe(ctx, "job-1")
	require.NoError(t, err)
	defer cancelSecond()

	other, cancelOther, err := b.Subscribe(ctx, "job-2")
	require.NoError(t, err)
	defer cancelOther()

	event := testEvent(events.TypeStart)
	require.NoError(t, b.Publish(ctx, "job-1", event))

	assert.Equal(t, event.ID, receive(t, first).ID)
	assert.Equal(t, event.ID, receive(t, second).ID)

	select {
	case <-other:
		t.Fatal("subscriber of another topic received the event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBroadcasterPublishWithoutSubscribers(t *testing.T) {
	b := newTestBroadcaster()
	assert.NoError(t, b.Publish(context.Background(), "nobody-home", testEvent(events.TypeStart)))
}

func TestMemoryBroadcasterDropsForSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	b := newTestBroadcaster()

	ch, cancel, err := b.Subscribe(ctx, "job-1")
	require.NoError(t, err)
	defer cancel()

	// Fill the buffer and then some; the overflow is dropped, never blocked on.
	for i := 0; i < subscriberBuffer+5; i++ {
		require.NoError(t, b.Publish(ctx, "job-1", testEvent(events.TypeProgress)))
	}

	delivered := 0
	for {
		select {
		case <-ch:
			delivered++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer, delivered)
}

func TestMemoryBroadcasterUnsubscribe(t *testing.T) {
	ctx := context.Background()
	b := newTestBroadcaster()

	ch, cancel, err := b.Subscribe(ctx, "job-1")
	require.NoError(t, err)

	cancel()
	cancel() // safe to call twice

	_, open := <-ch
	assert.False(t, open, "cancel must close the subscriber channel")

	require.NoError(t, b.Publish(ctx, "job-1", testEvent(events.TypeStart)))
}

func TestMemoryBroadcasterContextDetaches(t *testing.T) {
	b := newTestBroadcaster()

	subCtx, cancelCtx := context.WithCancel(context.Background())
	ch, _, err := b.Subscribe(subCtx, "job-1")
	require.NoError(t, err)

	cancelCtx()

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not detach on context cancellation")
	}
}
