// Package broadcast provides per-topic pub/sub fan-out of event envelopes
// to live subscribers. Delivery is best-effort and ordered per publisher;
// there is no replay for subscribers that connect late or fall behind.
package broadcast

import (
	"context"

	"github.com/plotforge/plotforge-api/internal/events"
)

// Broadcaster is the full pub/sub contract: the bus publishes through the
// events.Publisher half, and subscribers attach per topic. The topic key
// is the job id as a string.
type Broadcaster interface {
	events.Publisher

	// Subscribe registers a new subscriber for the topic and returns the
	// stream of events plus a cancel function that must be called to
	// release the subscription.
	Subscribe(ctx context.Context, topic string) (<-chan events.Event, func(), error)
}
