package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/syntalk/im-server/internal/domain/event"
)

// MetadataEventKey carries the event's affinity key (usually the recipient
// or conversation id) so consumers can route without decoding the payload.
const MetadataEventKey = "event_key"

// EventDispatcher defines the high-level contract for outgoing events.
// Services publish through it and stay agnostic of the transport.
type EventDispatcher interface {
	Publish(ctx context.Context, ev event.Exportable) error
	Publisher() message.Publisher
}

type eventDispatcher struct {
	publisher message.Publisher
}

// NewEventDispatcher returns the interface instead of the pointer to the struct.
func NewEventDispatcher(pub message.Publisher) EventDispatcher {
	return &eventDispatcher{
		publisher: pub,
	}
}

func (d *eventDispatcher) Publish(ctx context.Context, ev event.Exportable) error {
	if ev == nil {
		return fmt.Errorf("event dispatcher: cannot publish nil event")
	}

	payload, err := json.Marshal(ev.GetPayload())
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if key := ev.GetKey(); key != "" {
		msg.Metadata.Set(MetadataEventKey, key)
	}

	if err := d.publisher.Publish(ev.GetRoutingKey(), msg); err != nil {
		return fmt.Errorf("event dispatcher: failed to publish to topic %s: %w", ev.GetRoutingKey(), err)
	}

	return nil
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.publisher
}
