package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/service/dto"
)

func TestDispatcherPublishesPayloadAndKey(t *testing.T) {
	t.Parallel()
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	incoming, err := bus.Subscribe(ctx, event.TopicMessagesPersonal)
	require.NoError(t, err)

	d := NewEventDispatcher(bus)
	payload := &dto.MessageSent{
		EventType:  dto.EventMessageSent,
		EventID:    "ev-1",
		FromUserID: 1,
		ToID:       2,
		Content:    "hi",
	}
	require.NoError(t, d.Publish(context.Background(), event.NewBusEvent(event.TopicMessagesPersonal, "2", payload)))

	select {
	case msg := <-incoming:
		assert.Equal(t, "2", msg.Metadata.Get(MetadataEventKey))
		var got dto.MessageSent
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, "ev-1", got.EventID)
		assert.Equal(t, "hi", got.Content)
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no message arrived on the topic")
	}
}

func TestDispatcherRejectsNilEvent(t *testing.T) {
	t.Parallel()
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = bus.Close() })

	d := NewEventDispatcher(bus)
	require.Error(t, d.Publish(context.Background(), nil))
}
