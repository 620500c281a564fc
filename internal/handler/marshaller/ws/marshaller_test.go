package wsmarshaller

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
)

func decodeFrame(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestMarshalPersonalMessage(t *testing.T) {
	t.Parallel()

	msg := &model.Message{
		ID:      42,
		From:    7,
		To:      model.UserRecipient(9),
		Kind:    model.KindText,
		Payload: []byte("hello"),
		SentAt:  1724500000123,
	}
	raw, err := MarshallDeliveryEvent(event.NewMessageEvent(9, msg))
	require.NoError(t, err)

	frame := decodeFrame(t, raw)
	assert.Equal(t, "chat_message", frame["type"])
	assert.EqualValues(t, 42, frame["message_id"])
	assert.EqualValues(t, 7, frame["from_user_id"])
	assert.Equal(t, "hello", frame["content"])
	assert.Equal(t, "text", frame["message_type"])
	assert.EqualValues(t, 1724500000, frame["timestamp"], "timestamps ride in unix seconds")
	assert.NotContains(t, frame, "group_id")
}

func TestMarshalGroupMessage(t *testing.T) {
	t.Parallel()

	msg := &model.Message{
		ID:      43,
		From:    7,
		To:      model.GroupRecipient(300),
		Kind:    model.KindImage,
		Payload: []byte("pic"),
		SentAt:  1724500001000,
	}
	raw, err := MarshallDeliveryEvent(event.NewMessageEvent(11, msg))
	require.NoError(t, err)

	frame := decodeFrame(t, raw)
	assert.Equal(t, "group_message", frame["type"])
	assert.EqualValues(t, 300, frame["group_id"])
	assert.Equal(t, "image", frame["message_type"])
}

func TestMarshalAcknowledgement(t *testing.T) {
	t.Parallel()

	raw, err := MarshallDeliveryEvent(event.NewAckEvent(7, 42, event.AckDelivered))
	require.NoError(t, err)

	frame := decodeFrame(t, raw)
	assert.Equal(t, "message_acknowledgement", frame["type"])
	assert.EqualValues(t, 42, frame["message_id"])
	assert.Equal(t, "delivered", frame["status"])
}

func TestMarshalPresenceFrames(t *testing.T) {
	t.Parallel()

	raw, err := MarshallDeliveryEvent(event.NewStatusEvent(1, 2, model.StatusAway))
	require.NoError(t, err)
	frame := decodeFrame(t, raw)
	assert.Equal(t, "user_status", frame["type"])
	assert.EqualValues(t, 2, frame["user_id"])
	assert.Equal(t, "away", frame["status"])

	raw, err = MarshallDeliveryEvent(event.NewGroupStatusEvent(1, 300, 2, model.StatusOnline))
	require.NoError(t, err)
	frame = decodeFrame(t, raw)
	assert.Equal(t, "group_user_status", frame["type"])
	assert.EqualValues(t, 300, frame["group_id"])
	assert.EqualValues(t, 2, frame["user_id"])
}

func TestMarshalBroadcastAndNotification(t *testing.T) {
	t.Parallel()

	raw, err := MarshallDeliveryEvent(event.NewBroadcastEvent(1, "maintenance at noon"))
	require.NoError(t, err)
	frame := decodeFrame(t, raw)
	assert.Equal(t, "system_broadcast", frame["type"])
	assert.EqualValues(t, 1, frame["from_user_id"])
	assert.Equal(t, "maintenance at noon", frame["content"])

	raw, err = MarshallDeliveryEvent(event.NewNotificationEvent(9, &model.Notification{
		ID:      5,
		Kind:    model.NotificationFriendReq,
		Content: "alice wants to be your friend",
	}))
	require.NoError(t, err)
	frame = decodeFrame(t, raw)
	assert.Equal(t, "notification", frame["type"])
	assert.Equal(t, "friend_request", frame["kind"])
}

func TestMarshalPingFallsBackToBareFrame(t *testing.T) {
	t.Parallel()

	raw, err := MarshallDeliveryEvent(event.NewPingEvent(9))
	require.NoError(t, err)

	frame := decodeFrame(t, raw)
	assert.Equal(t, "ping", frame["type"])
	assert.Contains(t, frame, "timestamp")
}

func TestMarshalCachesEncodedBytes(t *testing.T) {
	t.Parallel()

	ev := event.NewAckEvent(7, 42, event.AckRead)
	first, err := MarshallDeliveryEvent(ev)
	require.NoError(t, err)
	require.NotNil(t, ev.GetCached())

	second, err := MarshallDeliveryEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
