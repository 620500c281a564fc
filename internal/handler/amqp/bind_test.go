package amqp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/syntalk/im-server/internal/service/dto"
)

func discardFanoutHandler() *FanoutHandler {
	return &FanoutHandler{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestBindDecodesPayload(t *testing.T) {
	t.Parallel()

	var got *dto.MessageSent
	fn := Bind(discardFanoutHandler(), func(ctx context.Context, evt *dto.MessageSent) error {
		got = evt
		return nil
	})

	msg := message.NewMessage(watermill.NewUUID(), []byte(
		`{"event_type":"message_sent","message_id":42,"from_user_id":7,"to_id":9,"content":"hello"}`))
	require.NoError(t, fn(msg))

	require.NotNil(t, got)
	require.Equal(t, dto.EventMessageSent, got.EventType)
	require.Equal(t, int64(42), got.MessageID)
	require.Equal(t, int64(7), got.FromUserID)
	require.Equal(t, int64(9), got.ToID)
	require.Equal(t, "hello", got.Content)
}

func TestBindAcksMalformedPayload(t *testing.T) {
	t.Parallel()

	called := false
	fn := Bind(discardFanoutHandler(), func(ctx context.Context, evt *dto.MessageSent) error {
		called = true
		return nil
	})

	// A payload that can never decode must be acked, not retried forever.
	msg := message.NewMessage(watermill.NewUUID(), []byte("{broken"))
	require.NoError(t, fn(msg))
	require.False(t, called)
}

func TestBindPropagatesHandlerError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("downstream unavailable")
	fn := Bind(discardFanoutHandler(), func(ctx context.Context, evt *dto.MessageSent) error {
		return sentinel
	})

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"message_id":1}`))
	require.ErrorIs(t, fn(msg), sentinel)
}

func TestBindRecoversPanic(t *testing.T) {
	t.Parallel()

	fn := Bind(discardFanoutHandler(), func(ctx context.Context, evt *dto.MessageSent) error {
		panic("boom")
	})

	// The recovered panic acks the message; one poisoned event must not be
	// able to wedge the whole pipeline.
	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"message_id":2}`))
	require.NoError(t, fn(msg))
}
