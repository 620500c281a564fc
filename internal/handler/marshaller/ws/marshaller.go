package wsmarshaller

import (
	"encoding/json"

	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
)

// MarshallDeliveryEvent renders a hub event as a wire frame. The encoded
// bytes are cached on the event, so a user with several sessions pays for
// serialization once; frame timestamps ride in unix seconds.
func MarshallDeliveryEvent(ev event.Eventer) ([]byte, error) {
	if cached := ev.GetCached(); cached != nil {
		if raw, ok := cached.([]byte); ok {
			return raw, nil
		}
	}

	ts := ev.GetOccurredAt() / 1000

	var frame any
	switch p := ev.GetPayload().(type) {
	case *model.Message:
		frameType := TypeChatMessage
		if ev.GetKind() == event.GroupMessageCreated {
			frameType = TypeGroupMessage
		}
		frame = mapMessage(frameType, p, ts)

	case *event.AckPayload:
		frame = &Acknowledgement{
			Type:      TypeAcknowledgement,
			MessageID: p.MessageID,
			Status:    p.Status,
			Timestamp: ts,
		}

	case *event.StatusPayload:
		frame = &UserStatusFrame{
			Type:      TypeUserStatus,
			UserID:    p.SubjectID,
			Status:    string(p.Status),
			Timestamp: ts,
		}

	case *event.GroupStatusPayload:
		frame = &GroupUserStatusFrame{
			Type:      TypeGroupUserStatus,
			GroupID:   p.GroupID,
			UserID:    p.SubjectID,
			Status:    string(p.Status),
			Timestamp: ts,
		}

	case *event.BroadcastPayload:
		frame = &SystemBroadcastFrame{
			Type:       TypeSystemBroadcast,
			FromUserID: p.From,
			Content:    p.Content,
			Timestamp:  ts,
		}

	case *model.Notification:
		frame = &NotificationFrame{
			Type:      TypeNotification,
			ID:        p.ID,
			Kind:      p.Kind,
			Content:   p.Content,
			Extra:     p.Extra,
			Timestamp: ts,
		}

	default:
		// Payloadless signals (the liveness ping) go out as a bare frame.
		frame = &Basic{Type: ev.GetKind().String(), Timestamp: ts}
	}

	raw, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}

	ev.SetCached(raw)
	return raw, nil
}
