package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/syntalk/im-server/internal/domain/model"
)

// [GUARD] Ensure compliance with the Eventer interface.
var _ Eventer = (*DeliveryEvent)(nil)

// DeliveryEvent is the generic envelope for everything the Hub routes to a
// user's sessions. The payload is a typed struct the marshaller switches on;
// cached holds the wire form so serialization happens once per event even
// when the user has several sessions.
type DeliveryEvent struct {
	id         string
	userID     int64
	kind       EventKind
	priority   EventPriority
	occurredAt int64
	payload    any
	cached     any
}

func (e *DeliveryEvent) GetID() string              { return e.id }
func (e *DeliveryEvent) GetKind() EventKind         { return e.kind }
func (e *DeliveryEvent) GetUserID() int64           { return e.userID }
func (e *DeliveryEvent) GetPriority() EventPriority { return e.priority }
func (e *DeliveryEvent) GetOccurredAt() int64       { return e.occurredAt }
func (e *DeliveryEvent) GetPayload() any            { return e.payload }
func (e *DeliveryEvent) GetCached() any             { return e.cached }
func (e *DeliveryEvent) SetCached(v any)            { e.cached = v }

// New is the universal factory for delivery events. The typed constructors
// below are preferred; New remains for callers assembling custom signals.
func New(userID int64, kind EventKind, priority EventPriority, payload any) *DeliveryEvent {
	return &DeliveryEvent{
		id:         uuid.NewString(),
		userID:     userID,
		kind:       kind,
		priority:   priority,
		occurredAt: time.Now().UnixMilli(),
		payload:    payload,
	}
}

// AckPayload confirms a message reached the recipient (status delivered) or
// was read (status read). Routed to the original sender.
type AckPayload struct {
	MessageID int64
	Status    string
}

const (
	AckDelivered = "delivered"
	AckRead      = "read"
)

// StatusPayload is a presence delta about SubjectID, routed to one of their
// friends.
type StatusPayload struct {
	SubjectID int64
	Status    model.Status
}

// GroupStatusPayload is a presence delta scoped to a shared group.
type GroupStatusPayload struct {
	GroupID   int64
	SubjectID int64
	Status    model.Status
}

// BroadcastPayload carries a server-wide announcement.
type BroadcastPayload struct {
	From    int64
	Content string
}

// NewMessageEvent wraps a stored message for hub delivery to userID. The
// same message fans out as one event instance per physical recipient, so the
// routing target is explicit rather than derived from the message body.
func NewMessageEvent(userID int64, msg *model.Message) *DeliveryEvent {
	kind := MessageCreated
	if msg.To.IsGroup() {
		kind = GroupMessageCreated
	}
	ev := New(userID, kind, PriorityHigh, msg)
	ev.occurredAt = msg.SentAt
	return ev
}

// NewAckEvent notifies senderID that their message changed delivery state.
func NewAckEvent(senderID, messageID int64, status string) *DeliveryEvent {
	return New(senderID, MessageAck, PriorityNormal, &AckPayload{MessageID: messageID, Status: status})
}

// NewStatusEvent tells userID that subjectID's presence changed. Presence is
// superseded by the next delta, so these ride at low priority and are the
// first to be shed under backpressure.
func NewStatusEvent(userID, subjectID int64, status model.Status) *DeliveryEvent {
	return New(userID, UserStatus, PriorityLow, &StatusPayload{SubjectID: subjectID, Status: status})
}

func NewGroupStatusEvent(userID, groupID, subjectID int64, status model.Status) *DeliveryEvent {
	return New(userID, GroupUserStatus, PriorityLow, &GroupStatusPayload{
		GroupID:   groupID,
		SubjectID: subjectID,
		Status:    status,
	})
}

func NewNotificationEvent(userID int64, n *model.Notification) *DeliveryEvent {
	return New(userID, Notification, PriorityNormal, n)
}

// NewBroadcastEvent targets every connected user; the zero user id marks it
// as unaddressed. Dispatch goes through Hub.BroadcastAll, which pushes the
// same instance into every live cell.
func NewBroadcastEvent(from int64, content string) *DeliveryEvent {
	return New(0, SystemBroadcast, PriorityNormal, &BroadcastPayload{From: from, Content: content})
}

// NewPingEvent is the sweeper's liveness probe. High priority: a session
// that cannot even accept a ping is presumed dead.
func NewPingEvent(userID int64) *DeliveryEvent {
	return New(userID, Ping, PriorityHigh, nil)
}
