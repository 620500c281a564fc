// Package dto holds the wire payloads exchanged over the event bus. The same
// structs are marshalled by producers and decoded by the fanout consumer, so
// the event_type discriminator and field spellings here are the bus contract.
package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/syntalk/im-server/internal/domain/model"
)

const (
	EventMessageSent          = "message_sent"
	EventGroupMessageSent     = "group_message_sent"
	EventOfflineMessageQueued = "offline_message_queued"

	EventFriendRequestSent     = "friend_request_sent"
	EventFriendRequestAccepted = "friend_request_accepted"
	EventFriendRequestRejected = "friend_request_rejected"
	EventFriendDeleted         = "friend_deleted"

	EventFileTransferRequest  = "file_transfer_request"
	EventFileTransferAccepted = "file_transfer_accepted"
	EventFileTransferRejected = "file_transfer_rejected"

	EventPresenceChange  = "presence_change"
	EventSystemBroadcast = "system_broadcast"
	EventMessageRead     = "message_read"
	EventUserRegistered  = "user_registered"
	EventUserLogin       = "user_login"
)

// MessageSent travels on messages-personal, messages-group and
// offline-messages. Origin names the producing node so the node that already
// delivered inline can skip its own echo; Queued marks envelopes that were
// parked in the offline store because no session was visible at send time.
// RecipientID is set on offline-messages payloads only: for group traffic the
// queue target is one member, while ToID keeps addressing the group.
type MessageSent struct {
	EventType   string          `json:"event_type"`
	EventID     string          `json:"event_id"`
	Origin      string          `json:"origin"`
	MessageID   int64           `json:"message_id"`
	FromUserID  int64           `json:"from_user_id"`
	ToID        int64           `json:"to_id"`
	ToKind      int16           `json:"to_kind"`
	RecipientID int64           `json:"recipient_id,omitempty"`
	MessageType int16           `json:"message_type"`
	Content     string          `json:"content"`
	SendTime    int64           `json:"send_time"`
	Extra       json.RawMessage `json:"extra_info,omitempty"`
	Queued      bool            `json:"queued,omitempty"`
}

// NewMessageSent wraps a freshly stored message. Queued starts false; the
// producer flips it after the delivery attempt settles, keeping the event id
// stable across the publish and any offline enqueue it deduplicates.
func NewMessageSent(m *model.Message, origin string) *MessageSent {
	eventType := EventMessageSent
	if m.To.IsGroup() {
		eventType = EventGroupMessageSent
	}
	return &MessageSent{
		EventType:   eventType,
		EventID:     uuid.NewString(),
		Origin:      origin,
		MessageID:   m.ID,
		FromUserID:  m.From,
		ToID:        m.To.ID,
		ToKind:      int16(m.To.Kind),
		MessageType: int16(m.Kind),
		Content:     string(m.Payload),
		SendTime:    m.SentAt,
		Extra:       m.Extra,
	}
}

func (d *MessageSent) ToDomain() *model.Message {
	return &model.Message{
		ID:      d.MessageID,
		From:    d.FromUserID,
		To:      model.Recipient{Kind: model.RecipientKind(d.ToKind), ID: d.ToID},
		Kind:    model.MessageKind(d.MessageType),
		Payload: []byte(d.Content),
		SentAt:  d.SendTime,
		Extra:   d.Extra,
	}
}

// Recipient returns the user the offline queue entry belongs to.
func (d *MessageSent) Recipient() int64 {
	if d.RecipientID != 0 {
		return d.RecipientID
	}
	return d.ToID
}

// OfflineCopy derives the offline-messages payload for one recipient. The
// event id is preserved so every node's enqueue attempt hits the same
// deduplication slot.
func (d *MessageSent) OfflineCopy(recipientID int64) *MessageSent {
	cp := *d
	cp.EventType = EventOfflineMessageQueued
	cp.RecipientID = recipientID
	cp.Queued = true
	return &cp
}

// RelationEvent travels on relationship-events. Request flows populate
// FromUserID/ToUserID; deletion populates the symmetric UserID/FriendID pair
// because both parties are notified.
type RelationEvent struct {
	EventType  string `json:"event_type"`
	EventID    string `json:"event_id"`
	Origin     string `json:"origin"`
	RequestID  int64  `json:"request_id,omitempty"`
	FromUserID int64  `json:"from_user_id,omitempty"`
	ToUserID   int64  `json:"to_user_id,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
	FriendID   int64  `json:"friend_id,omitempty"`
	Message    string `json:"message,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

func NewRelationEvent(eventType string, req *model.FriendRequest, origin string) *RelationEvent {
	return &RelationEvent{
		EventType:  eventType,
		EventID:    uuid.NewString(),
		Origin:     origin,
		RequestID:  req.ID,
		FromUserID: req.From,
		ToUserID:   req.To,
		Message:    req.Message,
		Timestamp:  time.Now().Unix(),
	}
}

func NewFriendDeleted(userID, friendID int64, origin string) *RelationEvent {
	return &RelationEvent{
		EventType: EventFriendDeleted,
		EventID:   uuid.NewString(),
		Origin:    origin,
		UserID:    userID,
		FriendID:  friendID,
		Timestamp: time.Now().Unix(),
	}
}

// FileEvent travels on file-events. ToUserID is always the party the fanout
// router should notify: the target for a fresh request, the originator for a
// response.
type FileEvent struct {
	EventType  string `json:"event_type"`
	EventID    string `json:"event_id"`
	Origin     string `json:"origin"`
	RequestID  int64  `json:"request_id"`
	FromUserID int64  `json:"from_user_id"`
	ToUserID   int64  `json:"to_user_id"`
	FileID     int64  `json:"file_id,omitempty"`
	FileName   string `json:"file_name"`
	FileSize   int64  `json:"file_size,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

func NewFileEvent(eventType string, req *model.FileTransferRequest, from, to int64, origin string) *FileEvent {
	return &FileEvent{
		EventType:  eventType,
		EventID:    uuid.NewString(),
		Origin:     origin,
		RequestID:  req.ID,
		FromUserID: from,
		ToUserID:   to,
		FileName:   req.FileName,
		FileSize:   req.FileSize,
		Timestamp:  time.Now().Unix(),
	}
}

// SystemEvent travels on system-events as a superset of every variant: the
// event_type discriminator selects which fields matter, so a single consumer
// handler can switch without a second decode. Read receipts use UserID for
// the reader, TargetID for the sender owed the acknowledgement.
type SystemEvent struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	Origin    string `json:"origin"`
	UserID    int64  `json:"user_id,omitempty"`
	TargetID  int64  `json:"target_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Status    string `json:"status,omitempty"`
	Content   string `json:"content,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func NewPresenceChange(userID int64, status model.Status, origin string) *SystemEvent {
	return &SystemEvent{
		EventType: EventPresenceChange,
		EventID:   uuid.NewString(),
		Origin:    origin,
		UserID:    userID,
		Status:    string(status),
		Timestamp: time.Now().Unix(),
	}
}

func NewSystemBroadcast(from int64, content, origin string) *SystemEvent {
	return &SystemEvent{
		EventType: EventSystemBroadcast,
		EventID:   uuid.NewString(),
		Origin:    origin,
		UserID:    from,
		Content:   content,
		Timestamp: time.Now().Unix(),
	}
}

// NewReadReceipt tells senderID that readerID read messageID.
func NewReadReceipt(readerID, senderID, messageID int64, origin string) *SystemEvent {
	return &SystemEvent{
		EventType: EventMessageRead,
		EventID:   uuid.NewString(),
		Origin:    origin,
		UserID:    readerID,
		TargetID:  senderID,
		MessageID: messageID,
		Timestamp: time.Now().Unix(),
	}
}

func NewUserAudit(eventType string, userID int64, username, origin string) *SystemEvent {
	return &SystemEvent{
		EventType: eventType,
		EventID:   uuid.NewString(),
		Origin:    origin,
		UserID:    userID,
		Username:  username,
		Timestamp: time.Now().Unix(),
	}
}
