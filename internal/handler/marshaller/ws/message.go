package wsmarshaller

import (
	"encoding/json"

	"github.com/syntalk/im-server/internal/domain/model"
)

// Frame type discriminators. Client and server agree on these strings; the
// reverse direction (client frames) is parsed by the ws handler.
const (
	TypeWelcome         = "welcome"
	TypeAuthResponse    = "auth_response"
	TypePing            = "ping"
	TypePong            = "pong"
	TypeChatMessage     = "chat_message"
	TypeGroupMessage    = "group_message"
	TypeUserStatus      = "user_status"
	TypeGroupUserStatus = "group_user_status"
	TypeSystemBroadcast = "system_broadcast"
	TypeNotification    = "notification"
	TypeMessageAck      = "message_ack"
	TypeGroupMessageAck = "group_message_ack"
	TypeStatusAck       = "status_ack"
	TypeBroadcastAck    = "broadcast_ack"
	TypeReadReceiptAck  = "read_receipt_ack"
	TypeAcknowledgement = "message_acknowledgement"
	TypeError           = "error"
)

// Welcome greets a fresh connection before authentication.
type Welcome struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Timestamp int64  `json:"timestamp"`
}

type AuthResponse struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	UserID    int64  `json:"user_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Basic covers frames that carry nothing beyond their type: ping, pong.
type Basic struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// MessageFrame is a forwarded conversation message. GroupID is set only on
// group traffic; message_type spells the model.MessageKind.
type MessageFrame struct {
	Type        string          `json:"type"`
	MessageID   int64           `json:"message_id"`
	GroupID     int64           `json:"group_id,omitempty"`
	FromUserID  int64           `json:"from_user_id"`
	Content     string          `json:"content"`
	MessageType string          `json:"message_type"`
	Extra       json.RawMessage `json:"extra,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

// SendAck answers a chat_message or group_message frame. MessageID is the
// id the store assigned; ClientID echoes the sender's own correlation id
// when one was supplied.
type SendAck struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	MessageID int64  `json:"message_id"`
	GroupID   int64  `json:"group_id,omitempty"`
	ClientID  int64  `json:"client_message_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type StatusAck struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Status    string `json:"status,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type BroadcastAck struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Timestamp int64  `json:"timestamp"`
}

type ReadReceiptAck struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	MessageID int64  `json:"message_id"`
	Timestamp int64  `json:"timestamp"`
}

// Acknowledgement tells the original sender their message was delivered or
// read.
type Acknowledgement struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type UserStatusFrame struct {
	Type      string `json:"type"`
	UserID    int64  `json:"user_id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type GroupUserStatusFrame struct {
	Type      string `json:"type"`
	GroupID   int64  `json:"group_id"`
	UserID    int64  `json:"user_id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type SystemBroadcastFrame struct {
	Type       string `json:"type"`
	FromUserID int64  `json:"from_user_id"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
}

type NotificationFrame struct {
	Type      string          `json:"type"`
	ID        int64           `json:"id,omitempty"`
	Kind      string          `json:"kind"`
	Content   string          `json:"content"`
	Extra     json.RawMessage `json:"extra,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type ErrorFrame struct {
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

func mapMessage(frameType string, m *model.Message, ts int64) *MessageFrame {
	f := &MessageFrame{
		Type:        frameType,
		MessageID:   m.ID,
		FromUserID:  m.From,
		Content:     string(m.Payload),
		MessageType: m.Kind.String(),
		Extra:       m.Extra,
		Timestamp:   ts,
	}
	if m.To.IsGroup() {
		f.GroupID = m.To.ID
	}
	return f
}
