package model

import "encoding/json"

type EnvelopeKind int16

const (
	EnvelopeMessage EnvelopeKind = iota + 1
	EnvelopeNotification
)

// Envelope is the serialized unit queued in the offline store. Message
// envelopes wrap a full message; notification envelopes carry the
// notification kind and free-form extra data. EventID keys fanout
// deduplication within the idempotency window. To is always the queue
// owner; group traffic keeps its conversation in GroupID.
type Envelope struct {
	Kind      EnvelopeKind    `json:"kind"`
	EventID   string          `json:"event_id,omitempty"`
	MessageID int64           `json:"message_id,omitempty"`
	From      int64           `json:"from_user_id,omitempty"`
	To        int64           `json:"to_user_id"`
	GroupID   int64           `json:"group_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	MsgKind   MessageKind     `json:"message_type,omitempty"`
	NotifKind string          `json:"type,omitempty"`
	SentAt    int64           `json:"send_time"`
	Extra     json.RawMessage `json:"extra_info,omitempty"`
}

// MessageEnvelope wraps m for one recipient's offline queue. For group
// messages To carries the member being queued for, not the group.
func MessageEnvelope(m *Message, recipientID int64) *Envelope {
	e := &Envelope{
		Kind:      EnvelopeMessage,
		MessageID: m.ID,
		From:      m.From,
		To:        recipientID,
		Content:   string(m.Payload),
		MsgKind:   m.Kind,
		SentAt:    m.SentAt,
		Extra:     m.Extra,
	}
	if m.To.IsGroup() {
		e.GroupID = m.To.ID
	}
	return e
}

func (e *Envelope) Encode() ([]byte, error) { return json.Marshal(e) }

func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
