package model

import "encoding/json"

type MessageKind int16

const (
	// Starts from 1 to distinguish from uninitialized data.
	KindText MessageKind = iota + 1
	KindImage
	KindFileMeta
	KindSystem
)

func (k MessageKind) Valid() bool {
	return k >= KindText && k <= KindSystem
}

// String returns the wire spelling used by the message_type frame field.
func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindFileMeta:
		return "file"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// KindFromString is the inverse of MessageKind.String. An empty value
// defaults to text; unrecognized values come back invalid for the caller
// to reject.
func KindFromString(s string) MessageKind {
	switch s {
	case "", "text":
		return KindText
	case "image":
		return KindImage
	case "file":
		return KindFileMeta
	case "system":
		return KindSystem
	default:
		return 0
	}
}

type RecipientKind int16

const (
	RecipientUser RecipientKind = iota + 1
	RecipientGroup
)

// Recipient addresses a message: a user id for 1:1, a group id for group
// conversations.
type Recipient struct {
	Kind RecipientKind `json:"kind"`
	ID   int64         `json:"id"`
}

func UserRecipient(id int64) Recipient  { return Recipient{Kind: RecipientUser, ID: id} }
func GroupRecipient(id int64) Recipient { return Recipient{Kind: RecipientGroup, ID: id} }

func (r Recipient) IsGroup() bool { return r.Kind == RecipientGroup }

// Message is the core conversation entity. The id is assigned by the message
// store exactly once, after a successful insert; SentAt is server-stamped in
// milliseconds and never altered afterwards. Read transitions false to true
// only.
type Message struct {
	ID      int64           `json:"id"`
	From    int64           `json:"from_user_id"`
	To      Recipient       `json:"to"`
	Kind    MessageKind     `json:"kind"`
	Payload []byte          `json:"payload"`
	SentAt  int64           `json:"send_time"`
	Read    bool            `json:"is_read"`
	Extra   json.RawMessage `json:"extra,omitempty"`
}
