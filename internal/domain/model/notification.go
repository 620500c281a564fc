package model

import (
	"encoding/json"
	"time"
)

// Notification kinds mirror the event types that produce them.
const (
	NotificationGeneral      = "general"
	NotificationFriendReq    = "friend_request"
	NotificationRelationship = "relationship_notification"
	NotificationFile         = "file_notification"
	NotificationSystem       = "system_notification"
)

type Notification struct {
	ID        int64
	UserID    int64
	Kind      string
	Content   string
	Extra     json.RawMessage
	Read      bool
	CreatedAt time.Time
}

type SystemAnnouncement struct {
	ID        int64
	Title     string
	Content   string
	SenderID  int64
	CreatedAt time.Time
}
