package model

import "time"

// RequestState is the one-shot state machine shared by friend requests and
// file-transfer requests: pending may move to accepted or rejected exactly
// once; terminal states never change.
type RequestState int16

const (
	RequestPending RequestState = iota
	RequestAccepted
	RequestRejected
)

func (s RequestState) Terminal() bool { return s != RequestPending }

func (s RequestState) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestAccepted:
		return "accepted"
	case RequestRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type FriendRequest struct {
	ID        int64
	From      int64
	To        int64
	Message   string
	State     RequestState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Friend is one direction of a symmetric friendship; the paired row with
// user/friend swapped always exists, created in the same transaction.
type Friend struct {
	UserID    int64
	FriendID  int64
	Remark    string
	CreatedAt time.Time
}

// FriendInfo is a friend-list entry: the friend's public profile plus the
// viewer's private remark.
type FriendInfo struct {
	Profile
	Remark string `json:"remark,omitempty"`
}
