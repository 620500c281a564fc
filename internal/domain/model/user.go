package model

import "time"

type UserRole int16

const (
	RoleMember UserRole = iota
	RoleAdmin
)

func (r UserRole) String() string {
	if r == RoleAdmin {
		return "admin"
	}
	return "member"
}

type UserStatus int16

const (
	UserStatusPending UserStatus = iota
	UserStatusActive
	UserStatusSuspended
)

func (s UserStatus) String() string {
	switch s {
	case UserStatusPending:
		return "pending"
	case UserStatusActive:
		return "active"
	case UserStatusSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// UserStatusFromString parses the wire spelling; ok is false for anything
// outside the known set.
func UserStatusFromString(s string) (UserStatus, bool) {
	switch s {
	case "pending":
		return UserStatusPending, true
	case "active":
		return UserStatusActive, true
	case "suspended":
		return UserStatusSuspended, true
	default:
		return 0, false
	}
}

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Nickname     string
	Avatar       string
	Role         UserRole
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Profile projects the public view of the account. Online is left false;
// callers overlay live presence.
func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Username: u.Username, Nickname: u.Nickname, Avatar: u.Avatar}
}

// UserSettings holds per-user preferences created alongside registration.
type UserSettings struct {
	UserID              int64
	NotificationEnabled bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Profile is the subset of user data safe to hand to other users.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Online   bool   `json:"online"`
}
