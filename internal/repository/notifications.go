package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
)

type notificationRecord struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	UserID    int64  `gorm:"not null;index:idx_notifications_unread,priority:1"`
	Kind      string `gorm:"size:40;not null"`
	Content   string `gorm:"not null;default:''"`
	Extra     string `gorm:"not null;default:''"`
	IsRead    bool   `gorm:"not null;default:false;index:idx_notifications_unread,priority:2"`
	CreatedAt time.Time
}

func (notificationRecord) TableName() string { return "notifications" }

func (r *notificationRecord) toDomain() *model.Notification {
	n := &model.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Kind:      r.Kind,
		Content:   r.Content,
		Read:      r.IsRead,
		CreatedAt: r.CreatedAt,
	}
	if r.Extra != "" {
		n.Extra = json.RawMessage(r.Extra)
	}
	return n
}

type announcementRecord struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Title     string `gorm:"size:128;not null;default:''"`
	Content   string `gorm:"not null"`
	SenderID  int64  `gorm:"not null"`
	CreatedAt time.Time
}

func (announcementRecord) TableName() string { return "system_announcements" }

// Notifications is the durable side of the notify pipeline; the Redis queue
// in internal/kv holds the replay window.
type Notifications interface {
	Create(ctx context.Context, n *model.Notification) error
	UnreadFor(ctx context.Context, userID int64, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID int64, ids []int64) error
	CreateAnnouncement(ctx context.Context, a *model.SystemAnnouncement) error
}

type notifications struct {
	db *gorm.DB
}

func NewNotifications(db *gorm.DB) Notifications {
	return &notifications{db: db}
}

func (s *notifications) Create(ctx context.Context, n *model.Notification) error {
	rec := notificationRecord{
		UserID:  n.UserID,
		Kind:    n.Kind,
		Content: n.Content,
		Extra:   string(n.Extra),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return imerr.Wrap(imerr.StorageInsert, "store notification", err)
	}
	n.ID = rec.ID
	n.CreatedAt = rec.CreatedAt
	return nil
}

func (s *notifications) UnreadFor(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	var recs []notificationRecord
	q := s.db.WithContext(ctx).
		Where("user_id = ? AND is_read = ?", userID, false).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, imerr.Wrap(imerr.StorageQuery, "list unread notifications", err)
	}

	out := make([]model.Notification, 0, len(recs))
	for i := range recs {
		out = append(out, *recs[i].toDomain())
	}
	return out, nil
}

func (s *notifications) MarkRead(ctx context.Context, userID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&notificationRecord{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Update("is_read", true).Error
	if err != nil {
		return imerr.Wrap(imerr.StorageUpdate, "mark notifications read", err)
	}
	return nil
}

func (s *notifications) CreateAnnouncement(ctx context.Context, a *model.SystemAnnouncement) error {
	rec := announcementRecord{
		Title:    a.Title,
		Content:  a.Content,
		SenderID: a.SenderID,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return imerr.Wrap(imerr.StorageInsert, "store announcement", err)
	}
	a.ID = rec.ID
	a.CreatedAt = rec.CreatedAt
	return nil
}
