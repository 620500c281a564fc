package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syntalk/im-server/internal/imerr"
)

type groupMemberRecord struct {
	GroupID   int64 `gorm:"primaryKey;autoIncrement:false"`
	UserID    int64 `gorm:"primaryKey;autoIncrement:false;index"`
	Role      int16 `gorm:"not null;default:0"`
	CreatedAt time.Time
}

func (groupMemberRecord) TableName() string { return "group_members" }

// Groups reads the membership table. Group lifecycle itself is managed out
// of band; delivery only needs to answer "who is in this group".
type Groups interface {
	MembersOf(ctx context.Context, groupID int64) ([]int64, error)
	GroupsOf(ctx context.Context, userID int64) ([]int64, error)
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	AddMember(ctx context.Context, groupID, userID int64) error
}

type groups struct {
	db *gorm.DB
}

func NewGroups(db *gorm.DB) Groups {
	return &groups{db: db}
}

func (s *groups) MembersOf(ctx context.Context, groupID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&groupMemberRecord{}).
		Where("group_id = ?", groupID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, imerr.Wrap(imerr.StorageQuery, "list group members", err)
	}
	return ids, nil
}

func (s *groups) GroupsOf(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&groupMemberRecord{}).
		Where("user_id = ?", userID).
		Pluck("group_id", &ids).Error
	if err != nil {
		return nil, imerr.Wrap(imerr.StorageQuery, "list user groups", err)
	}
	return ids, nil
}

func (s *groups) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&groupMemberRecord{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&n).Error
	if err != nil {
		return false, imerr.Wrap(imerr.StorageQuery, "check membership", err)
	}
	return n > 0, nil
}

func (s *groups) AddMember(ctx context.Context, groupID, userID int64) error {
	rec := groupMemberRecord{GroupID: groupID, UserID: userID}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
	if err != nil {
		return imerr.Wrap(imerr.StorageInsert, "add group member", err)
	}
	return nil
}
