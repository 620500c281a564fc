package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
)

type friendRequestRecord struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	FromUserID int64  `gorm:"not null"`
	ToUserID   int64  `gorm:"not null;index:idx_friend_requests_inbox,priority:1"`
	Message    string `gorm:"size:255;not null;default:''"`
	State      int16  `gorm:"not null;default:0;index:idx_friend_requests_inbox,priority:2"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (friendRequestRecord) TableName() string { return "friend_requests" }

func (r *friendRequestRecord) toDomain() *model.FriendRequest {
	return &model.FriendRequest{
		ID:        r.ID,
		From:      r.FromUserID,
		To:        r.ToUserID,
		Message:   r.Message,
		State:     model.RequestState(r.State),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type friendRecord struct {
	UserID    int64  `gorm:"primaryKey;autoIncrement:false"`
	FriendID  int64  `gorm:"primaryKey;autoIncrement:false"`
	Remark    string `gorm:"size:64;not null;default:''"`
	CreatedAt time.Time
}

func (friendRecord) TableName() string { return "friend_relations" }

// FriendEntry is a friendship row joined with the friend's public profile
// columns. Presence overlay happens in the service layer.
type FriendEntry struct {
	FriendID int64
	Remark   string
	Username string
	Nickname string
	Avatar   string
}

// Relations persists friend requests and the symmetric friendship pairs
// they produce.
type Relations interface {
	CreateRequest(ctx context.Context, r *model.FriendRequest) error
	RequestByID(ctx context.Context, id int64) (*model.FriendRequest, error)
	// PendingFor lists requests awaiting a decision by userID, oldest first.
	PendingFor(ctx context.Context, userID int64) ([]model.FriendRequest, error)
	// HasPending reports whether a live request from -> to already exists.
	HasPending(ctx context.Context, from, to int64) (bool, error)
	// Accept resolves a pending request and creates both friendship rows in
	// one transaction. Losing a resolution race yields the imerr code of
	// the state that won.
	Accept(ctx context.Context, id int64) (*model.FriendRequest, error)
	Reject(ctx context.Context, id int64) (*model.FriendRequest, error)
	AreFriends(ctx context.Context, a, b int64) (bool, error)
	FriendIDs(ctx context.Context, userID int64) ([]int64, error)
	FriendsOf(ctx context.Context, userID int64) ([]FriendEntry, error)
	// DeleteFriendship removes both directions; callers decide who to tell.
	DeleteFriendship(ctx context.Context, a, b int64) error
}

type relations struct {
	db *gorm.DB
}

func NewRelations(db *gorm.DB) Relations {
	return &relations{db: db}
}

func (s *relations) CreateRequest(ctx context.Context, r *model.FriendRequest) error {
	rec := friendRequestRecord{
		FromUserID: r.From,
		ToUserID:   r.To,
		Message:    r.Message,
		State:      int16(model.RequestPending),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return imerr.New(imerr.FriendRequestDuplicate, "request already pending")
		}
		return imerr.Wrap(imerr.StorageInsert, "create friend request", err)
	}
	r.ID = rec.ID
	r.State = model.RequestPending
	r.CreatedAt = rec.CreatedAt
	r.UpdatedAt = rec.UpdatedAt
	return nil
}

func (s *relations) RequestByID(ctx context.Context, id int64) (*model.FriendRequest, error) {
	var rec friendRequestRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, imerr.New(imerr.FriendRequestNotFound, "friend request not found")
		}
		return nil, imerr.Wrap(imerr.StorageQuery, "load friend request", err)
	}
	return rec.toDomain(), nil
}

func (s *relations) PendingFor(ctx context.Context, userID int64) ([]model.FriendRequest, error) {
	var recs []friendRequestRecord
	err := s.db.WithContext(ctx).
		Where("to_user_id = ? AND state = ?", userID, int16(model.RequestPending)).
		Order("id").
		Find(&recs).Error
	if err != nil {
		return nil, imerr.Wrap(imerr.StorageQuery, "list pending requests", err)
	}
	out := make([]model.FriendRequest, 0, len(recs))
	for i := range recs {
		out = append(out, *recs[i].toDomain())
	}
	return out, nil
}

func (s *relations) HasPending(ctx context.Context, from, to int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&friendRequestRecord{}).
		Where("from_user_id = ? AND to_user_id = ? AND state = ?", from, to, int16(model.RequestPending)).
		Count(&n).Error
	if err != nil {
		return false, imerr.Wrap(imerr.StorageQuery, "check pending request", err)
	}
	return n > 0, nil
}

func (s *relations) Accept(ctx context.Context, id int64) (*model.FriendRequest, error) {
	return s.resolve(ctx, id, model.RequestAccepted)
}

func (s *relations) Reject(ctx context.Context, id int64) (*model.FriendRequest, error) {
	return s.resolve(ctx, id, model.RequestRejected)
}

// resolve flips a pending request into a terminal state. The guarded UPDATE
// makes concurrent resolutions race on exactly one row: the loser re-reads
// the request to report which decision won.
func (s *relations) resolve(ctx context.Context, id int64, state model.RequestState) (*model.FriendRequest, error) {
	var rec friendRequestRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&friendRequestRecord{}).
			Where("id = ? AND state = ?", id, int16(model.RequestPending)).
			Update("state", int16(state))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var cur friendRequestRecord
			if err := tx.First(&cur, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return imerr.New(imerr.FriendRequestNotFound, "friend request not found")
				}
				return err
			}
			switch model.RequestState(cur.State) {
			case model.RequestAccepted:
				return imerr.New(imerr.FriendRequestAccepted, "request already accepted")
			default:
				return imerr.New(imerr.FriendRequestRejected, "request already rejected")
			}
		}

		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			return err
		}
		if state != model.RequestAccepted {
			return nil
		}

		pair := []friendRecord{
			{UserID: rec.FromUserID, FriendID: rec.ToUserID},
			{UserID: rec.ToUserID, FriendID: rec.FromUserID},
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pair).Error
	})
	if err != nil {
		var ie *imerr.Error
		if errors.As(err, &ie) {
			return nil, err
		}
		return nil, imerr.Wrap(imerr.StorageTransaction, "resolve friend request", err)
	}

	return rec.toDomain(), nil
}

func (s *relations) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&friendRecord{}).
		Where("user_id = ? AND friend_id = ?", a, b).
		Count(&n).Error
	if err != nil {
		return false, imerr.Wrap(imerr.StorageQuery, "check friendship", err)
	}
	return n > 0, nil
}

func (s *relations) FriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&friendRecord{}).
		Where("user_id = ?", userID).
		Pluck("friend_id", &ids).Error
	if err != nil {
		return nil, imerr.Wrap(imerr.StorageQuery, "list friend ids", err)
	}
	return ids, nil
}

func (s *relations) FriendsOf(ctx context.Context, userID int64) ([]FriendEntry, error) {
	var entries []FriendEntry
	err := s.db.WithContext(ctx).Model(&friendRecord{}).
		Select("friend_relations.friend_id, friend_relations.remark, users.username, users.nickname, users.avatar").
		Joins("JOIN users ON users.id = friend_relations.friend_id").
		Where("friend_relations.user_id = ?", userID).
		Order("friend_relations.friend_id").
		Scan(&entries).Error
	if err != nil {
		return nil, imerr.Wrap(imerr.StorageQuery, "list friends", err)
	}
	return entries, nil
}

func (s *relations) DeleteFriendship(ctx context.Context, a, b int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND friend_id = ?", a, b).Delete(&friendRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return imerr.New(imerr.FriendNotFound, "not friends")
		}
		return tx.Where("user_id = ? AND friend_id = ?", b, a).Delete(&friendRecord{}).Error
	})
	if err != nil {
		var ie *imerr.Error
		if errors.As(err, &ie) {
			return err
		}
		return imerr.Wrap(imerr.StorageTransaction, "delete friendship", err)
	}
	return nil
}
