// Package repository implements persistence on gorm. Each store pairs a
// record struct (mirroring the SQL schema in infra/db/migrations) with an
// interface the service layer consumes. Failures surface as imerr codes so
// transports never see driver errors.
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
)

type userRecord struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"size:32;uniqueIndex;not null"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Nickname     string `gorm:"size:64;not null;default:''"`
	Avatar       string `gorm:"size:255;not null;default:''"`
	Role         int16  `gorm:"not null;default:0"`
	Status       int16  `gorm:"not null;default:0"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

type userSettingsRecord struct {
	UserID              int64 `gorm:"primaryKey;autoIncrement:false"`
	NotificationEnabled bool  `gorm:"not null;default:true"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (userSettingsRecord) TableName() string { return "user_settings" }

type loginLogRecord struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	UserID    int64  `gorm:"not null;index"`
	IP        string `gorm:"size:64;not null;default:''"`
	UserAgent string `gorm:"size:255;not null;default:''"`
	CreatedAt time.Time
}

func (loginLogRecord) TableName() string { return "login_logs" }

type approvalLogRecord struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	AdminID   int64  `gorm:"not null"`
	UserID    int64  `gorm:"not null"`
	Action    string `gorm:"size:32;not null"`
	CreatedAt time.Time
}

func (approvalLogRecord) TableName() string { return "approval_logs" }

func (r *userRecord) toDomain() *model.User {
	return &model.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Nickname:     r.Nickname,
		Avatar:       r.Avatar,
		Role:         model.UserRole(r.Role),
		Status:       model.UserStatus(r.Status),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLoginAt:  r.LastLoginAt,
	}
}

// Users is the persistence surface for accounts and their audit trail.
type Users interface {
	// Create inserts the user together with its default settings row and
	// backfills the assigned ID.
	Create(ctx context.Context, u *model.User) error
	ByID(ctx context.Context, id int64) (*model.User, error)
	ByUsername(ctx context.Context, username string) (*model.User, error)
	ByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, id int64, fields map[string]any) error
	UpdateStatus(ctx context.Context, id int64, status model.UserStatus) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	List(ctx context.Context, status *model.UserStatus, limit, offset int) ([]model.User, error)
	CreateLoginLog(ctx context.Context, userID int64, ip, userAgent string) error
	CreateApprovalLog(ctx context.Context, adminID, userID int64, action string) error
}

type users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) Users {
	return &users{db: db}
}

func (s *users) Create(ctx context.Context, u *model.User) error {
	rec := userRecord{
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Nickname:     u.Nickname,
		Avatar:       u.Avatar,
		Role:         int16(u.Role),
		Status:       int16(u.Status),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return tx.Create(&userSettingsRecord{UserID: rec.ID, NotificationEnabled: true}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return imerr.New(imerr.UserAlreadyExists, "username or email already taken")
		}
		return imerr.Wrap(imerr.StorageTransaction, "create user", err)
	}

	u.ID = rec.ID
	u.CreatedAt = rec.CreatedAt
	u.UpdatedAt = rec.UpdatedAt
	return nil
}

func (s *users) ByID(ctx context.Context, id int64) (*model.User, error) {
	return s.one(ctx, "id = ?", id)
}

func (s *users) ByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.one(ctx, "username = ?", username)
}

func (s *users) ByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.one(ctx, "email = ?", email)
}

func (s *users) one(ctx context.Context, query string, arg any) (*model.User, error) {
	var rec userRecord
	err := s.db.WithContext(ctx).First(&rec, query, arg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, imerr.New(imerr.UserNotFound, "user not found")
		}
		return nil, imerr.Wrap(imerr.StorageQuery, "load user", err)
	}
	return rec.toDomain(), nil
}

func (s *users) UpdateProfile(ctx context.Context, id int64, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return imerr.Wrap(imerr.StorageUpdate, "update profile", res.Error)
	}
	if res.RowsAffected == 0 {
		return imerr.New(imerr.UserNotFound, "user not found")
	}
	return nil
}

func (s *users) UpdateStatus(ctx context.Context, id int64, status model.UserStatus) error {
	return s.UpdateProfile(ctx, id, map[string]any{"status": int16(status)})
}

func (s *users) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return s.UpdateProfile(ctx, id, map[string]any{"last_login_at": at})
}

func (s *users) List(ctx context.Context, status *model.UserStatus, limit, offset int) ([]model.User, error) {
	q := s.db.WithContext(ctx).Model(&userRecord{}).Order("id")
	if status != nil {
		q = q.Where("status = ?", int16(*status))
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	var recs []userRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, imerr.Wrap(imerr.StorageQuery, "list users", err)
	}
	out := make([]model.User, 0, len(recs))
	for i := range recs {
		out = append(out, *recs[i].toDomain())
	}
	return out, nil
}

func (s *users) CreateLoginLog(ctx context.Context, userID int64, ip, userAgent string) error {
	rec := loginLogRecord{UserID: userID, IP: ip, UserAgent: userAgent}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return imerr.Wrap(imerr.StorageInsert, "login log", err)
	}
	return nil
}

func (s *users) CreateApprovalLog(ctx context.Context, adminID, userID int64, action string) error {
	rec := approvalLogRecord{AdminID: adminID, UserID: userID, Action: action}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return imerr.Wrap(imerr.StorageInsert, "approval log", err)
	}
	return nil
}
