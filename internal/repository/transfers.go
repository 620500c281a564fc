package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
)

type transferRequestRecord struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	FromUserID int64  `gorm:"not null"`
	ToUserID   int64  `gorm:"not null;index:idx_transfers_inbox,priority:1"`
	FileName   string `gorm:"size:255;not null"`
	FileSize   int64  `gorm:"not null;default:0"`
	State      int16  `gorm:"not null;default:0;index:idx_transfers_inbox,priority:2"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (transferRequestRecord) TableName() string { return "file_transfer_requests" }

func (r *transferRequestRecord) toDomain() *model.FileTransferRequest {
	return &model.FileTransferRequest{
		ID:        r.ID,
		From:      r.FromUserID,
		To:        r.ToUserID,
		FileName:  r.FileName,
		FileSize:  r.FileSize,
		State:     model.RequestState(r.State),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type fileRecord struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	OwnerID   int64  `gorm:"not null;index"`
	Name      string `gorm:"size:255;not null"`
	Size      int64  `gorm:"not null;default:0"`
	MimeType  string `gorm:"size:128;not null;default:''"`
	CreatedAt time.Time
}

func (fileRecord) TableName() string { return "files" }

// Transfers persists the offer/response handshake and the file records
// accepted offers produce.
type Transfers interface {
	CreateRequest(ctx context.Context, r *model.FileTransferRequest) error
	ByID(ctx context.Context, id int64) (*model.FileTransferRequest, error)
	// Resolve moves a pending request to a terminal state. False means the
	// request was already handled.
	Resolve(ctx context.Context, id int64, state model.RequestState) (bool, error)
	CreateFile(ctx context.Context, f *model.File) error
}

type transfers struct {
	db *gorm.DB
}

func NewTransfers(db *gorm.DB) Transfers {
	return &transfers{db: db}
}

func (s *transfers) CreateRequest(ctx context.Context, r *model.FileTransferRequest) error {
	rec := transferRequestRecord{
		FromUserID: r.From,
		ToUserID:   r.To,
		FileName:   r.FileName,
		FileSize:   r.FileSize,
		State:      int16(model.RequestPending),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return imerr.Wrap(imerr.StorageInsert, "create transfer request", err)
	}
	r.ID = rec.ID
	r.State = model.RequestPending
	r.CreatedAt = rec.CreatedAt
	r.UpdatedAt = rec.UpdatedAt
	return nil
}

func (s *transfers) ByID(ctx context.Context, id int64) (*model.FileTransferRequest, error) {
	var rec transferRequestRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, imerr.New(imerr.FileRequestNotFound, "transfer request not found")
		}
		return nil, imerr.Wrap(imerr.StorageQuery, "load transfer request", err)
	}
	return rec.toDomain(), nil
}

func (s *transfers) Resolve(ctx context.Context, id int64, state model.RequestState) (bool, error) {
	res := s.db.WithContext(ctx).Model(&transferRequestRecord{}).
		Where("id = ? AND state = ?", id, int16(model.RequestPending)).
		Update("state", int16(state))
	if res.Error != nil {
		return false, imerr.Wrap(imerr.StorageUpdate, "resolve transfer request", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *transfers) CreateFile(ctx context.Context, f *model.File) error {
	rec := fileRecord{
		OwnerID:  f.OwnerID,
		Name:     f.Name,
		Size:     f.Size,
		MimeType: f.MimeType,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return imerr.Wrap(imerr.StorageInsert, "store file record", err)
	}
	f.ID = rec.ID
	f.CreatedAt = rec.CreatedAt
	return nil
}
