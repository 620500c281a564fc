package repository

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
)

type messageRecord struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	FromUserID int64  `gorm:"not null;index:idx_messages_pair,priority:1"`
	ToID       int64  `gorm:"not null;index:idx_messages_pair,priority:2"`
	ToKind     int16  `gorm:"not null;default:1"`
	Kind       int16  `gorm:"not null;default:1"`
	Payload    []byte `gorm:"not null"`
	SendTime   int64  `gorm:"not null;index:idx_messages_pair,priority:3"`
	IsRead     bool   `gorm:"not null;default:false"`
	Extra      string `gorm:"not null;default:''"`
}

func (messageRecord) TableName() string { return "messages" }

func messageFromDomain(m *model.Message) messageRecord {
	return messageRecord{
		ID:         m.ID,
		FromUserID: m.From,
		ToID:       m.To.ID,
		ToKind:     int16(m.To.Kind),
		Kind:       int16(m.Kind),
		Payload:    m.Payload,
		SendTime:   m.SentAt,
		IsRead:     m.Read,
		Extra:      string(m.Extra),
	}
}

func (r *messageRecord) toDomain() *model.Message {
	m := &model.Message{
		ID:      r.ID,
		From:    r.FromUserID,
		To:      model.Recipient{Kind: model.RecipientKind(r.ToKind), ID: r.ToID},
		Kind:    model.MessageKind(r.Kind),
		Payload: r.Payload,
		SentAt:  r.SendTime,
		Read:    r.IsRead,
	}
	if r.Extra != "" {
		m.Extra = json.RawMessage(r.Extra)
	}
	return m
}

// Messages is the durable message log. Rows are immutable except for the
// is_read flag.
type Messages interface {
	Create(ctx context.Context, m *model.Message) error
	ByID(ctx context.Context, id int64) (*model.Message, error)
	// History returns the 1:1 conversation between a and b, newest first.
	History(ctx context.Context, a, b int64, limit int) ([]model.Message, error)
	// MarkRead flips is_read for a direct message addressed to readerID.
	// Returns false when the row does not exist, is not theirs, or was
	// already read.
	MarkRead(ctx context.Context, messageID, readerID int64) (bool, error)
}

type messages struct {
	db *gorm.DB
}

func NewMessages(db *gorm.DB) Messages {
	return &messages{db: db}
}

func (s *messages) Create(ctx context.Context, m *model.Message) error {
	rec := messageFromDomain(m)
	rec.ID = 0
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return imerr.Wrap(imerr.StorageInsert, "store message", err)
	}
	m.ID = rec.ID
	return nil
}

func (s *messages) ByID(ctx context.Context, id int64) (*model.Message, error) {
	var rec messageRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, imerr.New(imerr.MessageNotFound, "message not found")
		}
		return nil, imerr.Wrap(imerr.StorageQuery, "load message", err)
	}
	return rec.toDomain(), nil
}

func (s *messages) History(ctx context.Context, a, b int64, limit int) ([]model.Message, error) {
	var recs []messageRecord
	err := s.db.WithContext(ctx).
		Where("to_kind = ?", int16(model.RecipientUser)).
		Where(
			s.db.Where("from_user_id = ? AND to_id = ?", a, b).
				Or("from_user_id = ? AND to_id = ?", b, a),
		).
		Order("send_time DESC").Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, imerr.Wrap(imerr.StorageQuery, "load history", err)
	}

	out := make([]model.Message, 0, len(recs))
	for i := range recs {
		out = append(out, *recs[i].toDomain())
	}
	return out, nil
}

func (s *messages) MarkRead(ctx context.Context, messageID, readerID int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&messageRecord{}).
		Where("id = ? AND to_id = ? AND to_kind = ? AND is_read = ?",
			messageID, readerID, int16(model.RecipientUser), false).
		Update("is_read", true)
	if res.Error != nil {
		return false, imerr.Wrap(imerr.StorageUpdate, "mark read", res.Error)
	}
	return res.RowsAffected > 0, nil
}
