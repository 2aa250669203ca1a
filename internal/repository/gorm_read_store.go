package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

// GormReadStore keeps watermarks in chat_read_status. Advance is a single
// upsert whose update only fires when the new id is higher, so the database
// row lock is the serialization point.
type GormReadStore struct {
	db *gorm.DB
}

func NewGormReadStore(db *gorm.DB) *GormReadStore {
	return &GormReadStore{db: db}
}

func (s *GormReadStore) Advance(ctx context.Context, chatRoomID, userID, messageID int64) (*domain.Watermark, bool, error) {
	l := log.Ctx(ctx)

	model := &domain.ChatReadStatusModel{
		ChatRoomID:        chatRoomID,
		UserID:            userID,
		LastReadMessageID: messageID,
	}
	result := s.db.WithContext(ctx).Clauses(s.advanceClause()).Create(model)
	if result.Error != nil {
		l.Error().Err(result.Error).
			Int64(log.FieldRoomID, chatRoomID).
			Int64(log.FieldUserID, userID).
			Msg("failed to upsert read watermark")
		return nil, false, fmt.Errorf("advance read watermark: %w", result.Error)
	}

	wm, err := s.Get(ctx, chatRoomID, userID)
	if err != nil {
		return nil, false, err
	}
	return wm, result.RowsAffected > 0, nil
}

func (s *GormReadStore) advanceClause() clause.OnConflict {
	target := []clause.Column{{Name: "chat_room_id"}, {Name: "user_id"}}

	if s.db.Dialector.Name() == "mysql" {
		// ON DUPLICATE KEY UPDATE evaluates left to right, so updated_at must
		// compare against the old value before it is raised.
		return clause.OnConflict{
			Columns: target,
			DoUpdates: clause.Set{
				{
					Column: clause.Column{Name: "updated_at"},
					Value: gorm.Expr("IF(VALUES(last_read_message_id) > last_read_message_id, VALUES(updated_at), updated_at)"),
				},
				{
					Column: clause.Column{Name: "last_read_message_id"},
					Value:  gorm.Expr("GREATEST(last_read_message_id, VALUES(last_read_message_id))"),
				},
			},
		}
	}

	return clause.OnConflict{
		Columns:   target,
		DoUpdates: clause.AssignmentColumns([]string{"last_read_message_id", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "chat_read_status.last_read_message_id < excluded.last_read_message_id"},
		}},
	}
}

func (s *GormReadStore) Get(ctx context.Context, chatRoomID, userID int64) (*domain.Watermark, error) {
	var model domain.ChatReadStatusModel
	err := s.db.WithContext(ctx).
		Where("chat_room_id = ? AND user_id = ?", chatRoomID, userID).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWatermarkNotFound
		}
		return nil, fmt.Errorf("get read watermark: %w", err)
	}
	return model.ToDomain(), nil
}
