package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	l := log.Ctx(ctx)

	if err := r.db.WithContext(ctx).Create(domain.ChatMessageToModel(msg)).Error; err != nil {
		l.Error().Err(err).Int64(log.FieldMessageID, msg.ID).Msg("failed to create chat message")
		return fmt.Errorf("create chat message: %w", err)
	}
	l.Debug().Int64(log.FieldMessageID, msg.ID).Int64(log.FieldRoomID, msg.ChatRoomID).Msg("chat message created")
	return nil
}

func (r *GormMessageRepository) Save(ctx context.Context, msg *domain.ChatMessage) (bool, error) {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(domain.ChatMessageToModel(msg))
	if result.Error != nil {
		l.Error().Err(result.Error).Int64(log.FieldMessageID, msg.ID).Msg("failed to save chat message")
		return false, fmt.Errorf("save chat message: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
