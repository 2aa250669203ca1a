package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
)

// GormMemberRepository implements MemberRepository using GORM.
type GormMemberRepository struct {
	db *gorm.DB
}

func NewGormMemberRepository(db *gorm.DB) *GormMemberRepository {
	return &GormMemberRepository{db: db}
}

func (r *GormMemberRepository) IsMember(ctx context.Context, chatRoomID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ChatRoomMemberModel{}).
		Where("chat_room_id = ? AND user_id = ?", chatRoomID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check chat room membership: %w", err)
	}
	return count > 0, nil
}

// AddMember is idempotent.
func (r *GormMemberRepository) AddMember(ctx context.Context, chatRoomID, userID int64) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.ChatRoomMemberModel{ChatRoomID: chatRoomID, UserID: userID}).Error
	if err != nil {
		return fmt.Errorf("add chat room member: %w", err)
	}
	return nil
}
