package repository

import (
	"context"

	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
)

// MessageRepository persists materialized chat messages.
type MessageRepository interface {
	// Create inserts a new message; a duplicate id is an error.
	Create(ctx context.Context, msg *domain.ChatMessage) error
	// Save inserts msg unless a message with the same id already exists and
	// reports whether a row was written. Used by at-least-once consumers.
	Save(ctx context.Context, msg *domain.ChatMessage) (bool, error)
}

// MemberRepository answers room membership questions.
type MemberRepository interface {
	IsMember(ctx context.Context, chatRoomID, userID int64) (bool, error)
	// AddMember is idempotent.
	AddMember(ctx context.Context, chatRoomID, userID int64) error
}

// ReadStore holds read watermarks. Advance must be atomic per
// (chatRoomID, userID): concurrent callers never lower the stored value.
type ReadStore interface {
	// Advance raises the watermark to messageID if it is higher than the stored
	// value (or creates it) and returns the resulting watermark and whether it moved.
	Advance(ctx context.Context, chatRoomID, userID, messageID int64) (*domain.Watermark, bool, error)
	// Get returns domain.ErrWatermarkNotFound when nothing has been read yet.
	Get(ctx context.Context, chatRoomID, userID int64) (*domain.Watermark, error)
}
