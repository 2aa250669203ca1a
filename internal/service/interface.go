package service

import (
	"context"

	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
)

type ChatService interface {
	// NewMessage materializes frame into a message with a fresh id. Nothing is stored.
	NewMessage(ctx context.Context, frame domain.ChatFrame) (*domain.ChatMessage, error)
	// SendMessage materializes and persists frame.
	SendMessage(ctx context.Context, frame domain.ChatFrame) (*domain.ChatMessage, error)
	// SaveMessage stores an already materialized message; repeated calls with
	// the same id store it once.
	SaveMessage(ctx context.Context, msg *domain.ChatMessage) error
}

type ReadService interface {
	MarkAsRead(ctx context.Context, chatRoomID, userID, messageID int64) (*domain.ChatReadStatusResponse, error)
	GetLastRead(ctx context.Context, chatRoomID, userID int64) (*domain.ChatLastReadMessageResponse, error)
}

// Dispatcher hands an accepted frame to the delivery path.
type Dispatcher interface {
	Dispatch(ctx context.Context, frame domain.ChatFrame) (*domain.ChatMessage, error)
}
