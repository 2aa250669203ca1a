package service

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/internal/idgen"
	"github.com/weiawesome/wes-io-chat-relay/internal/repository"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

type chatService struct {
	messages          repository.MessageRepository
	members           repository.MemberRepository
	ids               idgen.Generator
	requireMembership bool
	now               func() time.Time
}

func NewChatService(
	messages repository.MessageRepository,
	members repository.MemberRepository,
	ids idgen.Generator,
	requireMembership bool,
) ChatService {
	return &chatService{
		messages:          messages,
		members:           members,
		ids:               ids,
		requireMembership: requireMembership,
		now:               time.Now,
	}
}

func (s *chatService) NewMessage(ctx context.Context, frame domain.ChatFrame) (*domain.ChatMessage, error) {
	if err := checkMembership(ctx, s.members, s.requireMembership, frame.ChatRoomID, frame.UserID); err != nil {
		return nil, err
	}

	id, err := s.ids.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	return &domain.ChatMessage{
		ID:         id,
		ChatRoomID: frame.ChatRoomID,
		SenderID:   frame.UserID,
		Message:    frame.Message,
		CreatedAt:  s.now().UTC(),
	}, nil
}

func (s *chatService) SendMessage(ctx context.Context, frame domain.ChatFrame) (*domain.ChatMessage, error) {
	msg, err := s.NewMessage(ctx, frame)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *chatService) SaveMessage(ctx context.Context, msg *domain.ChatMessage) error {
	written, err := s.messages.Save(ctx, msg)
	if err != nil {
		return err
	}
	if !written {
		l := log.Ctx(ctx)
		l.Debug().Int64(log.FieldMessageID, msg.ID).Msg("message already stored, skipping")
	}
	return nil
}

func checkMembership(ctx context.Context, members repository.MemberRepository, required bool, chatRoomID, userID int64) error {
	if !required {
		return nil
	}
	ok, err := members.IsMember(ctx, chatRoomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotMember
	}
	return nil
}
