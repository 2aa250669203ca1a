package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/internal/repository"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

type readServiceImpl struct {
	store             repository.ReadStore
	members           repository.MemberRepository
	requireMembership bool
	sf                singleflight.Group
}

func NewReadService(store repository.ReadStore, members repository.MemberRepository, requireMembership bool) ReadService {
	return &readServiceImpl{
		store:             store,
		members:           members,
		requireMembership: requireMembership,
	}
}

func (s *readServiceImpl) MarkAsRead(ctx context.Context, chatRoomID, userID, messageID int64) (*domain.ChatReadStatusResponse, error) {
	if chatRoomID <= 0 || userID <= 0 || messageID <= 0 {
		return nil, fmt.Errorf("%w: ids must be positive", domain.ErrInvalidArgument)
	}
	if err := checkMembership(ctx, s.members, s.requireMembership, chatRoomID, userID); err != nil {
		return nil, err
	}

	wm, advanced, err := s.store.Advance(ctx, chatRoomID, userID, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark as read: %w", err)
	}
	// Lookups issued after this point must not join one that began before the write.
	s.sf.Forget(lastReadKey(chatRoomID, userID))

	l := log.Ctx(ctx)
	l.Debug().
		Int64(log.FieldRoomID, chatRoomID).
		Int64(log.FieldUserID, userID).
		Int64("requested_message_id", messageID).
		Int64("last_read_message_id", wm.LastReadMessageID).
		Bool("advanced", advanced).
		Msg("read watermark")

	return &domain.ChatReadStatusResponse{
		ChatRoomID:        chatRoomID,
		UserID:            userID,
		LastReadMessageID: wm.LastReadMessageID,
		Updated:           advanced,
	}, nil
}

func (s *readServiceImpl) GetLastRead(ctx context.Context, chatRoomID, userID int64) (*domain.ChatLastReadMessageResponse, error) {
	if chatRoomID <= 0 || userID <= 0 {
		return nil, fmt.Errorf("%w: ids must be positive", domain.ErrInvalidArgument)
	}
	if err := checkMembership(ctx, s.members, s.requireMembership, chatRoomID, userID); err != nil {
		return nil, err
	}

	result, err, _ := s.sf.Do(lastReadKey(chatRoomID, userID), func() (interface{}, error) {
		return s.fetchLastRead(context.WithoutCancel(ctx), chatRoomID, userID)
	})
	if err != nil {
		return nil, err
	}

	resp, ok := result.(*domain.ChatLastReadMessageResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	// Shared callers must not alias each other's response.
	out := *resp
	return &out, nil
}

func lastReadKey(chatRoomID, userID int64) string {
	return fmt.Sprintf("%d:%d", chatRoomID, userID)
}

func (s *readServiceImpl) fetchLastRead(ctx context.Context, chatRoomID, userID int64) (*domain.ChatLastReadMessageResponse, error) {
	resp := &domain.ChatLastReadMessageResponse{ChatRoomID: chatRoomID, UserID: userID}

	wm, err := s.store.Get(ctx, chatRoomID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrWatermarkNotFound) {
			return resp, nil
		}
		return nil, fmt.Errorf("failed to get last read: %w", err)
	}

	id := wm.LastReadMessageID
	resp.LastReadMessageID = &id
	resp.HasRead = true
	return resp, nil
}
