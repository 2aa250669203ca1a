package domain

import (
	"errors"
	"time"
)

// ChatFrame is a decoded inbound frame. Message has passed ValidateMessage.
type ChatFrame struct {
	ChatRoomID int64
	UserID     int64
	Message    string
}

// ChatMessage is the materialized, immutable form of an accepted message.
// It is also the outbound broadcast frame.
type ChatMessage struct {
	ID         int64     `json:"id"`
	ChatRoomID int64     `json:"chatRoomId"`
	SenderID   int64     `json:"senderId"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Plain-text error notifications sent to the originating session only.
const (
	NoticeInvalidFormat = "invalid message format"
	NoticeSendFailed    = "failed to process message"
)

// Notice renders the single-recipient error text for err.
func Notice(err error) string {
	switch KindOf(err) {
	case KindDecode:
		return NoticeInvalidFormat
	case KindValidation:
		if errors.Is(err, ErrMessageTooLong) {
			return NoticeInvalidFormat + ": " + ErrMessageTooLong.Error()
		}
		return NoticeInvalidFormat + ": " + ErrEmptyMessage.Error()
	default:
		var e *Error
		if errors.As(err, &e) {
			err = e.Err
		}
		return NoticeSendFailed + ": " + err.Error()
	}
}

// ChatReadStatusResponse acknowledges a mark-as-read request. Updated is false
// when the stored watermark was already at or beyond the requested message.
type ChatReadStatusResponse struct {
	ChatRoomID        int64 `json:"chatRoomId"`
	UserID            int64 `json:"userId"`
	LastReadMessageID int64 `json:"lastReadMessageId"`
	Updated           bool  `json:"updated"`
}

// ChatLastReadMessageResponse answers a last-read query. LastReadMessageID is
// nil (JSON null) when the user has never read anything in the room.
type ChatLastReadMessageResponse struct {
	ChatRoomID        int64  `json:"chatRoomId"`
	UserID            int64  `json:"userId"`
	LastReadMessageID *int64 `json:"lastReadMessageId"`
	HasRead           bool   `json:"hasRead"`
}

// Watermark is the stored read position of one user in one room.
type Watermark struct {
	ChatRoomID        int64
	UserID            int64
	LastReadMessageID int64
	UpdatedAt         time.Time
}
