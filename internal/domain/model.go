package domain

import "time"

// ChatMessageModel is the GORM model for the chat_message table.
// ID is assigned by the id generator, never by the database.
type ChatMessageModel struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false"`
	ChatRoomID int64     `gorm:"index:idx_chat_message_room;not null"`
	SenderID   int64     `gorm:"not null"`
	Message    string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (ChatMessageModel) TableName() string {
	return "chat_message"
}

func (m *ChatMessageModel) ToDomain() *ChatMessage {
	return &ChatMessage{
		ID:         m.ID,
		ChatRoomID: m.ChatRoomID,
		SenderID:   m.SenderID,
		Message:    m.Message,
		CreatedAt:  m.CreatedAt,
	}
}

func ChatMessageToModel(msg *ChatMessage) *ChatMessageModel {
	return &ChatMessageModel{
		ID:         msg.ID,
		ChatRoomID: msg.ChatRoomID,
		SenderID:   msg.SenderID,
		Message:    msg.Message,
		CreatedAt:  msg.CreatedAt,
	}
}

// ChatReadStatusModel is the GORM model for chat_read_status; one row per
// (chat_room_id, user_id).
type ChatReadStatusModel struct {
	ChatRoomID        int64 `gorm:"primaryKey;autoIncrement:false"`
	UserID            int64 `gorm:"primaryKey;autoIncrement:false"`
	LastReadMessageID int64 `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (ChatReadStatusModel) TableName() string {
	return "chat_read_status"
}

func (m *ChatReadStatusModel) ToDomain() *Watermark {
	return &Watermark{
		ChatRoomID:        m.ChatRoomID,
		UserID:            m.UserID,
		LastReadMessageID: m.LastReadMessageID,
		UpdatedAt:         m.UpdatedAt,
	}
}

// ChatRoomMemberModel is the GORM model for chat_room_member.
type ChatRoomMemberModel struct {
	ID         uint  `gorm:"primaryKey"`
	ChatRoomID int64 `gorm:"uniqueIndex:idx_chat_room_member;not null"`
	UserID     int64 `gorm:"uniqueIndex:idx_chat_room_member;not null"`
	CreatedAt  time.Time
}

func (ChatRoomMemberModel) TableName() string {
	return "chat_room_member"
}

// Models lists every table owned by the relay, for migrations.
func Models() []interface{} {
	return []interface{}{
		&ChatMessageModel{},
		&ChatReadStatusModel{},
		&ChatRoomMemberModel{},
	}
}
