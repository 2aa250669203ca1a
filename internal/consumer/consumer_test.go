package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/internal/gateway"
	"github.com/weiawesome/wes-io-chat-relay/internal/hub"
	"github.com/weiawesome/wes-io-chat-relay/internal/idgen"
	"github.com/weiawesome/wes-io-chat-relay/internal/repository"
	"github.com/weiawesome/wes-io-chat-relay/internal/service"
	"github.com/weiawesome/wes-io-chat-relay/pkg/database"
)

type recordingSession struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func (s *recordingSession) ID() string   { return s.id }
func (s *recordingSession) IsOpen() bool { return true }

func (s *recordingSession) Enqueue(frame []byte) (<-chan error, error) {
	s.mu.Lock()
	s.frames = append(s.frames, append([]byte(nil), frame...))
	s.mu.Unlock()

	ack := make(chan error, 1)
	ack <- nil
	return ack, nil
}

func (s *recordingSession) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames...)
}

func newChatService(t *testing.T) (service.ChatService, *gorm.DB) {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:       database.DriverSQLite,
		FilePath:     ":memory:",
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.Models()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	ids, err := idgen.NewSnowflake(1, 1704067200000)
	require.NoError(t, err)

	chat := service.NewChatService(repository.NewGormMessageRepository(db), repository.NewGormMemberRepository(db), ids, false)
	return chat, db
}

func loadMessage(db *gorm.DB, id int64) (*domain.ChatMessage, error) {
	var model domain.ChatMessageModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func TestGatewayModeConvergesOnBroadcast(t *testing.T) {
	chat, db := newChatService(t)
	gw := gateway.NewMemoryGateway(64)
	defer gw.Close()

	reg := hub.NewRegistry(4)
	a, b := &recordingSession{id: "a"}, &recordingSession{id: "b"}
	require.NoError(t, reg.Register(a))
	require.NoError(t, reg.Register(b))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go NewBroadcastConsumer(gw, hub.NewBroadcaster(reg)).Run(ctx)
	go NewPersistConsumer(gw, chat, "persist").Run(ctx)
	// Let both subscriptions attach before enqueueing.
	time.Sleep(50 * time.Millisecond)

	d := service.NewGatewayDispatcher(chat, gw, time.Second)
	msg, err := d.Dispatch(ctx, domain.ChatFrame{ChatRoomID: 1, UserID: 10, Message: "hello"})
	require.NoError(t, err)

	for _, s := range []*recordingSession{a, b} {
		s := s
		require.Eventually(t, func() bool { return len(s.received()) == 1 }, time.Second, 5*time.Millisecond)

		var out domain.ChatMessage
		require.NoError(t, json.Unmarshal(s.received()[0], &out))
		assert.Equal(t, msg.ID, out.ID)
		assert.Equal(t, int64(10), out.SenderID)
		assert.Equal(t, "hello", out.Message)
	}

	assert.Eventually(t, func() bool {
		_, err := loadMessage(db, msg.ID)
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestPersistConsumerSavesRedeliveryOnce(t *testing.T) {
	chat, db := newChatService(t)
	c := NewPersistConsumer(nil, chat, "persist")
	ctx := context.Background()

	msg, err := chat.NewMessage(ctx, domain.ChatFrame{ChatRoomID: 1, UserID: 10, Message: "once"})
	require.NoError(t, err)
	env := gateway.NewEnvelope(msg)

	require.NoError(t, c.handle(ctx, env))
	require.NoError(t, c.handle(ctx, env))

	got, err := loadMessage(db, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "once", got.Message)
}

func TestBroadcastConsumerPreservesLogOrder(t *testing.T) {
	reg := hub.NewRegistry(4)
	s := &recordingSession{id: "a"}
	require.NoError(t, reg.Register(s))

	c := NewBroadcastConsumer(nil, hub.NewBroadcaster(reg))
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		env := gateway.NewEnvelope(&domain.ChatMessage{ID: i, ChatRoomID: 1, SenderID: 10, Message: "m", CreatedAt: time.Now()})
		require.NoError(t, c.handle(ctx, env))
	}

	frames := s.received()
	require.Len(t, frames, 5)
	for i, frame := range frames {
		var out domain.ChatMessage
		require.NoError(t, json.Unmarshal(frame, &out))
		assert.Equal(t, int64(i+1), out.ID)
	}
}
