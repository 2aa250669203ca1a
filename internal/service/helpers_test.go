package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/internal/idgen"
	"github.com/weiawesome/wes-io-chat-relay/internal/repository"
	"github.com/weiawesome/wes-io-chat-relay/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

type fixture struct {
	db       *gorm.DB
	messages *repository.GormMessageRepository
	members  *repository.GormMemberRepository
	ids      *idgen.Snowflake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	ids, err := idgen.NewSnowflake(1, 1704067200000)
	require.NoError(t, err)
	return &fixture{
		db:       db,
		messages: repository.NewGormMessageRepository(db),
		members:  repository.NewGormMemberRepository(db),
		ids:      ids,
	}
}

func loadMessage(db *gorm.DB, id int64) (*domain.ChatMessage, error) {
	var model domain.ChatMessageModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// recordingSession is a hub.Session that captures frames in memory.
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
