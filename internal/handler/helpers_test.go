package handler

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat-relay/internal/config"
	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/internal/hub"
	"github.com/weiawesome/wes-io-chat-relay/internal/idgen"
	"github.com/weiawesome/wes-io-chat-relay/internal/repository"
	"github.com/weiawesome/wes-io-chat-relay/internal/service"
	"github.com/weiawesome/wes-io-chat-relay/pkg/database"
)

func init() {
	gin.SetMode(gin.TestMode)
}

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

func newChatService(t *testing.T, db *gorm.DB) service.ChatService {
	t.Helper()

	ids, err := idgen.NewSnowflake(1, 1704067200000)
	require.NoError(t, err)
	return service.NewChatService(
		repository.NewGormMessageRepository(db),
		repository.NewGormMemberRepository(db),
		ids,
		false,
	)
}

var testWSConfig = config.WebSocketConfig{
	Path:           "/ws/chat",
	PingInterval:   time.Second,
	PongWait:       5 * time.Second,
	WriteWait:      time.Second,
	MaxMessageSize: 65536,
	SendBufferSize: 32,
}

const testMaxMessageLength = 8000

// relay is a running WebSocket endpoint backed by the given dispatcher.
type relay struct {
	registry *hub.Registry
	handler  *WSHandler
	server   *httptest.Server
}

func startRelay(t *testing.T, reg *hub.Registry, d service.Dispatcher) *relay {
	t.Helper()

	ids, err := idgen.NewSessionIDs(idgen.SessionULID)
	require.NoError(t, err)

	h := NewWSHandler(reg, d, ids, testWSConfig, testMaxMessageLength)
	router := gin.New()
	h.RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		h.Shutdown()
		srv.Close()
	})
	return &relay{registry: reg, handler: h, server: srv}
}

func (r *relay) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(r.server.URL, "http") + testWSConfig.Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitOpen blocks until n sessions are registered and open.
func (r *relay) waitOpen(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		open := 0
		for _, s := range r.registry.Snapshot() {
			if s.IsOpen() {
				open++
			}
		}
		return open == n && r.registry.Len() == n
	}, 2*time.Second, 5*time.Millisecond)
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	return string(data)
}

// expectSilence asserts nothing arrives on conn within d. gorilla fails every
// read after a timeout, so conn must not be read again.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %q", data)
}
