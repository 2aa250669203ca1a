package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "/ws/chat", cfg.WebSocket.Path)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, "uuid", cfg.WebSocket.SessionID)
	assert.Equal(t, int64(65536), cfg.WebSocket.MaxMessageSize)
	assert.Equal(t, 8000, cfg.Chat.MaxMessageLength)
	assert.Equal(t, DispatchDirect, cfg.Dispatch.Mode)
	assert.Equal(t, "kafka", cfg.Gateway.Driver)
	assert.Equal(t, "chat-relay-persist", cfg.Gateway.PersistGroup)
	assert.Equal(t, 5*time.Second, cfg.Gateway.EnqueueTimeout)
	assert.Equal(t, "chat.room", cfg.Gateway.NATS.SubjectPrefix)
	assert.Equal(t, "chat:log", cfg.Gateway.Redis.Stream)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ReadStoreDatabase, cfg.Read.Store)
	assert.Equal(t, int64(1704067200000), cfg.ID.Epoch)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
dispatch:
  mode: gateway
gateway:
  driver: nats
  nats:
    subject_prefix: relay.rooms
read:
  store: redis
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	t.Setenv("PORT", "9099")
	t.Setenv("CHAT_WEBSOCKET_SEND_BUFFER_SIZE", "8")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, DispatchGateway, cfg.Dispatch.Mode)
	assert.Equal(t, "nats", cfg.Gateway.Driver)
	assert.Equal(t, "relay.rooms", cfg.Gateway.NATS.SubjectPrefix)
	assert.Equal(t, ReadStoreRedis, cfg.Read.Store)
	assert.Equal(t, 9099, cfg.Server.Port)
	assert.Equal(t, 8, cfg.WebSocket.SendBufferSize)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("dispatch:\n  mode: carrier-pigeon\n"), 0o644))

	_, err := Load(dir)
	assert.ErrorContains(t, err, "dispatch.mode")
}

func TestWatchLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	var level atomic.Value
	require.NoError(t, WatchLogLevel(dir, func(l string) { level.Store(l) }))

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))
	assert.Eventually(t, func() bool {
		l, _ := level.Load().(string)
		return l == "debug"
	}, 5*time.Second, 20*time.Millisecond)
}
