package handler

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat-relay/internal/consumer"
	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/internal/gateway"
	"github.com/weiawesome/wes-io-chat-relay/internal/hub"
	"github.com/weiawesome/wes-io-chat-relay/internal/service"
)

func startDirectRelay(t *testing.T) *relay {
	t.Helper()

	reg := hub.NewRegistry(4)
	chat := newChatService(t, newTestDB(t))
	return startRelay(t, reg, service.NewDirectDispatcher(chat, hub.NewBroadcaster(reg)))
}

func decodeBroadcast(t *testing.T, text string) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &out), "frame %q", text)
	return out
}

func TestMessageReachesEverySession(t *testing.T) {
	r := startDirectRelay(t)
	a, b := r.dial(t), r.dial(t)
	r.waitOpen(t, 2)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"chatRoomId":1,"userId":10,"message":"hello"}`)))

	for _, conn := range []*websocket.Conn{a, b} {
		out := decodeBroadcast(t, readText(t, conn))
		assert.Equal(t, "hello", out["message"])
		assert.EqualValues(t, 10, out["senderId"])
		assert.EqualValues(t, 1, out["chatRoomId"])
		assert.NotNil(t, out["id"])
		assert.NotEmpty(t, out["createdAt"])
	}
}

func TestMalformedFrameNotifiesSenderOnly(t *testing.T) {
	r := startDirectRelay(t)
	a, b := r.dial(t), r.dial(t)
	r.waitOpen(t, 2)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"chatRoomId":`)))
	assert.Equal(t, domain.NoticeInvalidFormat, readText(t, a))
	expectSilence(t, b, 200*time.Millisecond)

	// The sender stays connected and can keep chatting.
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"chatRoomId":"1","userId":"10","message":"still here"}`)))
	out := decodeBroadcast(t, readText(t, a))
	assert.Equal(t, "still here", out["message"])
	assert.Equal(t, 2, r.registry.Len())
}

func TestEmptyMessageRejected(t *testing.T) {
	r := startDirectRelay(t)
	a := r.dial(t)
	r.waitOpen(t, 1)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"chatRoomId":1,"userId":10,"message":"   "}`)))
	assert.Equal(t, domain.NoticeInvalidFormat+": "+domain.ErrEmptyMessage.Error(), readText(t, a))
}

func TestLongMessagesKeepSessionOpen(t *testing.T) {
	r := startDirectRelay(t)
	a := r.dial(t)
	r.waitOpen(t, 1)

	long := strings.Repeat("x", 5000)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"chatRoomId":1,"userId":10,"message":"`+long+`"}`)))
	assert.Equal(t, long, decodeBroadcast(t, readText(t, a))["message"])

	tooLong := strings.Repeat("x", testMaxMessageLength+1)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"chatRoomId":1,"userId":10,"message":"`+tooLong+`"}`)))
	assert.Equal(t, domain.NoticeInvalidFormat+": "+domain.ErrMessageTooLong.Error(), readText(t, a))
	assert.Equal(t, 1, r.registry.Len())

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"chatRoomId":1,"userId":10,"message":"after"}`)))
	assert.Equal(t, "after", decodeBroadcast(t, readText(t, a))["message"])
}

func TestMessagesFromOneSenderKeepOrder(t *testing.T) {
	r := startDirectRelay(t)
	a, b := r.dial(t), r.dial(t)
	r.waitOpen(t, 2)

	for _, text := range []string{"one", "two", "three"} {
		frame, err := json.Marshal(map[string]interface{}{"chatRoomId": 1, "userId": 10, "message": text})
		require.NoError(t, err)
		require.NoError(t, a.WriteMessage(websocket.TextMessage, frame))
	}

	for _, text := range []string{"one", "two", "three"} {
		assert.Equal(t, text, decodeBroadcast(t, readText(t, b))["message"])
	}
}

func TestDisconnectUnregistersSession(t *testing.T) {
	r := startDirectRelay(t)
	a, b := r.dial(t), r.dial(t)
	r.waitOpen(t, 2)

	require.NoError(t, a.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	a.Close()
	r.waitOpen(t, 1)

	// Broadcasts after the disconnect still reach the remaining session.
	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte(`{"chatRoomId":1,"userId":11,"message":"alone"}`)))
	assert.Equal(t, "alone", decodeBroadcast(t, readText(t, b))["message"])
}

func TestShutdownClosesSessions(t *testing.T) {
	r := startDirectRelay(t)
	a := r.dial(t)
	r.waitOpen(t, 1)

	r.handler.Shutdown()

	require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := a.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	r.waitOpen(t, 0)
}

func TestGatewayModeDeliversThroughLog(t *testing.T) {
	reg := hub.NewRegistry(4)
	chat := newChatService(t, newTestDB(t))
	gw := gateway.NewMemoryGateway(64)
	t.Cleanup(func() { gw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go consumer.NewBroadcastConsumer(gw, hub.NewBroadcaster(reg)).Run(ctx)

	r := startRelay(t, reg, service.NewGatewayDispatcher(chat, gw, time.Second))
	a, b := r.dial(t), r.dial(t)
	r.waitOpen(t, 2)
	// The broadcast consumer attaches asynchronously.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"chatRoomId":7,"userId":70,"message":"via log"}`)))

	for _, conn := range []*websocket.Conn{a, b} {
		out := decodeBroadcast(t, readText(t, conn))
		assert.Equal(t, "via log", out["message"])
		assert.EqualValues(t, 70, out["senderId"])
		assert.EqualValues(t, 7, out["chatRoomId"])
		assert.NotNil(t, out["id"])
	}
}

func TestGatewayFailureNotifiesSender(t *testing.T) {
	reg := hub.NewRegistry(4)
	chat := newChatService(t, newTestDB(t))
	gw := gateway.NewMemoryGateway(4)
	require.NoError(t, gw.Close())

	r := startRelay(t, reg, service.NewGatewayDispatcher(chat, gw, time.Second))
	a := r.dial(t)
	r.waitOpen(t, 1)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"chatRoomId":7,"userId":70,"message":"lost"}`)))
	assert.Equal(t, domain.NoticeSendFailed+": "+gateway.ErrClosed.Error(), readText(t, a))
	assert.Equal(t, 1, r.registry.Len())
}
