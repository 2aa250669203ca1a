package handler

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-chat-relay/internal/audit"
	"github.com/weiawesome/wes-io-chat-relay/internal/config"
	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/internal/hub"
	"github.com/weiawesome/wes-io-chat-relay/internal/idgen"
	"github.com/weiawesome/wes-io-chat-relay/internal/service"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

type WSHandler struct {
	registry   *hub.Registry
	dispatcher service.Dispatcher
	wsCfg      config.WebSocketConfig
	sessionIDs idgen.SessionIDs
	maxLength  int
	upgrader   websocket.Upgrader

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewWSHandler serves chat sessions. Messages longer than maxLength characters
// are rejected with a notice; zero accepts any length that fits in a frame.
func NewWSHandler(reg *hub.Registry, d service.Dispatcher, ids idgen.SessionIDs, wsCfg config.WebSocketConfig, maxLength int) *WSHandler {
	return &WSHandler{
		registry:   reg,
		dispatcher: d,
		wsCfg:      wsCfg,
		sessionIDs: ids,
		maxLength:  maxLength,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		shutdown: make(chan struct{}),
	}
}

func (h *WSHandler) RegisterRoutes(r gin.IRouter) {
	path := h.wsCfg.Path
	if path == "" {
		path = "/ws/chat"
	}
	r.GET(path, h.HandleWebSocket)
}

// Shutdown closes every live session. New upgrades are still accepted, so
// call it after the HTTP server stopped listening.
func (h *WSHandler) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}

// HandleWebSocket runs one session for the lifetime of the connection.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := log.Ctx(c.Request.Context())

	sessionID, err := h.sessionIDs.NewSessionID()
	if err != nil {
		l.Error().Err(err).Msg("failed to generate session id")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(sessionID, conn, h.wsCfg)
	ctx, cancel := context.WithCancel(log.WithSession(c.Request.Context(), client.ID()))
	l = log.Ctx(ctx)

	if err := h.registry.Register(client); err != nil {
		l.Error().Err(err).Msg("failed to register session")
		cancel()
		conn.Close()
		return
	}

	go client.WritePump()
	client.Session.Advance(domain.StateOpen)
	audit.Log(ctx, audit.ActionConnect, 0, "session opened")

	var unregister sync.Once
	defer func() {
		client.Session.Advance(domain.StateClosing)
		unregister.Do(func() { h.registry.Unregister(client.ID()) })
		cancel()
		client.Close()
		client.Session.Advance(domain.StateClosed)
		audit.Log(ctx, audit.ActionDisconnect, 0, "session closed")
	}()

	go func() {
		select {
		case <-h.shutdown:
			client.Close()
		case <-ctx.Done():
		}
	}()

	err = client.ReadPump(func(raw []byte) {
		h.handleFrame(ctx, client, raw)
	})
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		l.Warn().Err(err).Msg("websocket closed unexpectedly")
	}
}

// handleFrame processes one inbound frame. Failures are reported to the
// sender only; the session stays open.
func (h *WSHandler) handleFrame(ctx context.Context, client *hub.Client, raw []byte) {
	l := log.Ctx(ctx)

	frame, err := domain.DecodeFrame(raw, h.maxLength)
	if err != nil {
		l.Debug().Err(err).Msg("rejected inbound frame")
		h.notify(ctx, client, domain.Notice(err))
		return
	}

	msg, err := h.dispatcher.Dispatch(ctx, frame)
	if err != nil {
		l.Warn().Err(err).Int64(log.FieldRoomID, frame.ChatRoomID).Int64(log.FieldUserID, frame.UserID).Msg("dispatch failed")
		audit.LogWithDetail(ctx, audit.ActionSendFailed, frame.UserID, err.Error(), "message rejected")
		h.notify(ctx, client, domain.Notice(err))
		return
	}

	audit.LogWithDetail(ctx, audit.ActionSendMessage, frame.UserID, strconv.FormatInt(msg.ID, 10), "message accepted")
}

func (h *WSHandler) notify(ctx context.Context, client *hub.Client, text string) {
	if err := client.Notify(text); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Msg("failed to send notice")
	}
}
