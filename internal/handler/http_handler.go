package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-chat-relay/internal/audit"
	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/internal/hub"
	"github.com/weiawesome/wes-io-chat-relay/internal/service"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
	"github.com/weiawesome/wes-io-chat-relay/pkg/middleware"
	"github.com/weiawesome/wes-io-chat-relay/pkg/response"
)

type HTTPHandler struct {
	readService service.ReadService
	registry    *hub.Registry
}

func NewHTTPHandler(readService service.ReadService, reg *hub.Registry) *HTTPHandler {
	return &HTTPHandler{
		readService: readService,
		registry:    reg,
	}
}

func (h *HTTPHandler) RegisterRoutes(r gin.IRouter) {
	read := r.Group("/api/chat/read", middleware.RequireUser())
	{
		read.POST("/:chatRoomId/message/:chatMessageId", h.MarkAsRead)
		read.GET("/:chatRoomId/last-read", h.GetLastRead)
	}

	r.GET("/health", h.HealthCheck)
}

func (h *HTTPHandler) MarkAsRead(c *gin.Context) {
	chatRoomID, ok := pathID(c, "chatRoomId")
	if !ok {
		return
	}
	messageID, ok := pathID(c, "chatMessageId")
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	ctx := c.Request.Context()
	resp, err := h.readService.MarkAsRead(ctx, chatRoomID, userID, messageID)
	if err != nil {
		h.fail(c, err, "failed to mark as read")
		return
	}

	if resp.Updated {
		audit.LogWithDetail(ctx, audit.ActionMarkRead, userID, strconv.FormatInt(resp.LastReadMessageID, 10), "read watermark advanced")
	}
	response.Success(c, resp)
}

func (h *HTTPHandler) GetLastRead(c *gin.Context) {
	chatRoomID, ok := pathID(c, "chatRoomId")
	if !ok {
		return
	}

	resp, err := h.readService.GetLastRead(c.Request.Context(), chatRoomID, middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err, "failed to get last read message")
		return
	}
	response.Success(c, resp)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	response.Success(c, gin.H{
		"status":   "ok",
		"sessions": h.registry.Len(),
	})
}

func (h *HTTPHandler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		response.BadRequest(c, err.Error())
	case errors.Is(err, domain.ErrNotMember):
		response.Forbidden(c, err.Error())
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(msg)
		response.InternalError(c, msg)
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
