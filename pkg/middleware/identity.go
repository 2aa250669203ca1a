package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-chat-relay/pkg/response"
)

const (
	// UserIDKey is the gin context key holding the caller's user id (int64).
	UserIDKey = "user_id"
	// UserIDHeader carries the identity asserted by the upstream gateway.
	UserIDHeader = "userId"
)

// RequireUser trusts the userId header set by the authenticating edge and
// answers 400 when the header is missing or not a positive numeric id.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if raw == "" {
			response.BadRequest(c, "missing userId header")
			c.Abort()
			return
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			response.BadRequest(c, "userId header must be a positive integer")
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// GetUserID extracts the user id stored by RequireUser. Zero means absent.
func GetUserID(c *gin.Context) int64 {
	if id, exists := c.Get(UserIDKey); exists {
		if v, ok := id.(int64); ok {
			return v
		}
	}
	return 0
}
