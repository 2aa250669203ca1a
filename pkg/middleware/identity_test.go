package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRequireUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		header string
		status int
		userID int64
	}{
		{"valid", "42", http.StatusOK, 42},
		{"padded", " 7 ", http.StatusOK, 7},
		{"missing", "", http.StatusBadRequest, 0},
		{"not a number", "abc", http.StatusBadRequest, 0},
		{"zero", "0", http.StatusBadRequest, 0},
		{"negative", "-3", http.StatusBadRequest, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen int64
			r := gin.New()
			r.GET("/", RequireUser(), func(c *gin.Context) {
				seen = GetUserID(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(UserIDHeader, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.userID, seen)
		})
	}
}
