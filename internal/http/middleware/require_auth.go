package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/arsenic-art/DreamFundr/internal/shared/apperr"
)

// RequireAuth rejects requests without a valid session with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUser(c); ok {
			c.Next()
			return
		}
		Fail(c, apperr.UnauthorizedErr("authentication required"))
	}
}
