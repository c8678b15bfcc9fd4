package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/arsenic-art/DreamFundr/internal/shared/apperr"
)

const RoleAdmin = "admin"

// RequireAdmin: 401 without a session, 403 for non-admin users.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			Fail(c, apperr.UnauthorizedErr("authentication required"))
			return
		}
		if u.Role != RoleAdmin {
			Fail(c, apperr.ForbiddenErr("forbidden"))
			return
		}
		c.Next()
	}
}
