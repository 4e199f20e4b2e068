package middleware

import (
	"strings"

	"github.com/Soravit-Ice/Random-Call-BE/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

// IsAdmin reports whether the authenticated user may run maintenance
// operations. allowAll opens them to everyone (development).
func IsAdmin(c *gin.Context, allowAll bool) bool {
	return allowAll || strings.Contains(strings.ToLower(CurrentEmail(c)), "admin")
}

// AdminOnly rejects non-admin requests. Must run after Auth.
func AdminOnly(allowAll bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c, allowAll) {
			response.ForbiddenMsg(c, "Not authorized")
			return
		}
		c.Next()
	}
}
