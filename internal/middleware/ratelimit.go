package middleware

import (
	"fmt"
	"time"

	pkgredis "github.com/Soravit-Ice/Random-Call-BE/internal/pkg/redis"
	"github.com/Soravit-Ice/Random-Call-BE/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const rateLimitWindow = time.Minute

// RateLimit caps requests per authenticated user per fixed one-minute
// window. A nil client or a non-positive limit disables it; Redis errors
// let the request through.
func RateLimit(rc *pkgredis.Client, scope string, limit int, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rc == nil || limit <= 0 {
			c.Next()
			return
		}
		subject := CurrentUserID(c)
		if subject == "" {
			subject = c.ClientIP()
		}

		window := time.Now().Unix() / int64(rateLimitWindow.Seconds())
		key := fmt.Sprintf("random-call:rate_limit:%s:%s:%d", scope, subject, window)
		count, err := rc.Incr(c.Request.Context(), key, rateLimitWindow+time.Second)
		if err != nil {
			if logger != nil {
				logger.Debug("rate limit skipped", zap.Error(err))
			}
			c.Next()
			return
		}

		if count > int64(limit) {
			c.Header("Retry-After", "60")
			response.TooManyRequests(c)
			return
		}
		c.Next()
	}
}
