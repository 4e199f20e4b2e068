package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgredis "github.com/Soravit-Ice/Random-Call-BE/internal/pkg/redis"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.Any("/*path", func(c *gin.Context) {
		c.Set(ContextKeyUserID, "user-1")
		c.Status(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/socket.io/?EIO=4", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/match/request", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "user-1", entries[1].ContextMap()["user"])
	assert.Equal(t, int64(http.StatusNoContent), entries[1].ContextMap()["status"])
}

func TestRateLimitDisabledOrUnavailablePassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	down := pkgredis.Wrap(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}))
	defer down.Close()

	for name, mw := range map[string]gin.HandlerFunc{
		"nil client":  RateLimit(nil, "match", 1, nil),
		"zero limit":  RateLimit(down, "match", 0, nil),
		"redis error": RateLimit(down, "match", 1, zap.NewNop()),
	} {
		r := gin.New()
		r.GET("/x", mw, func(c *gin.Context) { c.Status(http.StatusOK) })
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
			assert.Equal(t, http.StatusOK, w.Code, name)
		}
	}
}
