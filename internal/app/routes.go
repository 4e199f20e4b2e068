package app

import (
	"context"
	"net/http"
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/middleware"
	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/match"
	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/realtime/signaling"
	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/tasks/crontask"
	"github.com/Soravit-Ice/Random-Call-BE/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (a *App) registerRoutes() {
	r := a.router
	authMW := middleware.Auth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	root := r.Group("")
	root.GET("/health", a.health)
	signaling.RegisterRoutes(root, a.hub)

	var limiter gin.HandlerFunc
	if a.rc != nil && a.cfg.RateLimit.MatchPerMinute > 0 {
		limiter = middleware.RateLimit(a.rc, "match", a.cfg.RateLimit.MatchPerMinute, a.logger)
	}
	match.NewHandler(a.service, match.HandlerOptions{
		AllowResetAll:  a.cfg.IsDev(),
		RequestLimiter: limiter,
		Logger:         a.logger,
	}).RegisterRoutes(root, authMW)

	crontask.NewHandler(a.sched, a.logger).RegisterRoutes(root, authMW, middleware.AdminOnly(a.cfg.IsDev()))
}

// GET /health
func (a *App) health(c *gin.Context) {
	storeStatus := "memory"
	if a.db != nil {
		storeStatus = "ok"
		if sqlDB, err := a.db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			storeStatus = "down"
		}
	}
	redisStatus := "disabled"
	if a.rc != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		redisStatus = "ok"
		if err := a.rc.Ping(ctx); err != nil {
			a.logger.Warn("health: redis ping failed", zap.Error(err))
			redisStatus = "down"
		}
	}

	status := http.StatusOK
	if storeStatus == "down" || redisStatus == "down" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"name":     "random-call",
		"env":      a.cfg.Env,
		"uptime":   uptime(time.Since(processStart)),
		"store":    storeStatus,
		"redis":    redisStatus,
		"realtime": a.registry.Stats(),
	})
}
