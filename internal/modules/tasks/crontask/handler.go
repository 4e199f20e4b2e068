package crontask

import (
	"errors"

	pkgcron "github.com/Soravit-Ice/Random-Call-BE/internal/pkg/cron"
	"github.com/Soravit-Ice/Random-Call-BE/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes the scheduler over HTTP.
type Handler struct {
	sched  *pkgcron.Scheduler
	logger *zap.Logger
}

func NewHandler(sched *pkgcron.Scheduler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sched: sched, logger: logger.Named("CronTask")}
}

// RegisterRoutes mounts the admin endpoints. adminMW runs after authMW.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	g := rg.Group("/cron-task", authMW, adminMW)
	g.GET("", h.list)
	g.GET("/:name", h.get)
	g.POST("/:name/run", h.run)
}

// GET /cron-task
func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.sched.List())
}

// GET /cron-task/:name
func (h *Handler) get(c *gin.Context) {
	result, err := h.sched.GetTask(c.Param("name"))
	if err != nil {
		response.NotFoundMsg(c, "cron task not found")
		return
	}
	response.OK(c, result)
}

// POST /cron-task/:name/run?wait=true
//
// Without wait the job is started in the background and the caller polls
// GET /cron-task/:name for the outcome.
func (h *Handler) run(c *gin.Context) {
	name := c.Param("name")
	if c.Query("wait") == "true" {
		err := h.sched.RunSync(c.Request.Context(), name)
		switch {
		case errors.Is(err, pkgcron.ErrJobNotFound):
			response.NotFoundMsg(c, "cron task not found")
		case err != nil:
			h.logger.Warn("manual run failed", zap.String("job", name), zap.Error(err))
			response.InternalError(c, err)
		default:
			result, _ := h.sched.GetTask(name)
			response.OK(c, result)
		}
		return
	}

	if err := h.sched.Run(c.Request.Context(), name); err != nil {
		response.NotFoundMsg(c, "cron task not found")
		return
	}
	response.OK(c, gin.H{"message": "job triggered"})
}
