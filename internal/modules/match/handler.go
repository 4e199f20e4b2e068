package match

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/middleware"
	"github.com/Soravit-Ice/Random-Call-BE/internal/pkg/response"
	"github.com/Soravit-Ice/Random-Call-BE/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const noMatchMessage = "no match currently available"

type RequestMatchDTO struct {
	Mode     string   `json:"mode"`
	RadiusKm *float64 `json:"radiusKm"`
}

type EndMatchDTO struct {
	PartnerID string `json:"partnerId"`
	CallLogID string `json:"callLogId"`
}

type CleanupStaleDTO struct {
	OlderThanMinutes *int `json:"olderThanMinutes"`
}

type UpdateStatusDTO struct {
	IsOnline *bool `json:"isOnline"`
	InCall   *bool `json:"inCall"`
}

type HandlerOptions struct {
	// AllowResetAll opens the maintenance operations (reset-all and the
	// cleanup-stale threshold override) to every authenticated user.
	AllowResetAll bool
	// RequestLimiter guards /match/request. Optional.
	RequestLimiter gin.HandlerFunc
	Logger         *zap.Logger
}

type Handler struct {
	svc  *Service
	opts HandlerOptions
}

func NewHandler(svc *Service, opts HandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{svc: svc, opts: opts}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/match", authMW)
	if h.opts.RequestLimiter != nil {
		g.POST("/request", h.opts.RequestLimiter, h.request)
	} else {
		g.POST("/request", h.request)
	}
	g.POST("/end", h.end)
	g.POST("/reset-status", h.resetStatus)
	g.POST("/cleanup-stale", h.cleanupStale)
	g.POST("/reset-all", middleware.AdminOnly(h.opts.AllowResetAll), h.resetAll)

	me := rg.Group("/me", authMW)
	me.GET("", h.me)
	me.PATCH("/location", h.updateLocation)
	me.PATCH("/status", h.updateStatus)

	rg.GET("/users/online", authMW, h.onlineUsers)
}

// POST /match/request
func (h *Handler) request(c *gin.Context) {
	var dto RequestMatchDTO
	if !bindOptionalJSON(c, &dto) {
		return
	}
	payload, err := h.svc.Request(c.Request.Context(), middleware.CurrentUserID(c), ParseMode(dto.Mode), dto.RadiusKm)
	if err != nil {
		h.opts.Logger.Error("match request failed", zap.String("user", middleware.CurrentUserID(c)), zap.Error(err))
		response.ServiceUnavailable(c, noMatchMessage)
		return
	}
	response.OK(c, gin.H{"match": payload})
}

// POST /match/end
func (h *Handler) end(c *gin.Context) {
	var dto EndMatchDTO
	if !bindOptionalJSON(c, &dto) {
		return
	}
	err := h.svc.End(c.Request.Context(), middleware.CurrentUserID(c),
		strings.TrimSpace(dto.PartnerID), strings.TrimSpace(dto.CallLogID))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"ok": true})
}

// POST /match/reset-status
func (h *Handler) resetStatus(c *gin.Context) {
	if err := h.svc.ResetStatus(c.Request.Context(), middleware.CurrentUserID(c)); err != nil {
		writeStoreError(c, err)
		return
	}
	response.OK(c, gin.H{"success": true})
}

// POST /match/cleanup-stale
func (h *Handler) cleanupStale(c *gin.Context) {
	var dto CleanupStaleDTO
	if !bindOptionalJSON(c, &dto) {
		return
	}
	var olderThan time.Duration
	if dto.OlderThanMinutes != nil {
		// only admins may shorten the threshold
		if !middleware.IsAdmin(c, h.opts.AllowResetAll) {
			response.ForbiddenMsg(c, "Not authorized to override the stale threshold")
			return
		}
		if *dto.OlderThanMinutes <= 0 {
			response.BadRequest(c, "olderThanMinutes must be positive")
			return
		}
		olderThan = time.Duration(*dto.OlderThanMinutes) * time.Minute
	}
	n, err := h.svc.CleanupStale(c.Request.Context(), olderThan)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"success": true, "cleanedUp": n})
}

// POST /match/reset-all
func (h *Handler) resetAll(c *gin.Context) {
	n, err := h.svc.ResetAll(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"success": true, "resetCount": n})
}

// GET /me
func (h *Handler) me(c *gin.Context) {
	profile, err := h.svc.Me(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	response.OK(c, profile)
}

// PATCH /me/location
func (h *Handler) updateLocation(c *gin.Context) {
	var body map[string]json.RawMessage
	if !bindOptionalJSON(c, &body) {
		return
	}
	var in LocationUpdate
	var err error
	if in.Lat, err = nullFloatField(body, "lat"); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if in.Lng, err = nullFloatField(body, "lng"); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if raw, ok := body["radiusKmDefault"]; ok {
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			response.BadRequest(c, "radiusKmDefault must be a number")
			return
		}
		in.RadiusKmDefault = &v
	}

	if err := h.svc.UpdateLocation(c.Request.Context(), middleware.CurrentUserID(c), in); err != nil {
		writeStoreError(c, err)
		return
	}
	response.OK(c, gin.H{"ok": true})
}

// PATCH /me/status
func (h *Handler) updateStatus(c *gin.Context) {
	var dto UpdateStatusDTO
	if !bindOptionalJSON(c, &dto) {
		return
	}
	if err := h.svc.UpdateStatus(c.Request.Context(), middleware.CurrentUserID(c), dto.IsOnline, dto.InCall); err != nil {
		writeStoreError(c, err)
		return
	}
	response.OK(c, gin.H{"ok": true})
}

// GET /users/online
func (h *Handler) onlineUsers(c *gin.Context) {
	users, err := h.svc.OnlineUsers(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, users)
}

// bindOptionalJSON decodes the body if there is one. An empty body is
// treated as {}.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, err.Error())
		return false
	}
	return true
}

func nullFloatField(body map[string]json.RawMessage, key string) (store.NullFloat, error) {
	raw, ok := body[key]
	if !ok {
		return store.NullFloat{}, nil
	}
	if string(raw) == "null" {
		return store.NullFloat{Set: true}, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return store.NullFloat{}, fmt.Errorf("%s must be a number or null", key)
	}
	return store.NullFloat{Value: &v, Set: true}, nil
}

func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, store.ErrNotFound):
		response.NotFoundMsg(c, "user not found")
	default:
		response.InternalError(c, err)
	}
}
