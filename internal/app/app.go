package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/config"
	"github.com/Soravit-Ice/Random-Call-BE/internal/database"
	"github.com/Soravit-Ice/Random-Call-BE/internal/middleware"
	"github.com/Soravit-Ice/Random-Call-BE/internal/models"
	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/match"
	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/realtime/presence"
	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/realtime/signaling"
	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/tasks/reaper"
	pkgcron "github.com/Soravit-Ice/Random-Call-BE/internal/pkg/cron"
	pkgredis "github.com/Soravit-Ice/Random-Call-BE/internal/pkg/redis"
	"github.com/Soravit-Ice/Random-Call-BE/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	db       *gorm.DB
	rc       *pkgredis.Client
	store    store.Store
	registry *presence.Registry
	relay    *signaling.Relay
	hub      *signaling.Hub
	service  *match.Service
	reaper   *reaper.Reaper
	sched    *pkgcron.Scheduler
	logger   *zap.Logger
}

// New initializes the application: config → store → Redis → realtime → routes.
func New(ctx context.Context, logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := applyRuntimeSettings(cfg, logger); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		a.store = store.NewMemory()
	default:
		db, err := database.Connect(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		a.db = db
		a.store = store.NewGorm(db)
	}

	if cfg.NeedsRedis() {
		rc, err := pkgredis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.rc = rc
	}

	a.registry = presence.NewRegistry()
	relayOpts := []signaling.Option{signaling.WithLogger(logger)}
	if cfg.Relay.Fanout && a.rc != nil {
		origin := uuid.NewString()
		relayOpts = append(relayOpts, signaling.WithFanout(signaling.NewRedisFanout(a.rc, origin, logger)))
		logger.Info("relay fan-out enabled", zap.String("instance", origin))
	}
	a.relay = signaling.NewRelay(a.registry, relayOpts...)
	a.hub = signaling.NewHub(a.relay, logger, signaling.HubOptions{
		QueueSize:    cfg.Relay.QueueSize,
		Authenticate: middleware.ValidateToken,
	})

	a.reaper = reaper.New(a.store,
		reaper.WithLogger(logger),
		reaper.OnClose(func(ctx context.Context, call models.CallLogModel) {
			if call.RoomID != "" {
				a.relay.CloseRoom(ctx, call.RoomID)
			}
		}),
	)
	engine := match.NewEngine(a.store, match.Options{
		DefaultRadiusKm: cfg.Match.DefaultRadiusKm,
		CandidateLimit:  cfg.Match.CandidateLimit,
		MaxAttempts:     cfg.Match.MaxAttempts,
	}, logger)
	a.service = match.NewService(a.store, engine, a.relay, a.reaper, match.ServiceOptions{
		ICEServers:       cfg.ICEServers,
		ManualStaleAfter: cfg.Reaper.ManualStaleAfter,
		Logger:           logger,
		Connected:        a.registry.IsConnected,
	})

	a.sched = pkgcron.New(pkgcron.WithLogger(logger))
	registerCronJobs(a.sched, a.reaper, cfg)

	a.router = newRouter(cfg, logger)
	a.registerRoutes()
	return a, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Run serves HTTP and runs the realtime and cron loops until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return a.hub.Run(gctx) })
	g.Go(func() error { return a.relay.Run(gctx) })
	g.Go(func() error {
		a.sched.Start(gctx)
		return nil
	})

	err := g.Wait()
	a.Close()
	return err
}

// Close releases the store and Redis connections.
func (a *App) Close() {
	if a.rc != nil {
		if err := a.rc.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Warn("close database", zap.Error(err))
		}
	}
}

var processStart = time.Now()
