package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/carebase/planmart/internal/audit/domain"
	"github.com/carebase/planmart/internal/config"
	"github.com/carebase/planmart/internal/coordinator"
	"github.com/carebase/planmart/internal/observability"
	obsmiddleware "github.com/carebase/planmart/internal/observability/logger"
	obstracing "github.com/carebase/planmart/internal/observability/tracing"
	"github.com/carebase/planmart/pkg/db"
)

var ErrInvalidConfig = errors.New("server requires logger, db, coordinator and audit")

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

// NewEngine builds the ops engine: recovery, request logging and tracing.
// The pipeline lives behind the coordinator, the HTTP surface only observes.
func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

type Params struct {
	fx.In

	Log   *zap.Logger
	DB    *gorm.DB
	Coord *coordinator.Coordinator
	Audit auditdomain.Service
}

// Server exposes liveness, readiness, metrics and load status.
type Server struct {
	log   *zap.Logger
	db    *gorm.DB
	coord *coordinator.Coordinator
	audit auditdomain.Service
}

func NewServer(p Params) (*Server, error) {
	if p.Log == nil || p.DB == nil || p.Coord == nil || p.Audit == nil {
		return nil, ErrInvalidConfig
	}
	return &Server{
		log:   p.Log.Named("server"),
		db:    p.DB,
		coord: p.Coord,
		audit: p.Audit,
	}, nil
}

// Register mounts the ops routes.
func (s *Server) Register(r *gin.Engine) {
	r.GET("/healthz", s.Healthz)
	r.GET("/readyz", s.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/status", s.Status)
	r.GET("/runs", s.Runs)
}

func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz answers whether the warehouse connection is usable. A daemon that
// cannot reach the store can still serve /healthz, it is alive but not ready.
func (s *Server) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := db.Ping(ctx, s.db); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func run(lc fx.Lifecycle, log *zap.Logger, cfg config.Config, r *gin.Engine, s *Server) {
	s.Register(r)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server.listen_failed", zap.String("addr", cfg.HTTPAddr), zap.Error(err))
				}
			}()
			log.Info("server.started", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
