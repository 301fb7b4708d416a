package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/azurecost/internal/config"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
	"github.com/smallbiznis/azurecost/internal/observability"
	obsmiddleware "github.com/smallbiznis/azurecost/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/azurecost/internal/observability/metrics"
	obstracing "github.com/smallbiznis/azurecost/internal/observability/tracing"
	"github.com/smallbiznis/azurecost/internal/ratelimit"
	"github.com/smallbiznis/azurecost/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(recoveryMiddleware())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware(cfg.IsProduction(), cfg.ShowDebugInfo()))
	r.NoRoute(noRoute)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(cfg, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type ServerParams struct {
	fx.In

	Engine    *gin.Engine
	Config    config.Config
	DB        *gorm.DB
	CostSvc   costdomain.Service
	Pipeline  costdomain.Pipeline
	Scheduler *scheduler.Scheduler    `optional:"true"`
	Limiter   *ratelimit.FetchLimiter `optional:"true"`
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	db        *gorm.DB
	costSvc   costdomain.Service
	pipeline  costdomain.Pipeline
	scheduler *scheduler.Scheduler
	limiter   *ratelimit.FetchLimiter
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:    p.Engine,
		cfg:       p.Config,
		db:        p.DB,
		costSvc:   p.CostSvc,
		pipeline:  p.Pipeline,
		scheduler: p.Scheduler,
		limiter:   p.Limiter,
	}
}

func RegisterRoutes(s *Server) {
	s.RegisterSystemRoutes()
	s.RegisterCostRoutes()
	s.RegisterJobRoutes()
}

func (s *Server) RegisterSystemRoutes() {
	s.engine.GET("/", s.Home)
	s.engine.GET("/health", s.Health)
	s.engine.GET("/status", s.SchedulerStatus)
}

func (s *Server) RegisterCostRoutes() {
	cost := s.engine.Group("/cost")

	fetch := cost.Group("", s.FetchRateLimit())
	fetch.GET("/last-7-days", s.FetchDailyCosts)
	fetch.GET("/month-to-date", s.FetchServiceCosts)
	fetch.GET("/month-to-date/raw", s.FetchServiceCostsRaw)

	cost.GET("/periods", s.ListPeriods)
	cost.GET("/periods/current", s.GetCurrentPeriod)
	cost.GET("/periods/:id/services", s.ListPeriodServiceCosts)
	cost.GET("/periods/:id/daily", s.ListPeriodDailyCosts)
}

func (s *Server) RegisterJobRoutes() {
	s.engine.POST("/jobs/:id/run", s.FetchRateLimit(), s.RunJob)
}
