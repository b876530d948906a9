package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	authdomain "github.com/smallbiznis/tenantry/internal/auth/domain"
	"github.com/smallbiznis/tenantry/internal/config"
	"github.com/smallbiznis/tenantry/internal/observability"
	obsmiddleware "github.com/smallbiznis/tenantry/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tenantry/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tenantry/internal/observability/tracing"
	organizationdomain "github.com/smallbiznis/tenantry/internal/organization/domain"
	"github.com/smallbiznis/tenantry/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	authsvc         authdomain.Service
	organizationSvc organizationdomain.Service
	loginLimiter    *ratelimit.LoginLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Authsvc         authdomain.Service
	OrganizationSvc organizationdomain.Service
	LoginLimiter    *ratelimit.LoginLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics     `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		authsvc:         p.Authsvc,
		organizationSvc: p.OrganizationSvc,
		loginLimiter:    p.LoginLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerOrganizationRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/register", s.Register)
	auth.POST("/login", s.LoginRateLimit(), s.Login)
	auth.GET("/profile", s.AuthRequired(), s.Profile)
}

func (s *Server) registerOrganizationRoutes() {
	orgs := s.engine.Group("/organizations", s.AuthRequired())
	{
		orgs.POST("", s.CreateOrganization)
		orgs.GET("", s.ListOrganizations)
		orgs.GET("/:id", s.GetOrganization)
		orgs.PATCH("/:id", s.UpdateOrganization)
		orgs.DELETE("/:id", s.DeleteOrganization)

		orgs.GET("/:id/members", s.ListMembers)
		orgs.POST("/:id/members", s.AddMember)
		orgs.DELETE("/:id/members/:memberId", s.RemoveMember)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
