package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/pearlsonic/internal/auth"
	authdomain "github.com/smallbiznis/pearlsonic/internal/auth/domain"
	"github.com/smallbiznis/pearlsonic/internal/auth/session"
	"github.com/smallbiznis/pearlsonic/internal/config"
	"github.com/smallbiznis/pearlsonic/internal/generation"
	generationdomain "github.com/smallbiznis/pearlsonic/internal/generation/domain"
	"github.com/smallbiznis/pearlsonic/internal/generation/sweeper"
	"github.com/smallbiznis/pearlsonic/internal/ledger"
	ledgerdomain "github.com/smallbiznis/pearlsonic/internal/ledger/domain"
	"github.com/smallbiznis/pearlsonic/internal/observability"
	obsmiddleware "github.com/smallbiznis/pearlsonic/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pearlsonic/internal/observability/metrics"
	obstracing "github.com/smallbiznis/pearlsonic/internal/observability/tracing"
	"github.com/smallbiznis/pearlsonic/internal/payment"
	paymentdomain "github.com/smallbiznis/pearlsonic/internal/payment/domain"
	"github.com/smallbiznis/pearlsonic/internal/providers/music"
	"github.com/smallbiznis/pearlsonic/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	auth.Module,
	session.Module,
	ledger.Module,
	music.Module,
	generation.Module,
	sweeper.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("listening", zap.String("addr", srv.Addr))
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
	engine        *gin.Engine
	cfg           config.Config
	authsvc       authdomain.Service
	sessions      *session.Manager
	ledgerSvc     ledgerdomain.Service
	generationSvc generationdomain.Service
	paymentSvc    paymentdomain.Service
	pricing       *config.PricingHolder
	limiter       *ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Authsvc       authdomain.Service
	Sessions      *session.Manager
	LedgerSvc     ledgerdomain.Service
	GenerationSvc generationdomain.Service
	PaymentSvc    paymentdomain.Service
	Pricing       *config.PricingHolder `optional:"true"`
	Limiter       *ratelimit.Limiter    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		authsvc:       p.Authsvc,
		sessions:      p.Sessions,
		ledgerSvc:     p.LedgerSvc,
		generationSvc: p.GenerationSvc,
		paymentSvc:    p.PaymentSvc,
		pricing:       p.Pricing,
		limiter:       p.Limiter,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerPaymentRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/auth")

	// Register and login share one budget per client.
	auth.POST("/register", s.RateLimit(ratelimit.ClassAuth), s.Register)
	auth.POST("/login", s.RateLimit(ratelimit.ClassAuth), s.Login)
	auth.POST("/logout", s.RateLimit(ratelimit.ClassGeneral), s.Logout)
	auth.GET("/me", s.RateLimit(ratelimit.ClassGeneral), s.AuthRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/plans", s.RateLimit(ratelimit.ClassGeneral), s.ListPlans)

	// -------- Music --------
	tracks := api.Group("/music")
	tracks.POST("/generate", s.RateLimit(ratelimit.ClassGenerate), s.AuthRequired(), s.Generate)
	tracks.GET("/status/:id", s.RateLimit(ratelimit.ClassGeneral), s.AuthRequired(), s.JobStatus)
	tracks.GET("/download/:id", s.RateLimit(ratelimit.ClassGeneral), s.AuthRequired(), s.Download)

	// -------- User --------
	user := api.Group("/user", s.RateLimit(ratelimit.ClassGeneral), s.AuthRequired())
	user.GET("/history", s.History)
	user.GET("/transactions", s.Transactions)
}

func (s *Server) registerPaymentRoutes() {
	payments := s.engine.Group("/api/payment", webhookSecurityHeaders(), s.RateLimit(ratelimit.ClassWebhook))

	payments.POST("/paddle-webhook", s.HandlePaddleWebhook)
	payments.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}
