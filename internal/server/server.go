// Package server exposes the HTTP surface: transition webhooks, the
// recovery sweep, health, and metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/receiptor/internal/config"
	receiptservice "github.com/smallbiznis/receiptor/internal/receipt/service"
	"github.com/smallbiznis/receiptor/internal/trigger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Normalizer   *trigger.Normalizer
	Orchestrator *receiptservice.Orchestrator
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	normalizer   *trigger.Normalizer
	orchestrator *receiptservice.Orchestrator
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("server"),
		normalizer:   p.Normalizer,
		orchestrator: p.Orchestrator,
	}
}

func registerRoutes(s *Server) {
	v1 := s.engine.Group("/v1")
	{
		v1.POST("/events/order-transitions", s.HandleOrderTransition)
		v1.POST("/events/payment-transitions", s.HandlePaymentTransition)
		v1.POST("/receipts/resume", s.HandleResume)
	}
}

func run(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
