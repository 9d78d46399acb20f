// Package http содержит внешний HTTP-интерфейс: заказы, flash-sale и
// административные операции кампаний.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
	"github.com/vladislavdragonenkov/ecom/internal/health"
	"github.com/vladislavdragonenkov/ecom/internal/service/saga"
	"github.com/vladislavdragonenkov/ecom/internal/service/seckill"
)

// ServerOptions задаёт зависимости HTTP-сервера.
type ServerOptions struct {
	Addr         string
	Orchestrator saga.Orchestrator
	Seckill      *seckill.Engine
	Outbox       domain.OutboxRepository
	Health       *health.Handler
	AdminKey     string
	Logger       *log.Entry
}

// Server — HTTP-сервер сервиса.
type Server struct {
	srv      *http.Server
	engine   *gin.Engine
	orders   saga.Orchestrator
	seckill  *seckill.Engine
	outbox   domain.OutboxRepository
	adminKey string
	logger   *log.Entry
}

// NewServer создаёт сервер и регистрирует маршруты.
func NewServer(opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "http-server")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(opts.Logger))

	s := &Server{
		engine:   engine,
		orders:   opts.Orchestrator,
		seckill:  opts.Seckill,
		outbox:   opts.Outbox,
		adminKey: opts.AdminKey,
		logger:   opts.Logger,
	}

	engine.POST("/orders", s.createOrder)
	engine.GET("/orders/:id", s.getOrder)
	engine.GET("/orders/:id/timeline", s.getOrderTimeline)

	engine.POST("/seckill/buy", s.seckillBuy)
	engine.GET("/seckill/status/:productId", s.seckillStatus)

	admin := engine.Group("/admin", s.requireAdminKey)
	admin.POST("/seckill/init", s.seckillInit)
	admin.POST("/seckill/release", s.seckillRelease)
	admin.GET("/outbox/retryables", s.outboxRetryables)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if opts.Health != nil {
		engine.GET("/healthz", gin.WrapH(opts.Health))
		engine.GET("/readyz", gin.WrapF(opts.Health.ReadinessHandler))
	}
	engine.GET("/livez", gin.WrapF(health.LivenessHandler))

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler возвращает корневой http.Handler. Используется в тестах.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run блокирует до ошибки listener-а.
func (s *Server) Run() error {
	s.logger.WithField("addr", s.srv.Addr).Info("http server started")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown останавливает сервер, дожидаясь активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("http request")
	}
}

func (s *Server) requireAdminKey(c *gin.Context) {
	if s.adminKey == "" || c.GetHeader("X-Admin-Key") != s.adminKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}
