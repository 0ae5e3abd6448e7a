// Package server hosts the HTTP surface: health, Prometheus metrics and
// the webhook endpoints of push-based channels.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"korabot/internal/metrics"
)

const shutdownGrace = 5 * time.Second

// Mountable is implemented by channels that receive events over HTTP.
type Mountable interface {
	Register(r gin.IRoutes)
}

// HealthFunc reports whether a dependency is usable.
type HealthFunc func(ctx context.Context) error

type Config struct {
	Addr     string
	Metrics  bool
	Channels []string
	Health   map[string]HealthFunc
	Mounts   []Mountable
	Logger   *slog.Logger
}

type Server struct {
	cfg    Config
	engine *gin.Engine
	server *http.Server
	logger *slog.Logger
}

func New(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(cfg.Logger), securityHeaders())

	s := &Server{cfg: cfg, engine: engine, logger: cfg.Logger}
	engine.GET("/healthz", s.handleHealth)
	if cfg.Metrics {
		engine.GET("/metrics", gin.WrapF(metrics.Collector.Handler()))
	}
	for _, m := range cfg.Mounts {
		m.Register(engine)
	}
	return s
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", "err", err)
		}
	}()

	s.logger.Info("http server started", "addr", s.cfg.Addr, "metrics", s.cfg.Metrics)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	status := http.StatusOK
	for name, fn := range s.cfg.Health {
		if err := fn(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":   state,
		"uptime":   metrics.Collector.Uptime().Round(time.Second).String(),
		"channels": s.cfg.Channels,
		"checks":   checks,
	})
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Next()
	}
}
