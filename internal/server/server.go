// Package server собирает HTTP-поверхность сервера синхронизации:
// маршруты, middleware, отдельный листенер метрик и graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iudanet/chatsync/internal/metrics"
	"github.com/iudanet/chatsync/internal/server/handlers"
	"github.com/iudanet/chatsync/internal/server/middleware"
)

const (
	DefaultListenAddr      = ":8080"
	DefaultMetricsAddr     = ":2112"
	DefaultRateLimit       = 120
	DefaultShutdownTimeout = 10 * time.Second
)

// Config параметры HTTP сервера
type Config struct {
	// Registry для HTTP метрик, по умолчанию prometheus.DefaultRegisterer
	Registry        prometheus.Registerer
	ListenAddr      string
	MetricsAddr     string // пустая строка отключает листенер метрик
	Version         string
	RateLimit       int // запросов в минуту на устройство, 0 отключает ограничение
	ShutdownTimeout time.Duration
}

// Server HTTP сервер реплики
type Server struct {
	logger  *slog.Logger
	limiter *middleware.RateLimiter
	handler http.Handler
	cfg     Config
}

// New создает сервер поверх сервиса синхронизации
func New(cfg Config, service handlers.SyncService, logger *slog.Logger) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	s := &Server{cfg: cfg, logger: logger}
	if cfg.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit, time.Minute, logger)
	}
	s.handler = s.routes(service)
	return s
}

func (s *Server) routes(service handlers.SyncService) http.Handler {
	health := handlers.NewHealthHandler(s.logger, service, s.cfg.Version)
	sync := handlers.NewSyncHandler(s.logger, service)
	instrument := middleware.Metrics(s.cfg.Registry)

	mux := http.NewServeMux()
	mux.Handle("GET /health", instrument("/health", http.HandlerFunc(health.Health)))
	mux.Handle("GET /stats", instrument("/stats", http.HandlerFunc(sync.Stats)))
	mux.Handle("GET /sync/pull", instrument("/sync/pull", http.HandlerFunc(sync.Pull)))
	mux.Handle("POST /sync/push", instrument("/sync/push", http.HandlerFunc(sync.Push)))
	mux.Handle("POST /sync", instrument("/sync", http.HandlerFunc(sync.Sync)))

	// Порядок: recovery -> logging -> rate limit -> mux
	var h http.Handler = mux
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = middleware.Logging(s.logger, "/health")(h)
	return middleware.Recovery(s.logger)(h)
}

// Handler корневой обработчик со всеми middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run слушает cfg.ListenAddr до отмены ctx, затем корректно останавливается
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve обслуживает готовый листенер до отмены ctx
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.limiter != nil {
		defer s.limiter.Stop()
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	var metricsSrv *http.Server
	if s.cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(s.cfg.MetricsAddr)
		go func() {
			s.logger.Info("Metrics listener started", "addr", s.cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("Metrics listener failed", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server started", "addr", ln.Addr().String(), "version", s.cfg.Version)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if metricsSrv != nil {
			_ = metricsSrv.Close()
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server", "timeout", s.cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Metrics listener shutdown error", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}
