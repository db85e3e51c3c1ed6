// Package api serves the local HTTP API of the gpumon daemon.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/worldland/gpumon/internal/defaults"
	"github.com/worldland/gpumon/internal/logging"
)

// ServerConfig configures the HTTP listener and its rate limiter.
type ServerConfig struct {
	Address   string
	RateLimit float64
	RateBurst int
}

// Server wires TelemetryHandler routes behind middleware.
type Server struct {
	config     ServerConfig
	handler    *TelemetryHandler
	limiter    *rate.Limiter
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a server for handler. A nil logger uses slog.Default.
func NewServer(cfg ServerConfig, handler *TelemetryHandler, logger *slog.Logger) *Server {
	if cfg.Address == "" {
		cfg.Address = defaults.ServerAddress
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaults.ServerRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaults.ServerRateBurst
	}

	s := &Server{
		config:  cfg,
		handler: handler,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:  logging.OrDefault(logger),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: defaults.ServerReadHeaderTimeout,
		ReadTimeout:       defaults.ServerReadTimeout,
		WriteTimeout:      defaults.ServerWriteTimeout,
		IdleTimeout:       defaults.ServerIdleTimeout,
		ErrorLog:          logging.NewLogLogger(slog.LevelWarn),
	}
	return s
}

// Routes returns the HTTP handler with every route registered.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// System endpoints (no rate limiting)
	mux.HandleFunc("/health", s.handler.HandleHealth)
	mux.HandleFunc("/ready", s.handler.HandleReady)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/gpu/snapshot", s.withMiddleware(s.handler.HandleSnapshot))
	mux.HandleFunc("/v1/gpu/refresh", s.withMiddleware(s.handler.HandleRefresh))
	mux.HandleFunc("/v1/gpu/toggle", s.withMiddleware(s.handler.HandleToggle))
	mux.HandleFunc("/v1/config/interval", s.withMiddleware(s.handler.HandleInterval))

	return mux
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting api server", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaults.ServerShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down api server")
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
