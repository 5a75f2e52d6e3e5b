// Package server provides the HTTP server hosting the auth gateway routes.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/codemurf/auth-gateway/internal/auth"
	"github.com/codemurf/auth-gateway/internal/config"
	"github.com/codemurf/auth-gateway/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Server hosts the login flow over HTTP with graceful shutdown.
type Server struct {
	config *config.Config
	auth   *auth.Service
}

// NewServer creates a new server instance with the provided configuration.
func NewServer(cfg *config.Config, authService *auth.Service) *Server {
	if cfg == nil {
		logger.Fatal("Config cannot be nil")
	}
	if authService == nil {
		logger.Fatal("Auth service cannot be nil")
	}

	return &Server{
		config: cfg,
		auth:   authService,
	}
}

// Handler builds the full route tree wrapped with the CORS policy.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.auth.RegisterRoutes(mux)
	return s.auth.WrapWithCors(mux)
}

// Start runs the server until ctx is cancelled, then shuts down gracefully
// within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errChan := make(chan error, 1)

	go func() {
		logger.Info("Starting server",
			zap.String("address", addr),
			zap.String("version", config.GetVersionInfo()),
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server",
			zap.Duration("timeout", s.config.Server.ShutdownTimeout),
		)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil

	case err := <-errChan:
		return err
	}
}

// Module provides the HTTP server dependencies
var Module = fx.Module("server",
	fx.Provide(
		NewServer,
	),
)
