// Package server adapts the tool dispatcher to its transports: a chi
// HTTP surface with bearer authentication and SSE delivery for remote
// callers, and an MCP stdio bridge for local agents.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Aman-CERP/amanrag/internal/auth"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/tools"
)

// DefaultKeepalive is the SSE comment interval that keeps idle
// connections open through proxies.
const DefaultKeepalive = 30 * time.Second

// Server is the HTTP transport around the dispatcher.
type Server struct {
	cfg       *config.Config
	registry  *tools.Registry
	auth      *auth.Manager
	hub       *sseHub
	keepalive time.Duration
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithKeepalive overrides the SSE keepalive interval.
func WithKeepalive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepalive = d
		}
	}
}

// New creates the HTTP transport. The auth manager may be nil only in
// dev mode, where every request runs as a synthetic admin.
func New(cfg *config.Config, registry *tools.Registry, authMgr *auth.Manager, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindInternal, "server requires a config")
	}
	if registry == nil {
		return nil, errors.New(errors.KindInternal, "server requires a tool registry")
	}
	if authMgr == nil && !cfg.Server.DevMode {
		return nil, errors.New(errors.KindInternal, "server requires an auth manager outside dev mode")
	}
	s := &Server{
		cfg:       cfg,
		registry:  registry,
		auth:      authMgr,
		hub:       newSSEHub(),
		keepalive: DefaultKeepalive,
		logger:    slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http transport listening", "addr", addr, "dev_mode", s.cfg.Server.DevMode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(errors.KindInternal, "shutdown http transport", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return errors.Wrap(errors.KindInternal, "http transport", err)
		}
		return nil
	}
}

// statusForKind maps envelope error codes to HTTP statuses.
func statusForKind(code string) int {
	switch errors.Kind(code) {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindUnauthorized:
		return http.StatusUnauthorized
	case errors.KindForbidden:
		return http.StatusForbidden
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindConflict:
		return http.StatusConflict
	case errors.KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	case errors.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
