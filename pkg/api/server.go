// Package api serves the dapper REST API: health probes, Prometheus metrics
// and session login for web front ends.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/marmos91/dapper/internal/logger"
)

// Server is the API HTTP server. It satisfies adapter.Adapter so the runtime
// manages it like the protocol servers.
type Server struct {
	server *http.Server
	config Config

	mu       sync.Mutex
	listener net.Listener

	ready     chan struct{}
	readyOnce sync.Once

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewServer creates a stopped API server.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid API config: %w", err)
	}
	if deps.Tree == nil || deps.Authn == nil || deps.Sessions == nil || deps.Tokens == nil {
		return nil, errors.New("invalid API config: tree, authenticator, sessions and tokens are required")
	}

	return &Server{
		server: &http.Server{
			Handler:      NewRouter(config.Cookie, deps),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
		ready:  make(chan struct{}),
	}, nil
}

func (s *Server) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Serve listens and serves until ctx is cancelled, then shuts down within
// the configured timeout.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.markReady()
		return fmt.Errorf("API server listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.markReady()

	logger.Info("API server listening", logger.KeyListenAddr, ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// ctx is already cancelled; shut down on a fresh deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop shuts the server down gracefully. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")
		if err := s.server.Shutdown(ctx); err != nil {
			s.shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", logger.Err(err))
			return
		}
		logger.Info("API server stopped gracefully")
	})
	return s.shutdownErr
}

// Addr blocks until Serve has bound its listener and returns its address,
// or "" when binding failed.
func (s *Server) Addr() string {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler returns the router, for tests that use httptest directly.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) Protocol() string { return "API" }

func (s *Server) Port() int { return s.config.Port }
