package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/goletan/servicehost/shared/types"
	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownGrace     = 5 * time.Second
)

// Server serves the control API on the configured address.
type Server struct {
	server *http.Server
	logger *zap.Logger

	ready        chan struct{}
	addr         string
	shutdownOnce sync.Once
}

// NewServer creates a stopped server for handler.
func NewServer(cfg types.APIConfig, handler http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:              cfg.Listen,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		},
		logger: log.Named("api"),
		ready:  make(chan struct{}),
		addr:   cfg.Listen,
	}
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("API server failed to listen on %s: %w", s.server.Addr, err)
	}
	s.addr = ln.Addr().String()
	close(s.ready)
	s.logger.Info("API server listening", zap.String("addr", s.addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address once Ready is closed, the configured one before.
func (s *Server) Addr() string {
	select {
	case <-s.ready:
	default:
		return s.server.Addr
	}
	return s.addr
}

// Stop shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if err = s.server.Shutdown(ctx); err != nil {
			s.logger.Error("API server shutdown error", zap.Error(err))
			err = fmt.Errorf("API server shutdown error: %w", err)
			return
		}
		s.logger.Info("API server stopped")
	})
	return err
}
