package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// shutdownTimeout bounds how long in-flight requests get to finish.
const shutdownTimeout = 10 * time.Second

// Service runs an http.Server until its context ends. It implements
// suture.Service. Request contexts derive from the serve context, so
// cancelling it also ends every open stream.
type Service struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger

	mu       sync.Mutex
	boundTo  net.Addr
	listened chan struct{}
}

// NewService returns a Service that will listen on addr.
func NewService(addr string, h http.Handler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{addr: addr, handler: h, logger: logger, listened: make(chan struct{})}
}

// Addr returns the bound listener address once Serve is listening, or nil.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundTo
}

// Listening is closed the first time Serve binds its listener.
func (s *Service) Listening() <-chan struct{} { return s.listened }

func (s *Service) String() string { return "http-server" }

// Serve listens and serves until ctx is cancelled, then shuts down
// gracefully and returns ctx.Err().
func (s *Service) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	s.mu.Lock()
	first := s.boundTo == nil
	s.boundTo = lis.Addr()
	s.mu.Unlock()
	if first {
		close(s.listened)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "err", err)
	}
	s.logger.Info("HTTP server stopped")
	return ctx.Err()
}
