package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/gommon/log"
)

const defaultShutdownTimeout = 10 * time.Second

// Config configures an HTTPServer.
type Config struct {
	Address         string
	Handler         http.Handler
	ShutdownTimeout time.Duration
	Logger          *log.Logger
}

// HTTPServer owns a TCP listener and drains in-flight requests on shutdown.
type HTTPServer struct {
	address         string
	handler         http.Handler
	logger          *log.Logger
	shutdownTimeout time.Duration

	ready chan struct{}
	addr  net.Addr
}

func New(cfg Config) (*HTTPServer, error) {
	if cfg.Address == "" {
		return nil, errors.New("server: address required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("server: handler required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("server: logger required")
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return &HTTPServer{
		address:         cfg.Address,
		handler:         cfg.Handler,
		logger:          cfg.Logger,
		shutdownTimeout: timeout,
		ready:           make(chan struct{}),
	}, nil
}

// Ready is closed once the listener is bound.
func (s *HTTPServer) Ready() <-chan struct{} { return s.ready }

// Addr is the bound address. Valid after Ready.
func (s *HTTPServer) Addr() net.Addr { return s.addr }

// Serve blocks until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Infof("[Server] listening on %s", s.addr)

	serveDone := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Infof("[Server] shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Infof("[Server] stopped")
	return nil
}
