// Package server runs the keygate HTTP listener and stops the background
// components in order once it is asked to shut down.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc stops a component. It must return once ctx is done.
type ShutdownFunc func(ctx context.Context) error

// Options configures the listener.
type Options struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type hook struct {
	name string
	fn   ShutdownFunc
}

// Server serves HTTP and owns the shutdown sequence:
//
//  1. keep-alives off, then drain hooks and connection draining together
//  2. shutdown hooks, last registered first
//
// Every step shares one ShutdownTimeout deadline.
type Server struct {
	http    *http.Server
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	drains []hook
	stops  []hook
}

// New creates a Server listening on opts.Port.
func New(handler http.Handler, opts Options, logger *slog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           handler,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       2 * opts.ReadTimeout,
		},
		timeout: opts.ShutdownTimeout,
		logger:  logger,
	}
}

// OnDrain registers fn to run as shutdown begins, while connections drain.
// Components holding long-lived responses (counter streams) must end them
// here, or HTTP shutdown waits out the whole deadline.
func (s *Server) OnDrain(name string, fn ShutdownFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drains = append(s.drains, hook{name: name, fn: fn})
}

// OnShutdown registers fn to run after connections have drained.
// Workers registered first stop last.
func (s *Server) OnShutdown(name string, fn ShutdownFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops = append(s.stops, hook{name: name, fn: fn})
}

// Run serves on the configured port until SIGINT or SIGTERM.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down.
// ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", ln.Addr().String())
		serveErr <- s.http.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	}
	return s.shutdown()
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	drains := slices.Clone(s.drains)
	stops := slices.Clone(s.stops)
	s.mu.Unlock()

	s.logger.Info("draining connections", "timeout", s.timeout, "drain_hooks", len(drains))
	s.http.SetKeepAlivesEnabled(false)

	drainErrs := make([]error, len(drains))
	var wg sync.WaitGroup
	for i, h := range drains {
		wg.Add(1)
		go func() {
			defer wg.Done()
			drainErrs[i] = s.runHook(ctx, "drain", h)
		}()
	}

	errs := make([]error, 0, len(drains)+len(stops)+1)
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("connections not drained", "error", err)
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	wg.Wait()
	errs = append(errs, drainErrs...)

	s.logger.Info("stopping components", "count", len(stops))
	for _, h := range slices.Backward(stops) {
		errs = append(errs, s.runHook(ctx, "stop", h))
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("shutdown completed with errors", "error", err)
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) runHook(ctx context.Context, phase string, h hook) error {
	start := time.Now()
	if err := h.fn(ctx); err != nil {
		s.logger.Error("component shutdown failed", "phase", phase, "name", h.name, "error", err)
		return fmt.Errorf("%s: %w", h.name, err)
	}
	s.logger.Info("component stopped", "phase", phase, "name", h.name, "duration", time.Since(start))
	return nil
}
