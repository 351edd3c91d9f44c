package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/observability"
)

// RouteRegistrar registers routes on an Echo instance.
type RouteRegistrar interface {
	RegisterRoutes(e *echo.Echo)
}

// ServerOptions configures Server.
type ServerOptions struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string
	SlowRequest time.Duration
}

// Server wraps an Echo HTTP server.
type Server struct {
	echo *echo.Echo
	opts ServerOptions
	log  *logger.Logger
}

// NewServer creates a server with recovery, logging and metrics middleware.
func NewServer(h RouteRegistrar, opts ServerOptions, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	log = log.With(logger.String("component", "http"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = opts.ReadTimeout
	e.Server.WriteTimeout = opts.WriteTimeout

	e.Use(Recover(log))
	e.Use(Metrics())
	e.Use(RequestLogging(log, opts.SlowRequest))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.MetricsPath != "" {
		e.GET(opts.MetricsPath, echo.WrapHandler(observability.Handler()))
	}
	if h != nil {
		h.RegisterRoutes(e)
	}

	return &Server{echo: e, opts: opts, log: log}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logger.String("addr", s.opts.Addr))
		if err := s.echo.Start(s.opts.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
