// Package server exposes the forecaster over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"hilo-forecaster/internal/config"
	"hilo-forecaster/internal/logging"
	"hilo-forecaster/internal/rationale"
	"hilo-forecaster/internal/service"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Server wraps the echo instance serving the API.
type Server struct {
	echo   *echo.Echo
	app    *service.App
	cfg    config.ServerConfig
	lang   rationale.Lang
	logger zerolog.Logger
}

// requestValidator adapts validator to echo.Validator.
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// New creates a server for app.
func New(app *service.App, cfg config.ServerConfig, logger zerolog.Logger) *Server {
	s := &Server{
		app:    app,
		cfg:    cfg,
		lang:   rationale.ParseLang(cfg.Lang),
		logger: logging.WithComponent(logger, "server"),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.HTTPErrorHandler = s.handleError

	e.Use(s.recoverPanics())
	e.Use(s.requestID())
	e.Use(s.requestLogging())
	e.Use(s.recordMetrics())

	s.echo = e
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.app.Registry, promhttp.HandlerOpts{})))

	api := s.echo.Group("/api/v1")
	api.GET("/forecast", s.handleForecast)
	api.GET("/backtest", s.handleBacktest)
	api.GET("/risk", s.handleRisk)
	api.GET("/motif", s.handleMotif)
	api.GET("/stats", s.handleStats)
	api.GET("/stream", s.handleStream)
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.echo,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		if err := s.echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped gracefully")
	return nil
}
