// Package httpapi exposes the read-only operational surface of the curator:
// health, configured sectors, run bookkeeping, and the QA trail.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/curator/internal/config"
	"horse.fit/curator/internal/db"
	"horse.fit/curator/internal/warehouse"
)

// Options holds the server tunables.
type Options struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	pool   *db.Pool
	logger zerolog.Logger
	opts   Options
}

func NewServer(pool *db.Pool, logger zerolog.Logger, opts Options) *Server {
	if strings.TrimSpace(opts.ListenAddr) == "" {
		opts.ListenAddr = ":8087"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		pool:   pool,
		logger: logger,
		opts:   opts,
	}
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Info()
			if v.Error != nil {
				event = s.logger.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/sectors", s.handleSectors)
	api.GET("/sectors/:sector/runs", s.handleRuns)
	api.GET("/sectors/:sector/qa/filtered", s.handleFilteredQA)

	httpServer := &http.Server{
		Addr:         s.opts.ListenAddr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", s.opts.ListenAddr).Msg("curator api started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("curator api stopped")
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	var one int
	if err := s.pool.QueryRow(c.Request().Context(), "SELECT 1").Scan(&one); err != nil {
		s.logger.Error().Err(err).Msg("health check query failed")
		return internalError(c, "database unreachable")
	}
	return success(c, map[string]string{"status": "ok"})
}

func (s *Server) handleSectors(c echo.Context) error {
	names, err := config.KnownSectors()
	if err != nil {
		s.logger.Error().Err(err).Msg("sector registry unavailable")
		return internalError(c, "sector registry unavailable")
	}
	return success(c, map[string]any{"sectors": names})
}

func (s *Server) handleRuns(c echo.Context) error {
	store, err := s.sectorStore(c)
	if err != nil {
		return failNotFound(c, err.Error())
	}

	runs, err := store.RecentRuns(c.Request().Context(), queryLimit(c, 20))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list runs")
		return internalError(c, "failed to list runs")
	}
	if runs == nil {
		runs = []warehouse.RunRecord{}
	}
	return success(c, map[string]any{"runs": runs})
}

func (s *Server) handleFilteredQA(c echo.Context) error {
	store, err := s.sectorStore(c)
	if err != nil {
		return failNotFound(c, err.Error())
	}

	trail, err := store.FilteredQATrail(c.Request().Context(), queryLimit(c, 200))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read qa trail")
		return internalError(c, "failed to read qa trail")
	}
	if trail == nil {
		trail = []warehouse.QARow{}
	}
	return success(c, map[string]any{"filtered": trail})
}

func (s *Server) sectorStore(c echo.Context) (*warehouse.Postgres, error) {
	testRun := false
	if raw := c.QueryParam("test_run"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err == nil {
			testRun = parsed
		}
	}

	res, err := config.ResolveSector(c.Param("sector"), testRun)
	if err != nil {
		return nil, err
	}
	return warehouse.NewPostgres(s.pool, res, s.logger), nil
}

func queryLimit(c echo.Context, fallback int) int {
	raw := strings.TrimSpace(c.QueryParam("limit"))
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		_ = internalError(c, message)
		return
	}
	_ = fail(c, status, message, nil)
}
