// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server is the HTTP control surface of the report engine: submit,
// poll, cancel, fetch and export report tasks.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/render"
	"github.com/pdiddy/report-engine/internal/report"
	"github.com/pdiddy/report-engine/internal/store"
	"github.com/pdiddy/report-engine/internal/task"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Tasks is the task lifecycle API the server drives.
type Tasks interface {
	Submit(req task.Request) (types.TaskSnapshot, error)
	Status(id string) types.TaskSnapshot
	Current() (types.TaskSnapshot, bool)
	Cancel(id string) error
	Result(id string) (*report.Result, error)
	ExportPDF(ctx context.Context, id string) (render.Exported, error)
}

// Readiness reports and resets the input baseline.
type Readiness interface {
	CheckReady() (types.ReadinessResult, error)
	ResetBaseline() (types.FileBaseline, error)
}

// RunLog is the log file shown by /log.
type RunLog interface {
	Read(maxBytes int64) (string, error)
	Clear() error
}

// Config wires the server's collaborators. Gate, RunLog and Gatherer may be
// nil; their routes then report the feature as unavailable.
type Config struct {
	Tasks        Tasks
	Gate         Readiness
	Store        store.BlobStore
	TemplateDir  string
	DefaultQuery string
	RunLog       RunLog
	Gatherer     prometheus.Gatherer
	AllowOrigins []string
	JWTSecret    []byte
	Logger       *zap.Logger
}

// Server serves the report API.
type Server struct {
	cfg  Config
	echo *echo.Echo
	log  *zap.Logger
}

// New builds the echo instance and registers every route.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DefaultQuery == "" {
		cfg.DefaultQuery = "Public opinion analysis report"
	}
	s := &Server{cfg: cfg, echo: echo.New(), log: cfg.Logger}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.Error(v.Error))
			return nil
		},
	}))
	if len(cfg.AllowOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.AllowOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		}))
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) routes() {
	e := s.echo
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if s.cfg.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api/report")
	var guard []echo.MiddlewareFunc
	if len(s.cfg.JWTSecret) > 0 {
		guard = append(guard, RequireJWT(s.cfg.JWTSecret))
	}

	api.GET("/status", s.status)
	api.GET("/progress/:id", s.progress)
	api.GET("/result/:id", s.result)
	api.GET("/result/:id/json", s.resultJSON)
	api.GET("/download/:id", s.download)
	api.GET("/pdf/:id", s.pdf)
	api.GET("/templates", s.templates)
	api.GET("/log", s.readLog)

	api.POST("/generate", s.generate, guard...)
	api.POST("/cancel/:id", s.cancel, guard...)
	api.POST("/export_pdf/:id", s.exportPDF, guard...)
	api.POST("/log/clear", s.clearLog, guard...)
	api.POST("/reset_baseline", s.resetBaseline, guard...)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errc <- s.echo.Start(addr)
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// handleError renders every error as {"success": false, "error": msg}.
func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err))
	}
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]any{"success": false, "error": msg})
	}
}
