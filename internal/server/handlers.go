// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/gate"
	"github.com/pdiddy/report-engine/internal/render"
	"github.com/pdiddy/report-engine/internal/report"
	"github.com/pdiddy/report-engine/internal/task"
	"github.com/pdiddy/report-engine/pkg/types"
)

const logTailBytes = 256 << 10

type generateRequest struct {
	Query          string `json:"query"`
	CustomTemplate string `json:"custom_template"`
	Family         string `json:"family"`
}

func (s *Server) status(c echo.Context) error {
	body := map[string]any{"success": true, "current_task": nil}
	if cur, ok := s.cfg.Tasks.Current(); ok {
		body["current_task"] = cur
	}
	if s.cfg.Gate != nil {
		res, err := s.cfg.Gate.CheckReady()
		if err != nil {
			return err
		}
		body["engines_ready"] = res.Ready
		body["missing_files"] = res.Missing
		body["new_files_found"] = res.NewFilesFound
		body["latest_files"] = res.LatestFiles
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) generate(c echo.Context) error {
	var req generateRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if strings.TrimSpace(req.Query) == "" {
		req.Query = s.cfg.DefaultQuery
	}

	snap, err := s.cfg.Tasks.Submit(task.Request{
		Query:          req.Query,
		Family:         req.Family,
		CustomTemplate: req.CustomTemplate,
	})
	var running *task.AlreadyRunningError
	var notReady *gate.NotReadyError
	switch {
	case errors.As(err, &running):
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success":      false,
			"error":        "a report task is already running",
			"current_task": running.Current,
		})
	case errors.As(err, &notReady):
		r := notReady.Result
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success":         false,
			"error":           "inputs not ready",
			"missing_files":   r.Missing,
			"baseline_counts": r.BaselineCounts,
			"current_counts":  r.CurrentCounts,
			"new_files_found": r.NewFilesFound,
		})
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"task_id": snap.TaskID,
		"message": "report generation started",
		"task":    snap,
	})
}

func (s *Server) progress(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"task":    s.cfg.Tasks.Status(c.Param("id")),
	})
}

// lookup maps task errors to HTTP errors.
func (s *Server) lookup(id string) (*report.Result, error) {
	res, err := s.cfg.Tasks.Result(id)
	switch {
	case errors.Is(err, task.ErrNotFound):
		return nil, echo.NewHTTPError(http.StatusNotFound, "task not found")
	case errors.Is(err, task.ErrNotCompleted):
		return nil, echo.NewHTTPError(http.StatusBadRequest, "report not completed")
	case err != nil:
		return nil, err
	}
	return res, nil
}

func (s *Server) result(c echo.Context) error {
	res, err := s.lookup(c.Param("id"))
	if err != nil {
		return err
	}
	if res.Format == types.FormatHTML {
		return c.HTML(http.StatusOK, res.Document)
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(res.Document))
}

func (s *Server) resultJSON(c echo.Context) error {
	id := c.Param("id")
	res, err := s.lookup(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"task_id":   id,
		"document":  res.Document,
		"format":    res.Format,
		"template":  res.Template,
		"reviewed":  res.Reviewed,
		"artifacts": res.Artifacts,
		"state":     res.State,
	})
}

func (s *Server) download(c echo.Context) error {
	res, err := s.lookup(c.Param("id"))
	if err != nil {
		return err
	}
	return s.attach(c, res.Artifacts.Document)
}

func (s *Server) pdf(c echo.Context) error {
	res, err := s.lookup(c.Param("id"))
	if err != nil {
		return err
	}
	if res.Artifacts.PDF == "" {
		return echo.NewHTTPError(http.StatusNotFound, "pdf not exported")
	}
	return s.attach(c, res.Artifacts.PDF)
}

// attach serves blob name as a download named after its task directory.
func (s *Server) attach(c echo.Context, name string) error {
	file := s.cfg.Store.Path(name)
	if file == "" {
		return echo.NewHTTPError(http.StatusNotFound, "artifact not found")
	}
	download := strings.ReplaceAll(path.Dir(name), "/", "_") + path.Ext(name)
	return c.Attachment(file, download)
}

func (s *Server) exportPDF(c echo.Context) error {
	id := c.Param("id")
	out, err := s.cfg.Tasks.ExportPDF(c.Request().Context(), id)
	var chainErr *render.ChainError
	switch {
	case errors.Is(err, task.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	case errors.Is(err, task.ErrNotCompleted):
		return echo.NewHTTPError(http.StatusBadRequest, "report not completed")
	case errors.Is(err, task.ErrNoExporter), errors.Is(err, render.ErrNoRenderer):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &chainErr):
		s.log.Warn("pdf export failed", zap.String("task_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"success":  false,
			"error":    "pdf export failed",
			"attempts": chainErr.Attempts,
		})
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"pdf_path": out.Name,
		"renderer": out.Renderer,
		"bytes":    out.Bytes,
	})
}

func (s *Server) cancel(c echo.Context) error {
	if err := s.cfg.Tasks.Cancel(c.Param("id")); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "task not found or not cancellable")
		}
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "task cancelled"})
}

func (s *Server) templates(c echo.Context) error {
	list, err := report.ListTemplates(s.cfg.TemplateDir)
	if err != nil {
		return err
	}
	if list == nil {
		list = []report.Template{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"templates":    list,
		"template_dir": s.cfg.TemplateDir,
	})
}

func (s *Server) readLog(c echo.Context) error {
	if s.cfg.RunLog == nil {
		return c.JSON(http.StatusOK, map[string]any{"success": true, "log": ""})
	}
	text, err := s.cfg.RunLog.Read(logTailBytes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "log": text})
}

func (s *Server) clearLog(c echo.Context) error {
	if s.cfg.RunLog != nil {
		if err := s.cfg.RunLog.Clear(); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "log cleared"})
}

func (s *Server) resetBaseline(c echo.Context) error {
	if s.cfg.Gate == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "readiness gate disabled")
	}
	b, err := s.cfg.Gate.ResetBaseline()
	if err != nil {
		return err
	}
	s.log.Info("baseline reset from api", zap.Int("dirs", len(b.Dirs)))
	return c.JSON(http.StatusOK, map[string]any{"success": true, "baseline": b})
}
