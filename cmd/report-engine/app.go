// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/gate"
	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/internal/metrics"
	"github.com/pdiddy/report-engine/internal/render"
	"github.com/pdiddy/report-engine/internal/report"
	"github.com/pdiddy/report-engine/internal/store"
	"github.com/pdiddy/report-engine/internal/task"
	"github.com/pdiddy/report-engine/internal/tools"
	"github.com/pdiddy/report-engine/pkg/types"
)

// app holds the wired services shared by serve and generate.
type app struct {
	registry *prometheus.Registry
	metrics  *metrics.Collectors
	store    *store.FSStore
	gate     *gate.Gate
	db       *tools.OpinionDB
	exporter *render.Exporter
	tasks    *task.Manager
}

// newExporter builds the renderer chain and the exporter writing next to
// documents in blobs.
func newExporter(blobs store.BlobStore, obs render.ExportObserver) (*render.Exporter, error) {
	chain, err := render.NewChain(cfg.Render, logger)
	if err != nil {
		return nil, err
	}
	chain.Observer = obs
	return &render.Exporter{Chain: chain, Store: blobs, Logger: logger}, nil
}

// newApp wires the LLM client, search tools, orchestrator, export chain and
// task manager from cfg.
func newApp(ctx context.Context) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(a.registry)
	if err != nil {
		return nil, err
	}
	a.metrics = m

	client, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	client = llm.Observe(client, string(cfg.LLM.Provider), m)

	a.db, err = tools.OpenOpinionDB(cfg.Tools.DBPath, cfg.Research.MaxSearchResults)
	if err != nil {
		return nil, err
	}
	router := tools.NewRouter(a.db, logger)
	if web := tools.NewWebSearch(cfg.Tools.WebSearch); web != nil {
		for tool, backend := range cfg.Tools.Routes {
			if backend == "web" {
				router.Route(types.ToolName(tool), web)
			}
		}
	} else if len(cfg.Tools.Routes) > 0 {
		logger.Warn("tools.routes names web tools but tools.web_search.endpoint is empty")
	}
	router.WithSentiment(&tools.Sentiment{LLM: client, Source: a.db})

	a.store, err = store.NewFSStore(cfg.Report.OutputDir)
	if err != nil {
		a.db.Close()
		return nil, err
	}

	orch := report.New(cfg, client, tools.Observe(router, m), a.store, logger.Named("report"))
	orch.Observer = m

	a.exporter, err = newExporter(a.store, m)
	if err != nil {
		a.db.Close()
		return nil, err
	}

	a.gate = gate.New(cfg.Gate)
	if _, err := a.gate.InitializeBaseline(); err != nil {
		a.db.Close()
		return nil, fmt.Errorf("initializing baseline: %w", err)
	}

	opts := []task.Option{
		task.WithLogger(logger.Named("task")),
		task.WithObserver(m),
		task.WithExporter(a.exporter, cfg.Render.AutoExport),
		task.WithHooks(func(context.Context, *report.Result) error {
			_, err := a.gate.ResetBaseline()
			return err
		}),
	}
	if !cfg.Gate.Skip {
		opts = append(opts, task.WithGate(a.gate))
	}
	if runLog != nil {
		opts = append(opts, task.WithSubmitHook(func() {
			if err := runLog.Clear(); err != nil {
				logger.Warn("clearing run log", zap.Error(err))
			}
		}))
	}
	a.tasks = task.NewManager(orch, opts...)
	return a, nil
}

// Close stops the running task and releases the database.
func (a *app) Close(ctx context.Context) error {
	if err := a.tasks.Shutdown(ctx); err != nil {
		logger.Warn("task shutdown", zap.Error(err))
	}
	return a.db.Close()
}
