// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/report-engine/internal/schedule"
	"github.com/pdiddy/report-engine/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control surface",
	Long: `Serve exposes report submission, progress polling, cancellation, result
download and PDF export over HTTP. With schedule.cron set, reports are also
submitted on that schedule.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides server.listen)")
	serveCmd.Flags().Bool("watch", true, "log when upstream inputs become ready")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = a.Close(shutdownCtx)
	}()

	listen := cfg.Server.Listen
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		listen = v
	}

	scfg := server.Config{
		Tasks:        a.tasks,
		Gate:         a.gate,
		Store:        a.store,
		TemplateDir:  cfg.Report.TemplateDir,
		Gatherer:     a.registry,
		AllowOrigins: cfg.Server.AllowOrigins,
		JWTSecret:    []byte(cfg.Server.JWTSecret),
		Logger:       logger.Named("http"),
	}
	if runLog != nil {
		scfg.RunLog = runLog
	}
	srv := server.New(scfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, listen) })

	if watch, _ := cmd.Flags().GetBool("watch"); watch && !cfg.Gate.Skip {
		g.Go(func() error {
			res, err := a.gate.Wait(gctx, 10*time.Second, logger.Named("gate"))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				logger.Warn("readiness watch stopped", zap.Error(err))
				return nil
			}
			logger.Info("upstream inputs ready", zap.Any("new_files", res.NewFilesFound))
			return nil
		})
	}

	if cfg.Schedule.Cron != "" {
		sched, err := schedule.New(cfg.Schedule, a.tasks, logger.Named("schedule"))
		if err != nil {
			return err
		}
		logger.Info("report schedule enabled",
			zap.String("cron", cfg.Schedule.Cron),
			zap.Time("next", sched.Next(time.Now())))
		g.Go(func() error {
			if err := sched.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
