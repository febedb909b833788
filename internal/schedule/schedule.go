// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package schedule submits a report query on a cron schedule.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/gate"
	"github.com/pdiddy/report-engine/internal/task"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Submitter accepts report requests.
type Submitter interface {
	Submit(req task.Request) (types.TaskSnapshot, error)
}

// Scheduler fires Query through Submitter at every tick of Expr.
type Scheduler struct {
	Expr      *cronexpr.Expression
	Query     string
	Family    string
	Submitter Submitter
	Logger    *zap.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New parses cfg.Cron and returns a Scheduler for it.
func New(cfg types.ScheduleConfig, sub Submitter, logger *zap.Logger) (*Scheduler, error) {
	expr, err := cronexpr.Parse(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", cfg.Cron, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Expr:      expr,
		Query:     cfg.Query,
		Family:    cfg.Family,
		Submitter: sub,
		Logger:    logger,
	}, nil
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Scheduler) wait(d time.Duration) <-chan time.Time {
	if s.after != nil {
		return s.after(d)
	}
	return time.After(d)
}

// Next returns the first fire time after now, or the zero time when the
// expression never fires again.
func (s *Scheduler) Next(now time.Time) time.Time {
	return s.Expr.Next(now)
}

// Run fires until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		now := s.clock()
		next := s.Next(now)
		if next.IsZero() {
			s.Logger.Warn("schedule has no future fire time, stopping")
			return nil
		}
		s.Logger.Debug("next scheduled report", zap.Time("at", next))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wait(next.Sub(now)):
		}
		s.Fire()
	}
}

// Fire submits the scheduled query once. A running task or unready inputs
// skip the tick.
func (s *Scheduler) Fire() {
	snap, err := s.Submitter.Submit(task.Request{Query: s.Query, Family: s.Family})
	switch {
	case err == nil:
		s.Logger.Info("scheduled report submitted", zap.String("task_id", snap.TaskID))
	case errors.Is(err, task.ErrAlreadyRunning):
		s.Logger.Info("skipping scheduled report, a task is running")
	case errors.Is(err, gate.ErrNotReady):
		s.Logger.Info("skipping scheduled report, inputs not ready", zap.Error(err))
	default:
		s.Logger.Error("scheduled submit failed", zap.Error(err))
	}
}
