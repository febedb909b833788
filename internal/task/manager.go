// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package task runs report generation as a single background task whose
// status callers poll. At most one task runs at a time; a second submit
// fails fast instead of queueing.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/render"
	"github.com/pdiddy/report-engine/internal/report"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Progress checkpoints owned by the manager. The orchestrator reports the
// ones in between.
const (
	ProgressStarted = 0
	ProgressReady   = 10
	ProgressDone    = 100
)

var (
	// ErrAlreadyRunning is matched by *AlreadyRunningError.
	ErrAlreadyRunning = errors.New("a report task is already running")

	// ErrNotFound is returned for ids that are not the tracked task.
	ErrNotFound = errors.New("task not found")

	// ErrNotCompleted is returned when a result is requested early.
	ErrNotCompleted = errors.New("task has not completed")

	// ErrNoExporter is returned by ExportPDF when no exporter is configured.
	ErrNoExporter = errors.New("pdf export is not configured")
)

// AlreadyRunningError carries the task that blocked a submit.
type AlreadyRunningError struct {
	Current types.TaskSnapshot
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("%s: %s (%d%%)", ErrAlreadyRunning, e.Current.TaskID, e.Current.Progress)
}

// Is reports whether target is ErrAlreadyRunning.
func (e *AlreadyRunningError) Is(target error) bool { return target == ErrAlreadyRunning }

// Runner is the orchestration body.
type Runner interface {
	Run(ctx context.Context, q report.Query, progress report.Progress) (*report.Result, error)
}

// ReadinessChecker gates submits on upstream inputs.
type ReadinessChecker interface {
	Require() (types.ReadinessResult, error)
}

// Exporter renders a completed run to PDF.
type Exporter interface {
	Export(ctx context.Context, a types.Artifacts, title string) (render.Exported, error)
}

// Hook runs after a successful orchestration, before the task is marked
// Completed. Hook errors are logged and do not fail the task.
type Hook func(ctx context.Context, res *report.Result) error

// Observer receives task outcomes and progress.
type Observer interface {
	ObserveTask(status types.TaskStatus, elapsed time.Duration)
	ObserveProgress(pct int)
}

// Request is one submit.
type Request struct {
	Query          string
	Family         string
	CustomTemplate string

	// SkipGate runs without a readiness check.
	SkipGate bool
}

// Manager owns the current task slot.
type Manager struct {
	runner     Runner
	gate       ReadinessChecker
	exporter   Exporter
	autoExport bool
	hooks      []Hook
	onSubmit   []func()
	logger     *zap.Logger
	observer   Observer
	newID      func() string
	now        func() time.Time

	mu      sync.Mutex
	current *types.ReportTask
	result  *report.Result
	cancel  context.CancelFunc
	gen     uint64
	done    chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithGate sets the readiness checker consulted by Submit.
func WithGate(g ReadinessChecker) Option { return func(m *Manager) { m.gate = g } }

// WithExporter sets the PDF exporter. With auto set, every successful run
// is exported before it completes.
func WithExporter(e Exporter, auto bool) Option {
	return func(m *Manager) { m.exporter, m.autoExport = e, auto }
}

// WithHooks appends post-run hooks.
func WithHooks(h ...Hook) Option { return func(m *Manager) { m.hooks = append(m.hooks, h...) } }

// WithSubmitHook adds a func called on every accepted submit, before the run
// starts.
func WithSubmitHook(f func()) Option {
	return func(m *Manager) { m.onSubmit = append(m.onSubmit, f) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithObserver sets the receiver of task and progress events.
func WithObserver(o Observer) Option { return func(m *Manager) { m.observer = o } }

// WithIDGenerator replaces the task id generator.
func WithIDGenerator(f func() string) Option { return func(m *Manager) { m.newID = f } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager returns a Manager that runs runner.
func NewManager(runner Runner, opts ...Option) *Manager {
	m := &Manager{
		runner: runner,
		logger: zap.NewNop(),
		newID:  NewID,
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewID returns "report_" followed by a time-ordered UUID.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "report_" + id.String()
}

// Submit starts a task for req. It fails with *AlreadyRunningError while a
// task is pending or running, and with *gate.NotReadyError when inputs are
// not ready. A terminal task in the slot is superseded.
func (m *Manager) Submit(req Request) (types.TaskSnapshot, error) {
	if err := m.checkIdle(); err != nil {
		return types.TaskSnapshot{}, err
	}

	var inputs *types.ReadinessResult
	if m.gate != nil && !req.SkipGate {
		res, err := m.gate.Require()
		if err != nil {
			return types.TaskSnapshot{}, err
		}
		inputs = &res
	}

	m.mu.Lock()
	if err := m.idleLocked(); err != nil {
		m.mu.Unlock()
		return types.TaskSnapshot{}, err
	}
	now := m.now()
	t := &types.ReportTask{
		ID:             m.newID(),
		Query:          req.Query,
		Family:         req.Family,
		CustomTemplate: req.CustomTemplate,
		Status:         types.TaskPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.gen++
	gen := m.gen
	done := make(chan struct{})
	m.current, m.result, m.cancel, m.done = t, nil, cancel, done
	snap := t.Snapshot()
	m.mu.Unlock()

	for _, f := range m.onSubmit {
		f()
	}

	q := report.Query{
		ID:             t.ID,
		Text:           req.Query,
		Family:         req.Family,
		CustomTemplate: req.CustomTemplate,
		Inputs:         inputs,
	}
	m.logger.Info("report task submitted", zap.String("task_id", t.ID), zap.String("query", req.Query))
	go m.run(ctx, gen, q, done)
	return snap, nil
}

func (m *Manager) checkIdle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idleLocked()
}

func (m *Manager) idleLocked() error {
	if m.current != nil && !m.current.Status.Terminal() {
		return &AlreadyRunningError{Current: m.current.Snapshot()}
	}
	return nil
}

func (m *Manager) run(ctx context.Context, gen uint64, q report.Query, done chan struct{}) {
	defer close(done)
	start := m.now()
	log := m.logger.With(zap.String("task_id", q.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("report task panicked", zap.Any("panic", r), zap.Stack("stack"))
			m.fail(gen, fmt.Errorf("internal error: %v", r), start)
		}
	}()

	m.update(gen, func(t *types.ReportTask) {
		t.Status = types.TaskRunning
		t.Progress = ProgressStarted
		t.Stage = "running"
	})
	m.setProgress(gen, ProgressReady, "inputs ready")

	res, err := m.runner.Run(ctx, q, func(pct int, stage string) {
		m.setProgress(gen, pct, stage)
	})
	if err != nil {
		m.fail(gen, err, start)
		return
	}

	m.mu.Lock()
	owned := m.ownsLocked(gen)
	m.mu.Unlock()
	if !owned {
		log.Info("discarding result of a disowned run")
		return
	}

	if m.exporter != nil && m.autoExport {
		if out, err := m.exporter.Export(ctx, res.Artifacts, q.Text); err != nil {
			log.Warn("automatic pdf export failed", zap.Error(err))
		} else {
			res.Artifacts.PDF = out.Name
		}
	}
	for _, h := range m.hooks {
		if err := h(ctx, res); err != nil {
			log.Warn("post-run hook failed", zap.Error(err))
		}
	}

	m.mu.Lock()
	if !m.ownsLocked(gen) {
		m.mu.Unlock()
		log.Info("discarding result of a disowned run")
		return
	}
	t := m.current
	t.Status = types.TaskCompleted
	t.Progress = ProgressDone
	t.Stage = "completed"
	t.Document = res.Document
	t.Format = res.Format
	a := res.Artifacts
	t.Artifacts = &a
	t.UpdatedAt = m.now()
	m.result = res
	m.mu.Unlock()

	m.observe(types.TaskCompleted, start)
	m.observeProgress(ProgressDone)
	log.Info("report task completed", zap.String("document", res.Artifacts.Document))
}

// ownsLocked reports whether gen still owns a live task.
func (m *Manager) ownsLocked(gen uint64) bool {
	return m.gen == gen && m.current != nil && !m.current.Status.Terminal()
}

func (m *Manager) update(gen uint64, f func(*types.ReportTask)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ownsLocked(gen) {
		return false
	}
	f(m.current)
	m.current.UpdatedAt = m.now()
	return true
}

// setProgress raises the task's progress to pct. Lower values are ignored.
func (m *Manager) setProgress(gen uint64, pct int, stage string) {
	raised := false
	m.update(gen, func(t *types.ReportTask) {
		if pct > t.Progress {
			t.Progress = pct
			raised = true
		}
		if stage != "" {
			t.Stage = stage
		}
	})
	if raised {
		m.observeProgress(pct)
	}
}

func (m *Manager) fail(gen uint64, err error, start time.Time) {
	status := types.TaskError
	if errors.Is(err, context.Canceled) {
		status = types.TaskCancelled
	}
	ok := m.update(gen, func(t *types.ReportTask) {
		t.Status = status
		t.ErrorMessage = err.Error()
		t.Stage = string(status)
	})
	if !ok {
		return
	}
	m.observe(status, start)
	m.logger.Error("report task failed", zap.Uint64("generation", gen), zap.Error(err))
}

func (m *Manager) observe(status types.TaskStatus, start time.Time) {
	if m.observer != nil {
		m.observer.ObserveTask(status, m.now().Sub(start))
	}
}

func (m *Manager) observeProgress(pct int) {
	if m.observer != nil {
		m.observer.ObserveProgress(pct)
	}
}

// Status returns the snapshot of task id. An id that is not tracked yields
// a synthesized completed snapshot, so pollers of a cleared task stop.
func (m *Manager) Status(id string) types.TaskSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.ID == id {
		return m.current.Snapshot()
	}
	return types.TaskSnapshot{
		TaskID:      id,
		Status:      types.TaskCompleted,
		Progress:    ProgressDone,
		HasResult:   true,
		Synthesized: true,
	}
}

// Current returns the tracked task, if any.
func (m *Manager) Current() (types.TaskSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return types.TaskSnapshot{}, false
	}
	return m.current.Snapshot(), true
}

// Cancel stops tracking task id. A pending or running task is marked
// Cancelled and its context cancelled; in-flight calls finish on their own
// and their results are dropped. A finished task is released from the slot.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.ID != id {
		return ErrNotFound
	}
	if m.current.Status.Terminal() {
		m.current, m.result = nil, nil
		return nil
	}
	m.cancelLocked("cancelled by user")
	return nil
}

// cancelLocked marks the live task Cancelled with reason and cancels its
// context. m.mu must be held.
func (m *Manager) cancelLocked(reason string) {
	t := m.current
	t.Status = types.TaskCancelled
	t.Stage = string(types.TaskCancelled)
	t.ErrorMessage = reason
	t.UpdatedAt = m.now()
	if m.cancel != nil {
		m.cancel()
	}
	m.logger.Info("report task cancelled", zap.String("task_id", t.ID), zap.String("reason", reason))
	if m.observer != nil {
		m.observer.ObserveTask(types.TaskCancelled, t.UpdatedAt.Sub(t.CreatedAt))
	}
}

// Result returns the full result of task id once it has completed.
func (m *Manager) Result(id string) (*report.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.ID != id {
		return nil, ErrNotFound
	}
	if m.current.Status != types.TaskCompleted || m.result == nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCompleted, id, m.current.Status)
	}
	return m.result, nil
}

// ExportPDF renders the completed task id to PDF and records the PDF on the
// task. Failure leaves the task Completed.
func (m *Manager) ExportPDF(ctx context.Context, id string) (render.Exported, error) {
	if m.exporter == nil {
		return render.Exported{}, ErrNoExporter
	}
	res, err := m.Result(id)
	if err != nil {
		return render.Exported{}, err
	}
	m.mu.Lock()
	artifacts, query := res.Artifacts, res.State.Query
	m.mu.Unlock()

	out, err := m.exporter.Export(ctx, artifacts, query)
	if err != nil {
		m.logger.Warn("pdf export failed", zap.String("task_id", id), zap.Error(err))
		return render.Exported{}, err
	}

	m.mu.Lock()
	if m.current != nil && m.current.ID == id && m.current.Artifacts != nil {
		m.current.Artifacts.PDF = out.Name
		res.Artifacts.PDF = out.Name
	}
	m.mu.Unlock()
	return out, nil
}

// Wait blocks until the goroutine of task id has exited or ctx is done.
// Unknown ids return immediately.
func (m *Manager) Wait(ctx context.Context, id string) error {
	m.mu.Lock()
	var done chan struct{}
	if m.current != nil && m.current.ID == id {
		done = m.done
	}
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels the running task, if any, and waits for its goroutine.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	if m.current != nil && !m.current.Status.Terminal() {
		m.cancelLocked("shutting down")
	}
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
