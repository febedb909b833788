// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package task

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/report-engine/internal/gate"
	"github.com/pdiddy/report-engine/internal/render"
	"github.com/pdiddy/report-engine/internal/report"
	"github.com/pdiddy/report-engine/pkg/types"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose view worker starts at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type runnerFunc func(ctx context.Context, q report.Query, p report.Progress) (*report.Result, error)

func (f runnerFunc) Run(ctx context.Context, q report.Query, p report.Progress) (*report.Result, error) {
	return f(ctx, q, p)
}

func okResult(q report.Query) *report.Result {
	return &report.Result{
		Document: "# report for " + q.Text,
		Format:   types.FormatMarkdown,
		Artifacts: types.Artifacts{
			Document: q.ID + "/report.md",
			HTML:     q.ID + "/report.html",
			State:    q.ID + "/state.json",
		},
		State: types.StateSnapshot{Query: q.Text},
	}
}

func quickRunner() runnerFunc {
	return func(_ context.Context, q report.Query, p report.Progress) (*report.Result, error) {
		p(report.ProgressPlanned, "planned")
		p(report.ProgressPersisted, "persisted")
		return okResult(q), nil
	}
}

// gatedRunner blocks until release is closed. It ignores ctx unless
// honourCtx is set, like an LLM call that cannot be interrupted.
type gatedRunner struct {
	started   chan struct{}
	release   chan struct{}
	honourCtx bool
	calls     atomic.Int32
	once      sync.Once
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedRunner) Run(ctx context.Context, q report.Query, p report.Progress) (*report.Result, error) {
	g.calls.Add(1)
	p(report.ProgressPlanned, "planned")
	g.once.Do(func() { close(g.started) })
	if g.honourCtx {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		<-g.release
	}
	p(report.ProgressPersisted, "persisted")
	return okResult(q), nil
}

type seqIDs struct{ n atomic.Int32 }

func (s *seqIDs) next() string {
	return "report_" + string(rune('a'+s.n.Add(1)-1))
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []types.TaskStatus
	progress []int
}

func (r *recordingObserver) ObserveTask(s types.TaskStatus, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, s)
}

func (r *recordingObserver) ObserveProgress(pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, pct)
}

func wait(t *testing.T, m *Manager, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx, id))
}

func TestSubmit_RunsToCompletion(t *testing.T) {
	obs := &recordingObserver{}
	var hooked []string
	ids := &seqIDs{}
	m := NewManager(quickRunner(),
		WithIDGenerator(ids.next),
		WithObserver(obs),
		WithHooks(func(_ context.Context, res *report.Result) error {
			hooked = append(hooked, res.Artifacts.Document)
			return nil
		}),
	)

	snap, err := m.Submit(Request{Query: "EV market Q3"})
	require.NoError(t, err)
	assert.Equal(t, "report_a", snap.TaskID)
	assert.Equal(t, types.TaskPending, snap.Status)
	wait(t, m, snap.TaskID)

	got := m.Status(snap.TaskID)
	assert.Equal(t, types.TaskCompleted, got.Status)
	assert.Equal(t, ProgressDone, got.Progress)
	assert.True(t, got.HasResult)
	assert.True(t, got.ReportFileReady)
	assert.False(t, got.Synthesized)
	require.NotNil(t, got.Artifacts)
	assert.Equal(t, "report_a/report.md", got.Artifacts.Document)

	res, err := m.Result(snap.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "# report for EV market Q3", res.Document)
	assert.Equal(t, []string{"report_a/report.md"}, hooked)

	assert.Equal(t, []types.TaskStatus{types.TaskCompleted}, obs.outcomes)
	assert.Equal(t, []int{ProgressReady, report.ProgressPlanned, report.ProgressPersisted, ProgressDone}, obs.progress)
}

func TestSubmit_TwiceFailsFast(t *testing.T) {
	r := newGatedRunner()
	m := NewManager(r, WithIDGenerator((&seqIDs{}).next))

	first, err := m.Submit(Request{Query: "EV market Q3"})
	require.NoError(t, err)
	<-r.started

	_, err = m.Submit(Request{Query: "again"})
	require.ErrorIs(t, err, ErrAlreadyRunning)
	var are *AlreadyRunningError
	require.ErrorAs(t, err, &are)
	assert.Equal(t, first.TaskID, are.Current.TaskID)
	assert.Equal(t, types.TaskRunning, are.Current.Status)

	close(r.release)
	wait(t, m, first.TaskID)
	assert.Equal(t, int32(1), r.calls.Load(), "no second run started")
	assert.Equal(t, types.TaskCompleted, m.Status(first.TaskID).Status)

	next, err := m.Submit(Request{Query: "after"})
	require.NoError(t, err, "a completed task is superseded")
	wait(t, m, next.TaskID)
	assert.True(t, m.Status(first.TaskID).Synthesized)
}

func TestSubmit_ConcurrentSubmitsStartOneRun(t *testing.T) {
	r := newGatedRunner()
	m := NewManager(r)

	var wg sync.WaitGroup
	var accepted atomic.Int32
	var ids sync.Map
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := m.Submit(Request{Query: "EV"})
			if err == nil {
				accepted.Add(1)
				ids.Store(snap.TaskID, true)
			} else {
				assert.ErrorIs(t, err, ErrAlreadyRunning)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())

	close(r.release)
	ids.Range(func(k, _ any) bool {
		wait(t, m, k.(string))
		return true
	})
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestStatus_MonotonicProgress(t *testing.T) {
	var m *Manager
	var seen []int
	runner := runnerFunc(func(_ context.Context, q report.Query, p report.Progress) (*report.Result, error) {
		for _, pct := range []int{20, 50, 30, 50, 80, 60, 95} {
			p(pct, "step")
			seen = append(seen, m.Status(q.ID).Progress)
		}
		return okResult(q), nil
	})
	m = NewManager(runner)

	snap, err := m.Submit(Request{Query: "EV"})
	require.NoError(t, err)
	wait(t, m, snap.TaskID)

	assert.Equal(t, []int{20, 50, 50, 50, 80, 80, 95}, seen)
	assert.Equal(t, ProgressDone, m.Status(snap.TaskID).Progress)
}

func TestStatus_IdempotentAndSynthesized(t *testing.T) {
	r := newGatedRunner()
	m := NewManager(r, WithClock(func() time.Time { return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC) }))
	snap, err := m.Submit(Request{Query: "EV"})
	require.NoError(t, err)
	<-r.started

	a, b := m.Status(snap.TaskID), m.Status(snap.TaskID)
	assert.Empty(t, cmp.Diff(a, b))

	ghost := m.Status("report_gone")
	assert.Equal(t, types.TaskSnapshot{
		TaskID:      "report_gone",
		Status:      types.TaskCompleted,
		Progress:    100,
		HasResult:   true,
		Synthesized: true,
	}, ghost)
	assert.Equal(t, ghost, m.Status("report_gone"))

	close(r.release)
	wait(t, m, snap.TaskID)
}

func TestCancel_DisownsRun(t *testing.T) {
	r := newGatedRunner()
	obs := &recordingObserver{}
	ids := &seqIDs{}
	m := NewManager(r, WithIDGenerator(ids.next), WithObserver(obs))

	first, err := m.Submit(Request{Query: "EV"})
	require.NoError(t, err)
	<-r.started

	require.NoError(t, m.Cancel(first.TaskID))
	got := m.Status(first.TaskID)
	assert.Equal(t, types.TaskCancelled, got.Status)
	assert.Equal(t, report.ProgressPlanned, got.Progress, "progress is kept")

	second, err := m.Submit(Request{Query: "next", SkipGate: true})
	require.NoError(t, err, "cancelling frees the slot")

	// Both goroutines finish; only the second may write back.
	close(r.release)
	wait(t, m, second.TaskID)
	_, err = m.Result(first.TaskID)
	assert.ErrorIs(t, err, ErrNotFound)

	res, err := m.Result(second.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "# report for next", res.Document)
	assert.True(t, m.Status(first.TaskID).Synthesized)

	// Let the disowned goroutine exit before goleak runs.
	time.Sleep(10 * time.Millisecond)
	assert.Contains(t, obs.outcomes, types.TaskCancelled)
}

func TestCancel_HonouredByRunner(t *testing.T) {
	r := newGatedRunner()
	r.honourCtx = true
	m := NewManager(r)

	snap, err := m.Submit(Request{Query: "EV"})
	require.NoError(t, err)
	<-r.started
	require.NoError(t, m.Cancel(snap.TaskID))
	wait(t, m, snap.TaskID)

	got := m.Status(snap.TaskID)
	assert.Equal(t, types.TaskCancelled, got.Status)
	assert.Equal(t, "cancelled by user", got.ErrorMessage)
}

func TestCancel_SkipsPostRunEffects(t *testing.T) {
	r := newGatedRunner()
	exp := &fakeExporter{}
	var hookCalls atomic.Int32
	m := NewManager(r,
		WithExporter(exp, true),
		WithHooks(func(context.Context, *report.Result) error {
			hookCalls.Add(1)
			return nil
		}),
	)

	snap, err := m.Submit(Request{Query: "EV"})
	require.NoError(t, err)
	<-r.started
	require.NoError(t, m.Cancel(snap.TaskID))

	close(r.release)
	wait(t, m, snap.TaskID)

	assert.Equal(t, types.TaskCancelled, m.Status(snap.TaskID).Status)
	assert.Zero(t, hookCalls.Load(), "a cancelled run must not reset the baseline")
	exp.mu.Lock()
	defer exp.mu.Unlock()
	assert.Zero(t, exp.calls, "a cancelled run must not export")
}

func TestCancel(t *testing.T) {
	m := NewManager(quickRunner())
	assert.ErrorIs(t, m.Cancel("nope"), ErrNotFound)

	snap, err := m.Submit(Request{Query: "EV"})
	require.NoError(t, err)
	wait(t, m, snap.TaskID)

	require.NoError(t, m.Cancel(snap.TaskID), "a finished task is released")
	_, ok := m.Current()
	assert.False(t, ok)
	assert.True(t, m.Status(snap.TaskID).Synthesized)
	assert.ErrorIs(t, m.Cancel(snap.TaskID), ErrNotFound)
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name    string
		runner  runnerFunc
		wantMsg string
	}{
		{
			name: "planning error",
			runner: func(context.Context, report.Query, report.Progress) (*report.Result, error) {
				return nil, errors.New("planning report structure: quota exceeded")
			},
			wantMsg: "planning report structure: quota exceeded",
		},
		{
			name: "panic",
			runner: func(_ context.Context, _ report.Query, p report.Progress) (*report.Result, error) {
				p(20, "planned")
				panic("nil map")
			},
			wantMsg: "internal error: nil map",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordingObserver{}
			m := NewManager(tt.runner, WithObserver(obs))
			snap, err := m.Submit(Request{Query: "EV"})
			require.NoError(t, err)
			wait(t, m, snap.TaskID)

			got := m.Status(snap.TaskID)
			assert.Equal(t, types.TaskError, got.Status)
			assert.Equal(t, tt.wantMsg, got.ErrorMessage)
			assert.False(t, got.HasResult)
			assert.Equal(t, []types.TaskStatus{types.TaskError}, obs.outcomes)

			_, err = m.Result(snap.TaskID)
			assert.ErrorIs(t, err, ErrNotCompleted)

			again, err := m.Submit(Request{Query: "retry", SkipGate: true})
			require.NoError(t, err, "a failed task frees the slot")
			wait(t, m, again.TaskID)
		})
	}
}

type fakeGate struct {
	res types.ReadinessResult
	err error
}

func (f *fakeGate) Require() (types.ReadinessResult, error) { return f.res, f.err }

func TestSubmit_Gate(t *testing.T) {
	notReady := types.ReadinessResult{Missing: []string{"customer", "logs/forum.log"}}
	var gotInputs *types.ReadinessResult
	runner := runnerFunc(func(_ context.Context, q report.Query, _ report.Progress) (*report.Result, error) {
		gotInputs = q.Inputs
		return okResult(q), nil
	})

	m := NewManager(runner, WithGate(&fakeGate{res: notReady, err: &gate.NotReadyError{Result: notReady}}))
	_, err := m.Submit(Request{Query: "EV"})
	require.ErrorIs(t, err, gate.ErrNotReady)
	var nre *gate.NotReadyError
	require.ErrorAs(t, err, &nre)
	assert.Equal(t, notReady.Missing, nre.Result.Missing)
	_, ok := m.Current()
	assert.False(t, ok, "no task created")

	snap, err := m.Submit(Request{Query: "EV", SkipGate: true})
	require.NoError(t, err)
	wait(t, m, snap.TaskID)
	assert.Nil(t, gotInputs)

	ready := types.ReadinessResult{Ready: true, LatestFiles: map[string]string{"market": "m.md"}}
	m = NewManager(runner, WithGate(&fakeGate{res: ready}))
	snap, err = m.Submit(Request{Query: "EV"})
	require.NoError(t, err)
	wait(t, m, snap.TaskID)
	require.NotNil(t, gotInputs)
	assert.Equal(t, "m.md", gotInputs.LatestFiles["market"])
}

func TestSubmit_CallsSubmitHooks(t *testing.T) {
	var cleared atomic.Int32
	m := NewManager(quickRunner(), WithSubmitHook(func() { cleared.Add(1) }))
	snap, err := m.Submit(Request{Query: "EV"})
	require.NoError(t, err)
	wait(t, m, snap.TaskID)

	m2 := NewManager(quickRunner(),
		WithSubmitHook(func() { cleared.Add(1) }),
		WithGate(&fakeGate{err: &gate.NotReadyError{}}))
	_, err = m2.Submit(Request{Query: "EV"})
	require.Error(t, err)
	assert.Equal(t, int32(1), cleared.Load(), "rejected submits leave the log alone")
}

type fakeExporter struct {
	mu    sync.Mutex
	err   error
	calls int
	got   types.Artifacts
}

func (f *fakeExporter) Export(_ context.Context, a types.Artifacts, _ string) (render.Exported, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = a
	if f.err != nil {
		return render.Exported{}, f.err
	}
	name := strings.TrimSuffix(a.HTML, "report.html") + "report.pdf"
	return render.Exported{Name: name, Renderer: "chrome", Bytes: 10}, nil
}

func TestExportPDF(t *testing.T) {
	exp := &fakeExporter{}
	m := NewManager(quickRunner(), WithExporter(exp, false), WithIDGenerator(func() string { return "report_x" }))

	snap, err := m.Submit(Request{Query: "EV"})
	require.NoError(t, err)
	wait(t, m, snap.TaskID)
	assert.Equal(t, 0, exp.calls, "no automatic export")

	out, err := m.ExportPDF(context.Background(), "report_x")
	require.NoError(t, err)
	assert.Equal(t, "report_x/report.pdf", out.Name)
	assert.Equal(t, "report_x/report.html", exp.got.HTML)
	assert.Equal(t, "report_x/report.pdf", m.Status("report_x").Artifacts.PDF)

	exp.err = &render.ChainError{Attempts: []render.Attempt{{Renderer: "chrome", Error: "crashed"}}}
	_, err = m.ExportPDF(context.Background(), "report_x")
	assert.ErrorIs(t, err, render.ErrAllFailed)
	assert.Equal(t, types.TaskCompleted, m.Status("report_x").Status, "export failure keeps the task completed")

	_, err = m.ExportPDF(context.Background(), "other")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewManager(quickRunner()).ExportPDF(context.Background(), "report_x")
	assert.ErrorIs(t, err, ErrNoExporter)
}

func TestExportPDF_NotCompleted(t *testing.T) {
	r := newGatedRunner()
	m := NewManager(r, WithExporter(&fakeExporter{}, false))
	snap, err := m.Submit(Request{Query: "EV"})
	require.NoError(t, err)
	<-r.started

	_, err = m.ExportPDF(context.Background(), snap.TaskID)
	assert.ErrorIs(t, err, ErrNotCompleted)

	close(r.release)
	wait(t, m, snap.TaskID)
}

func TestAutoExportAndHookFailures(t *testing.T) {
	exp := &fakeExporter{}
	m := NewManager(quickRunner(),
		WithExporter(exp, true),
		WithHooks(func(context.Context, *report.Result) error { return errors.New("baseline dir unwritable") }),
		WithIDGenerator(func() string { return "report_y" }),
	)
	snap, err := m.Submit(Request{Query: "EV"})
	require.NoError(t, err)
	wait(t, m, snap.TaskID)

	got := m.Status(snap.TaskID)
	assert.Equal(t, types.TaskCompleted, got.Status)
	assert.Equal(t, "report_y/report.pdf", got.Artifacts.PDF)

	exp2 := &fakeExporter{err: render.ErrNoRenderer}
	m2 := NewManager(quickRunner(), WithExporter(exp2, true))
	snap, err = m2.Submit(Request{Query: "EV"})
	require.NoError(t, err)
	wait(t, m2, snap.TaskID)
	got = m2.Status(snap.TaskID)
	assert.Equal(t, types.TaskCompleted, got.Status)
	assert.Empty(t, got.Artifacts.PDF)
}

func TestShutdown(t *testing.T) {
	r := newGatedRunner()
	r.honourCtx = true
	obs := &recordingObserver{}
	m := NewManager(r, WithObserver(obs))
	assert.NoError(t, m.Shutdown(context.Background()))

	snap, err := m.Submit(Request{Query: "EV"})
	require.NoError(t, err)
	<-r.started
	before := m.Status(snap.TaskID).UpdatedAt

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	got := m.Status(snap.TaskID)
	assert.Equal(t, types.TaskCancelled, got.Status)
	assert.Equal(t, "cancelled", got.Stage)
	assert.Equal(t, "shutting down", got.ErrorMessage)
	assert.False(t, got.UpdatedAt.Before(before))
	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []types.TaskStatus{types.TaskCancelled}, obs.outcomes)
}

func TestNewID(t *testing.T) {
	id := NewID()
	require.True(t, strings.HasPrefix(id, "report_"))
	u, err := uuid.Parse(strings.TrimPrefix(id, "report_"))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), u.Version())
	assert.NotEqual(t, id, NewID())
}
