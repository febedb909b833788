// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/internal/render"
	"github.com/pdiddy/report-engine/internal/research"
	"github.com/pdiddy/report-engine/internal/task"
	"github.com/pdiddy/report-engine/internal/tools"
	"github.com/pdiddy/report-engine/pkg/types"
)

var (
	_ llm.CallObserver      = (*Collectors)(nil)
	_ tools.InvokeObserver  = (*Collectors)(nil)
	_ research.Observer     = (*Collectors)(nil)
	_ render.ExportObserver = (*Collectors)(nil)
	_ task.Observer         = (*Collectors)(nil)
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.ObserveLLMCall("claude", time.Second, nil)
	c.ObserveLLMCall("claude", time.Second, errors.New("429"))
	c.ObserveToolCall("hot_content", 10*time.Millisecond, nil)
	c.ObserveSection(2, 3, 1)
	c.ObserveSection(0, 1, 0)
	c.ObserveExport("chrome", time.Second, errors.New("crash"))
	c.ObserveExport("markdown", time.Second, nil)
	c.ObserveTask(types.TaskCompleted, time.Minute)
	c.ObserveProgress(40)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.LLMCalls.WithLabelValues("claude", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LLMCalls.WithLabelValues("claude", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ToolCalls.WithLabelValues("hot_content", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StepFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Exports.WithLabelValues("chrome", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Tasks.WithLabelValues("completed")))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.TaskProgress))

	expected := `
# HELP report_engine_export_attempts_total PDF render attempts by renderer and outcome.
# TYPE report_engine_export_attempts_total counter
report_engine_export_attempts_total{outcome="error",renderer="chrome"} 1
report_engine_export_attempts_total{outcome="ok",renderer="markdown"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "report_engine_export_attempts_total"))
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
