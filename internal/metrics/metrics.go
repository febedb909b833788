// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes prometheus collectors for report runs. A
// Collectors value satisfies the observer interfaces of the llm, tools,
// research, render and task packages.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pdiddy/report-engine/pkg/types"
)

const namespace = "report_engine"

// Collectors holds every metric of the engine.
type Collectors struct {
	Tasks        *prometheus.CounterVec
	TaskDuration prometheus.Histogram
	TaskProgress prometheus.Gauge

	LLMCalls    *prometheus.CounterVec
	LLMDuration *prometheus.HistogramVec

	ToolCalls    *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec

	Reflections  prometheus.Histogram
	Searches     prometheus.Histogram
	StepFailures prometheus.Counter

	Exports        *prometheus.CounterVec
	ExportDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_total",
			Help: "Report tasks by final status.",
		}, []string{"status"}),
		TaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "task_duration_seconds",
			Help:    "Wall time of finished report tasks.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
		TaskProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "task_progress_percent",
			Help: "Progress of the current report task.",
		}),
		LLMCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_calls_total",
			Help: "LLM completions by provider and outcome.",
		}, []string{"provider", "outcome"}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "llm_call_duration_seconds",
			Help:    "LLM completion latency.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"provider"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tool_invocations_total",
			Help: "Search tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tool_invocation_duration_seconds",
			Help:    "Search tool latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		Reflections: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "section_reflection_iterations",
			Help:    "Reflection rounds per finished section.",
			Buckets: prometheus.LinearBuckets(0, 1, 6),
		}),
		Searches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "section_searches",
			Help:    "Search invocations per finished section.",
			Buckets: prometheus.LinearBuckets(1, 1, 6),
		}),
		StepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "section_step_failures_total",
			Help: "Recovered search, summary and reflection step failures.",
		}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "export_attempts_total",
			Help: "PDF render attempts by renderer and outcome.",
		}, []string{"renderer", "outcome"}),
		ExportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "export_duration_seconds",
			Help:    "PDF render latency.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"renderer"}),
	}

	for _, col := range []prometheus.Collector{
		c.Tasks, c.TaskDuration, c.TaskProgress,
		c.LLMCalls, c.LLMDuration,
		c.ToolCalls, c.ToolDuration,
		c.Reflections, c.Searches, c.StepFailures,
		c.Exports, c.ExportDuration,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *Collectors) ObserveLLMCall(provider string, elapsed time.Duration, err error) {
	c.LLMCalls.WithLabelValues(provider, outcome(err)).Inc()
	c.LLMDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (c *Collectors) ObserveToolCall(tool string, elapsed time.Duration, err error) {
	c.ToolCalls.WithLabelValues(tool, outcome(err)).Inc()
	c.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

func (c *Collectors) ObserveSection(iterations, searches, failedSteps int) {
	c.Reflections.Observe(float64(iterations))
	c.Searches.Observe(float64(searches))
	c.StepFailures.Add(float64(failedSteps))
}

func (c *Collectors) ObserveExport(renderer string, elapsed time.Duration, err error) {
	c.Exports.WithLabelValues(renderer, outcome(err)).Inc()
	c.ExportDuration.WithLabelValues(renderer).Observe(elapsed.Seconds())
}

func (c *Collectors) ObserveTask(status types.TaskStatus, elapsed time.Duration) {
	c.Tasks.WithLabelValues(string(status)).Inc()
	c.TaskDuration.Observe(elapsed.Seconds())
}

func (c *Collectors) ObserveProgress(pct int) {
	c.TaskProgress.Set(float64(pct))
}
