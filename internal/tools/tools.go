// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tools implements the search tools the research loop calls: an
// opinion database over social platform posts, an optional web search API,
// and LLM sentiment analysis, composed behind one Invoker.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/pkg/types"
)

const dateLayout = "2006-01-02"

// Invoker runs one search decision and returns its result items.
type Invoker interface {
	Invoke(ctx context.Context, d types.SearchDecision) ([]types.SearchItem, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, d types.SearchDecision) ([]types.SearchItem, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, d types.SearchDecision) ([]types.SearchItem, error) {
	return f(ctx, d)
}

// ToolError reports invalid parameters or an upstream failure of one tool.
// The research loop treats it as recoverable.
type ToolError struct {
	Tool   types.ToolName
	Reason string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Reason, e.Err)
	}
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Reason)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ConfigError reports a decision naming a tool that does not exist. It is a
// configuration fault and aborts the caller.
type ConfigError struct {
	Tool string
}

func (e *ConfigError) Error() string {
	names := make([]string, len(types.AllTools))
	for i, t := range types.AllTools {
		names[i] = string(t)
	}
	return fmt.Sprintf("unknown search tool %q (known: %s)", e.Tool, strings.Join(names, ", "))
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Validate checks a decision against its tool's parameter requirements.
func Validate(d types.SearchDecision) error {
	tool, ok := types.ParseToolName(string(d.Tool))
	if !ok {
		return &ConfigError{Tool: string(d.Tool)}
	}

	switch tool {
	case types.ToolHotContent:
		if d.TimePeriod != "" {
			if _, err := periodStart(time.Now(), d.TimePeriod); err != nil {
				return &ToolError{Tool: tool, Reason: "invalid time_period", Err: err}
			}
		}
	case types.ToolTopicByDate:
		if d.StartDate == "" || d.EndDate == "" {
			return &ToolError{Tool: tool, Reason: "start_date and end_date are required"}
		}
		if _, _, err := parseRange(d.StartDate, d.EndDate); err != nil {
			return &ToolError{Tool: tool, Reason: "invalid date range", Err: err}
		}
	case types.ToolTopicOnPlatform:
		if d.Platform == "" {
			return &ToolError{Tool: tool, Reason: "platform is required"}
		}
		if _, ok := types.ParsePlatform(d.Platform); !ok {
			return &ToolError{Tool: tool, Reason: fmt.Sprintf("unknown platform %q", d.Platform)}
		}
		if d.StartDate != "" || d.EndDate != "" {
			if _, _, err := parseRange(d.StartDate, d.EndDate); err != nil {
				return &ToolError{Tool: tool, Reason: "invalid date range", Err: err}
			}
		}
	case types.ToolSentimentAnalysis:
		if len(d.Texts) == 0 && strings.TrimSpace(d.Query) == "" {
			return &ToolError{Tool: tool, Reason: "texts or search_query is required"}
		}
	}

	if tool != types.ToolHotContent && tool != types.ToolSentimentAnalysis && strings.TrimSpace(d.Query) == "" {
		return &ToolError{Tool: tool, Reason: "search_query is required"}
	}
	return nil
}

// parseRange parses an inclusive YYYY-MM-DD range and returns [start, end+1d).
func parseRange(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date %q: %w", start, err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date %q: %w", end, err)
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date %s is before start_date %s", end, start)
	}
	return s, e.AddDate(0, 0, 1), nil
}

// periodStart returns the beginning of a hot_content window ending at now.
func periodStart(now time.Time, period string) (time.Time, error) {
	switch types.TimePeriod(strings.ToLower(period)) {
	case types.Period24h, "":
		return now.Add(-24 * time.Hour), nil
	case types.PeriodWeek:
		return now.AddDate(0, 0, -7), nil
	case types.PeriodYear:
		return now.AddDate(-1, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown time period %q (want 24h, week, year)", period)
	}
}

// Router dispatches each tool to its backend. Decisions are validated before
// dispatch and backend failures are reported as *ToolError.
type Router struct {
	routes    map[types.ToolName]Invoker
	fallback  Invoker
	sentiment *Sentiment
	logger    *zap.Logger
}

// NewRouter returns a Router sending every tool to fallback until Route
// overrides it.
func NewRouter(fallback Invoker, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		routes:   make(map[types.ToolName]Invoker),
		fallback: fallback,
		logger:   logger,
	}
}

// Route sends tool to inv.
func (r *Router) Route(tool types.ToolName, inv Invoker) {
	r.routes[tool] = inv
}

// WithSentiment routes sentiment_analysis to s and enables automatic
// sentiment on decisions with enable_sentiment set.
func (r *Router) WithSentiment(s *Sentiment) {
	r.sentiment = s
	r.routes[types.ToolSentimentAnalysis] = s
}

// Invoke validates d and runs it on the routed backend.
func (r *Router) Invoke(ctx context.Context, d types.SearchDecision) ([]types.SearchItem, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}

	inv, ok := r.routes[d.Tool]
	if !ok {
		inv = r.fallback
	}
	if inv == nil {
		return nil, &ToolError{Tool: d.Tool, Reason: "no backend configured"}
	}

	items, err := inv.Invoke(ctx, d)
	if err != nil {
		var te *ToolError
		if errors.As(err, &te) || IsConfigError(err) {
			return nil, err
		}
		return nil, &ToolError{Tool: d.Tool, Reason: "upstream failure", Err: err}
	}

	if d.EnableSentiment && d.Tool != types.ToolSentimentAnalysis && r.sentiment != nil && len(items) > 0 {
		overview, err := r.sentiment.Overview(ctx, items)
		if err != nil {
			r.logger.Warn("automatic sentiment analysis failed",
				zap.String("tool", string(d.Tool)), zap.Error(err))
		} else {
			items = append(items, overview)
		}
	}
	return items, nil
}

// InvokeObserver receives one event per tool invocation.
type InvokeObserver interface {
	ObserveToolCall(tool string, elapsed time.Duration, err error)
}

// Observe reports every invocation made through inv to obs.
func Observe(inv Invoker, obs InvokeObserver) Invoker {
	if obs == nil {
		return inv
	}
	return InvokerFunc(func(ctx context.Context, d types.SearchDecision) ([]types.SearchItem, error) {
		start := time.Now()
		items, err := inv.Invoke(ctx, d)
		obs.ObserveToolCall(string(d.Tool), time.Since(start), err)
		return items, err
	})
}

func score(v float64) *float64 { return &v }
