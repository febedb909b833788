// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package research drives one report section through the
// search, summarize and reflect cycle.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/internal/prompt"
	"github.com/pdiddy/report-engine/internal/tools"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Settings bounds one loop run.
type Settings struct {
	// MaxReflections is the number of reflection rounds after the initial
	// search. Zero runs the initial search only.
	MaxReflections int

	// MaxContentLength truncates each result's content, in runes.
	MaxContentLength int

	// MaxSearchResults caps the items one search contributes. Zero keeps all.
	MaxSearchResults int
}

// SettingsFrom converts the research configuration.
func SettingsFrom(cfg types.ResearchConfig) Settings {
	return Settings{
		MaxReflections:   cfg.MaxReflections,
		MaxContentLength: cfg.MaxContentLength,
		MaxSearchResults: cfg.MaxSearchResults,
	}
}

// Observer receives one event per finished section.
type Observer interface {
	ObserveSection(iterations, searches, failedSteps int)
}

// Loop runs the reflection cycle. A Loop holds no per-section state and may
// be reused across sections, one at a time.
type Loop struct {
	LLM      llm.Client
	Tools    tools.Invoker
	Prompts  *prompt.Set
	Settings Settings
	Logger   *zap.Logger
	Observer Observer
}

// run carries the state of one Run call.
type run struct {
	*Loop
	section  *types.ResearchSection
	log      *zap.Logger
	searches int
	failures int
}

// Run drives section from NotStarted to Completed. Step failures are logged
// and leave the summary as it was. Run returns an error only when a search
// decision names an unknown tool, or when ctx is cancelled between steps.
func (l *Loop) Run(ctx context.Context, section *types.ResearchSection) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &run{Loop: l, section: section, log: logger.With(zap.String("section", section.Title))}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := section.Advance(types.SectionSearching); err != nil {
		return err
	}

	if err := r.initial(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(section.LatestSummary) == "" {
		section.LatestSummary = fallbackSummary(section)
		r.log.Warn("initial summary unavailable, using planned content")
	}
	if err := section.Advance(types.SectionReflecting); err != nil {
		return err
	}

	for i := 0; i < l.Settings.MaxReflections; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		stop, err := r.reflect(ctx, i+1)
		if err != nil {
			return err
		}
		if stop {
			break
		}
		section.ReflectionIteration++
	}

	if err := section.Advance(types.SectionCompleted); err != nil {
		return err
	}
	if l.Observer != nil {
		l.Observer.ObserveSection(section.ReflectionIteration, r.searches, r.failures)
	}
	r.log.Info("section completed",
		zap.Int("reflections", section.ReflectionIteration),
		zap.Int("searches", r.searches),
		zap.Int("history", len(section.SearchHistory)))
	return nil
}

// initial runs the first search and summary.
func (r *run) initial(ctx context.Context) error {
	s := r.section
	req, err := r.Prompts.FirstSearch(s.Title, s.ExpectedContent)
	if err != nil {
		return r.stepFailed("building first search prompt", err)
	}
	d, err := r.decide(ctx, req)
	if err != nil {
		return r.stepFailed("choosing first search", err)
	}
	if d.IsTerminal() {
		r.log.Warn("first search decision is empty")
		r.failures++
		return nil
	}

	results, err := r.search(ctx, d)
	if err != nil {
		return r.stepFailed("first search", err)
	}

	req, err = r.Prompts.FirstSummary(s.Title, s.ExpectedContent, d.Query, results)
	if err != nil {
		return r.stepFailed("building first summary prompt", err)
	}
	summary, err := r.summarize(ctx, req, "paragraph_latest_state")
	if err != nil {
		return r.stepFailed("first summary", err)
	}
	s.LatestSummary = summary
	return nil
}

// reflect runs one reflection round. It reports stop when the model asks for
// no further search.
func (r *run) reflect(ctx context.Context, round int) (stop bool, err error) {
	s := r.section
	log := r.log.With(zap.Int("round", round))

	req, err := r.Prompts.Reflection(s.Title, s.ExpectedContent, s.LatestSummary)
	if err != nil {
		return false, r.stepFailedAt(log, "building reflection prompt", err)
	}
	d, err := r.decide(ctx, req)
	if err != nil {
		return false, r.stepFailedAt(log, "choosing reflection search", err)
	}
	if d.IsTerminal() {
		log.Info("reflection finished early", zap.String("reasoning", d.Reasoning))
		return true, nil
	}

	results, err := r.search(ctx, d)
	if err != nil {
		return false, r.stepFailedAt(log, "reflection search", err)
	}

	req, err = r.Prompts.ReflectionSummary(s.Title, s.ExpectedContent, d.Query, s.LatestSummary, results)
	if err != nil {
		return false, r.stepFailedAt(log, "building reflection summary prompt", err)
	}
	summary, err := r.summarize(ctx, req, "updated_paragraph_latest_state")
	if err != nil {
		return false, r.stepFailedAt(log, "reflection summary", err)
	}
	s.LatestSummary = summary
	return false, nil
}

// decide asks the model for a search decision and validates it.
func (r *run) decide(ctx context.Context, req llm.Request) (types.SearchDecision, error) {
	out, err := r.LLM.Complete(ctx, req)
	if err != nil {
		return types.SearchDecision{}, err
	}
	var d types.SearchDecision
	if err := llm.DecodeJSON(out, &d); err != nil {
		return types.SearchDecision{}, err
	}
	d.Tool = types.ToolName(strings.TrimSpace(string(d.Tool)))
	if d.IsTerminal() {
		return d, nil
	}
	if err := tools.Validate(d); err != nil {
		return types.SearchDecision{}, err
	}
	return d, nil
}

// search invokes the tool, records every kept item in the section history
// and returns the items formatted for the summary prompt.
func (r *run) search(ctx context.Context, d types.SearchDecision) ([]string, error) {
	r.searches++
	items, err := r.Tools.Invoke(ctx, d)
	if err != nil {
		return nil, err
	}
	if n := r.Settings.MaxSearchResults; n > 0 && len(items) > n {
		items = items[:n]
	}
	for i := range items {
		items[i].Content = Truncate(items[i].Content, r.Settings.MaxContentLength)
	}
	r.section.Record(d.Query, d.Tool, items)

	r.log.Debug("search done",
		zap.String("tool", string(d.Tool)),
		zap.String("query", d.Query),
		zap.Int("items", len(items)))

	results := make([]string, 0, len(items))
	for _, it := range items {
		results = append(results, formatItem(it))
	}
	return results, nil
}

// summarize asks for a summary and reads field from the JSON reply. A reply
// that is plain prose is used as is.
func (r *run) summarize(ctx context.Context, req llm.Request, field string) (string, error) {
	out, err := r.LLM.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	var reply map[string]any
	if err := llm.DecodeJSON(out, &reply); err != nil {
		text := strings.TrimSpace(out)
		if text == "" || strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
			return "", err
		}
		return text, nil
	}
	summary, _ := reply[field].(string)
	if strings.TrimSpace(summary) == "" {
		return "", fmt.Errorf("reply has no %s", field)
	}
	return strings.TrimSpace(summary), nil
}

// stepFailed turns a step failure into a logged event unless it is fatal.
func (r *run) stepFailed(step string, err error) error {
	return r.stepFailedAt(r.log, step, err)
}

func (r *run) stepFailedAt(log *zap.Logger, step string, err error) error {
	if tools.IsConfigError(err) {
		return fmt.Errorf("section %q: %w", r.section.Title, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	r.failures++
	log.Warn("research step failed", zap.String("step", step), zap.Error(err))
	return nil
}

func fallbackSummary(s *types.ResearchSection) string {
	if c := strings.TrimSpace(s.ExpectedContent); c != "" {
		return c
	}
	return s.Title
}

func formatItem(it types.SearchItem) string {
	var b strings.Builder
	if it.Title != "" {
		b.WriteString(it.Title)
		b.WriteString("\n")
	}
	if it.URL != "" {
		b.WriteString(it.URL)
		b.WriteString("\n")
	}
	b.WriteString(it.Content)
	return b.String()
}

// Truncate shortens s to at most n runes. n <= 0 leaves s unchanged.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
