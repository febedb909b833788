// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report plans a report, researches each section in order and
// assembles the final document.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/internal/prompt"
	"github.com/pdiddy/report-engine/internal/render"
	"github.com/pdiddy/report-engine/internal/research"
	"github.com/pdiddy/report-engine/internal/store"
	"github.com/pdiddy/report-engine/internal/tools"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Progress checkpoints reported by Run.
const (
	ProgressPlanned    = 20
	ProgressResearched = 80
	ProgressAssembled  = 90
	ProgressPersisted  = 95
)

// ErrNoSections is returned when planning yields no usable section.
var ErrNoSections = errors.New("report structure has no sections")

// Query is one report request.
type Query struct {
	// ID names the run's artifacts in the blob store.
	ID string

	Text           string
	Family         string
	CustomTemplate string

	// Inputs is the readiness result of the gate check that admitted the
	// run. Its latest files feed the assembly prompt. May be nil.
	Inputs *types.ReadinessResult
}

// Progress receives checkpoint updates. Values never decrease.
type Progress func(pct int, stage string)

// Result is the outcome of a successful run.
type Result struct {
	Document  string
	Format    types.DocumentFormat
	Template  string
	Reviewed  bool
	Sections  []*types.ResearchSection
	Artifacts types.Artifacts
	State     types.StateSnapshot
}

// Orchestrator runs the planning, research, assembly and persistence steps.
type Orchestrator struct {
	LLM      llm.Client
	Tools    tools.Invoker
	Store    store.BlobStore
	Config   types.ReportConfig
	Research research.Settings
	Logger   *zap.Logger
	Observer research.Observer

	now func() time.Time
}

// New returns an Orchestrator for cfg.
func New(cfg types.Config, client llm.Client, inv tools.Invoker, blobs store.BlobStore, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		LLM:      client,
		Tools:    inv,
		Store:    blobs,
		Config:   cfg.Report,
		Research: research.SettingsFrom(cfg.Research),
		Logger:   logger,
	}
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// Run produces a report for q. Planning and assembly failures abort the run;
// failures inside a section's research are absorbed by the section.
func (o *Orchestrator) Run(ctx context.Context, q Query, progress Progress) (*Result, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	family, err := prompt.ParseFamily(firstNonEmpty(q.Family, o.Config.Family))
	if err != nil {
		return nil, err
	}
	prompts := prompt.For(family)
	log := o.logger().With(zap.String("task_id", q.ID), zap.String("family", string(family)))
	started := o.clock()

	// Step A: plan.
	sections, err := o.plan(ctx, prompts, q.Text)
	if err != nil {
		return nil, fmt.Errorf("planning report structure: %w", err)
	}
	log.Info("report planned", zap.Int("sections", len(sections)))
	progress(ProgressPlanned, "planned")

	// Step B: research each section in order.
	loop := &research.Loop{
		LLM:      o.LLM,
		Tools:    o.Tools,
		Prompts:  prompts,
		Settings: o.Research,
		Logger:   log,
		Observer: o.Observer,
	}
	span := ProgressResearched - ProgressPlanned
	for i, s := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(ProgressPlanned+span*i/len(sections), "researching: "+s.Title)
		if err := loop.Run(ctx, s); err != nil {
			return nil, fmt.Errorf("researching section %d %q: %w", i+1, s.Title, err)
		}
	}
	progress(ProgressResearched, "researched")

	// Step C: assemble.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tmpl := o.chooseTemplate(ctx, prompts, q, log)
	upstream := loadUpstream(q.Inputs, o.maxInputChars(), log)
	log.Debug("assembly inputs", zap.String("upstream", describeUpstream(upstream)), zap.String("template", tmpl.Name))

	doc, err := o.assemble(ctx, prompts, q.Text, sections, tmpl.Body, upstream)
	if err != nil {
		return nil, fmt.Errorf("assembling report: %w", err)
	}
	reviewed := false
	if o.Config.ExpertReview {
		if out, err := o.review(ctx, prompts, doc); err != nil {
			log.Warn("expert review failed, keeping assembled report", zap.Error(err))
		} else {
			doc, reviewed = out, true
		}
	}
	progress(ProgressAssembled, "assembled")

	// Step D: persist.
	res := &Result{
		Document: doc,
		Format:   family.Format(),
		Template: tmpl.Name,
		Reviewed: reviewed,
		Sections: sections,
	}
	res.State = types.StateSnapshot{
		TaskID:      q.ID,
		Query:       q.Text,
		Family:      string(family),
		Template:    tmpl.Name,
		Status:      types.TaskCompleted,
		Format:      res.Format,
		Reviewed:    reviewed,
		CreatedAt:   started.UTC(),
		CompletedAt: o.clock().UTC(),
	}
	for _, s := range sections {
		res.State.Sections = append(res.State.Sections, s.Meta())
	}
	if err := o.persist(ctx, q, res); err != nil {
		return nil, fmt.Errorf("persisting report: %w", err)
	}
	progress(ProgressPersisted, "persisted")

	log.Info("report completed",
		zap.String("document", res.Artifacts.Document),
		zap.Int("chars", len([]rune(doc))),
		zap.Duration("elapsed", o.clock().Sub(started)))
	return res, nil
}

type plannedSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (o *Orchestrator) plan(ctx context.Context, prompts *prompt.Set, query string) ([]*types.ResearchSection, error) {
	n := o.Config.SectionCount
	if n <= 0 {
		n = 5
	}
	req, err := prompts.Structure(query, n)
	if err != nil {
		return nil, err
	}
	out, err := o.LLM.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var planned []plannedSection
	if err := llm.DecodeJSON(out, &planned); err != nil {
		// Some models wrap the list in an object.
		var wrapped struct {
			Sections []plannedSection `json:"sections"`
		}
		if werr := llm.DecodeJSON(out, &wrapped); werr != nil || len(wrapped.Sections) == 0 {
			return nil, err
		}
		planned = wrapped.Sections
	}

	var sections []*types.ResearchSection
	for _, p := range planned {
		if strings.TrimSpace(p.Title) == "" {
			continue
		}
		sections = append(sections, types.NewResearchSection(strings.TrimSpace(p.Title), strings.TrimSpace(p.Content)))
		if len(sections) == n {
			break
		}
	}
	if len(sections) == 0 {
		return nil, ErrNoSections
	}
	if len(sections) < n {
		o.logger().Warn("model planned fewer sections than requested",
			zap.Int("requested", n), zap.Int("planned", len(sections)))
	}
	return sections, nil
}

// chooseTemplate resolves the template for q. A custom template wins: a
// template name selects that file and any other text is used verbatim.
// Otherwise the model picks one; unknown picks and failures fall back to
// the first template.
func (o *Orchestrator) chooseTemplate(ctx context.Context, prompts *prompt.Set, q Query, log *zap.Logger) Template {
	templates, err := ListTemplates(o.Config.TemplateDir)
	if err != nil {
		log.Warn("listing templates failed", zap.Error(err))
	}

	if custom := strings.TrimSpace(q.CustomTemplate); custom != "" {
		if t, ok := findTemplate(templates, custom); ok {
			return t
		}
		return Template{Name: "custom", Body: custom}
	}
	if len(templates) == 0 {
		return Template{}
	}
	if len(templates) == 1 {
		return templates[0]
	}

	options := make([]prompt.TemplateOption, len(templates))
	for i, t := range templates {
		options[i] = prompt.TemplateOption{Name: t.Name, Description: t.Description}
	}
	req, err := prompts.TemplateSelection(q.Text, options)
	if err != nil {
		log.Warn("building template selection prompt failed", zap.Error(err))
		return templates[0]
	}
	out, err := o.LLM.Complete(ctx, req)
	if err != nil {
		log.Warn("template selection failed, using default", zap.Error(err))
		return templates[0]
	}
	var pick struct {
		Name   string `json:"template_name"`
		Reason string `json:"selection_reason"`
	}
	if err := llm.DecodeJSON(out, &pick); err != nil {
		log.Warn("template selection unreadable, using default", zap.Error(err))
		return templates[0]
	}
	t, ok := findTemplate(templates, pick.Name)
	if !ok {
		log.Warn("model picked an unknown template, using default", zap.String("picked", pick.Name))
		return templates[0]
	}
	log.Info("template selected", zap.String("template", t.Name), zap.String("reason", pick.Reason))
	return t
}

func (o *Orchestrator) assemble(ctx context.Context, prompts *prompt.Set, query string, sections []*types.ResearchSection, tmpl string, up prompt.Upstream) (string, error) {
	texts := make([]prompt.SectionText, len(sections))
	for i, s := range sections {
		texts[i] = prompt.SectionText{Title: s.Title, ParagraphLatestState: s.LatestSummary}
	}
	req, err := prompts.Formatting(query, texts, tmpl, up)
	if err != nil {
		return "", err
	}
	out, err := o.LLM.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	doc := stripFence(out)
	if doc == "" {
		return "", llm.ErrEmptyResponse
	}
	return doc, nil
}

func (o *Orchestrator) review(ctx context.Context, prompts *prompt.Set, doc string) (string, error) {
	req, err := prompts.ExpertReview(doc, "")
	if err != nil {
		return "", err
	}
	out, err := o.LLM.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	reviewed := stripFence(out)
	if reviewed == "" {
		return "", llm.ErrEmptyResponse
	}
	return reviewed, nil
}

// persist writes the document, its HTML rendition and the state snapshot.
func (o *Orchestrator) persist(ctx context.Context, q Query, res *Result) error {
	dir := q.ID
	if dir == "" {
		dir = "report_" + o.clock().UTC().Format("20060102_150405")
	}

	html := res.Document
	docName := path.Join(dir, "report.html")
	if res.Format == types.FormatMarkdown {
		docName = path.Join(dir, "report.md")
		var err error
		html, err = render.MarkdownToHTML(res.Document, q.Text)
		if err != nil {
			return fmt.Errorf("converting markdown to html: %w", err)
		}
	}

	if err := o.Store.Put(ctx, docName, []byte(res.Document)); err != nil {
		return err
	}
	res.Artifacts.Document = docName
	res.Artifacts.HTML = path.Join(dir, "report.html")
	if res.Format == types.FormatMarkdown {
		if err := o.Store.Put(ctx, res.Artifacts.HTML, []byte(html)); err != nil {
			return err
		}
	}

	state, err := json.MarshalIndent(res.State, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	res.Artifacts.State = path.Join(dir, "state.json")
	return o.Store.Put(ctx, res.Artifacts.State, state)
}

func (o *Orchestrator) maxInputChars() int {
	if o.Config.MaxInputChars > 0 {
		return o.Config.MaxInputChars
	}
	return 30000
}

// stripFence removes a surrounding markdown code fence such as ```html.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
