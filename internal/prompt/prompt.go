// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt builds the LLM requests used by the research loop and the
// report orchestrator. Each report family shares the same stages and differs
// in its analyst role and the format of the assembled report.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Family identifies a report family.
type Family string

const (
	Market   Family = "market"
	Customer Family = "customer"
	Compete  Family = "compete"
	Summary  Family = "summary"
)

// ParseFamily returns the Family named by s.
func ParseFamily(s string) (Family, error) {
	switch f := Family(strings.ToLower(strings.TrimSpace(s))); f {
	case Market, Customer, Compete, Summary:
		return f, nil
	case "":
		return Summary, nil
	default:
		return "", fmt.Errorf("unknown report family %q", s)
	}
}

// Format returns the format of the family's assembled report.
func (f Family) Format() types.DocumentFormat {
	if f == Summary {
		return types.FormatHTML
	}
	return types.FormatMarkdown
}

type familyInfo struct {
	Role  string
	Focus string
}

var families = map[Family]familyInfo{
	Market: {
		Role:  "a senior market analyst studying public opinion on social platforms",
		Focus: "market size and momentum, public discussion volume, sentiment shifts, and notable events",
	},
	Customer: {
		Role:  "a customer insight researcher",
		Focus: "user needs, satisfaction, pain points, usage scenarios, and the voice of the customer in comments",
	},
	Compete: {
		Role:  "a competitive intelligence analyst",
		Focus: "competitor positioning, feature and price comparisons, share of voice, and differentiation",
	},
	Summary: {
		Role:  "a lead analyst writing a comprehensive public opinion report",
		Focus: "integrating market, customer and competitor evidence into one coherent narrative",
	},
}

// SectionText is a planned section with its final summary.
type SectionText struct {
	Title                string `json:"title"`
	ParagraphLatestState string `json:"paragraph_latest_state"`
}

// Upstream is the output of sibling engines fed into the final report.
type Upstream struct {
	Reports   map[string]string `json:"reports,omitempty"`
	ForumLogs string            `json:"forum_logs,omitempty"`
}

// Set builds prompts for one family.
type Set struct {
	family Family
	info   familyInfo
}

// For returns the prompt set for f. Unknown families fall back to Summary.
func For(f Family) *Set {
	info, ok := families[f]
	if !ok {
		f = Summary
		info = families[Summary]
	}
	return &Set{family: f, info: info}
}

// Family returns the set's family.
func (s *Set) Family() Family { return s.family }

// Structure asks for n ordered section plans for query.
func (s *Set) Structure(query string, n int) (llm.Request, error) {
	return s.build(structureTmpl, schemaStructure, map[string]any{"sections": n}, map[string]any{
		"query":         query,
		"section_count": n,
	})
}

// FirstSearch asks for the initial search decision of a section.
func (s *Set) FirstSearch(title, content string) (llm.Request, error) {
	return s.build(firstSearchTmpl, schemaDecision, nil, map[string]any{
		"title":   title,
		"content": content,
	})
}

// FirstSummary asks for the initial section summary from raw results.
func (s *Set) FirstSummary(title, content, query string, results []string) (llm.Request, error) {
	return s.build(firstSummaryTmpl, schemaFirstSummary, nil, map[string]any{
		"title":          title,
		"content":        content,
		"search_query":   query,
		"search_results": results,
	})
}

// Reflection asks whether and how to search again given the current summary.
func (s *Set) Reflection(title, content, summary string) (llm.Request, error) {
	return s.build(reflectionTmpl, schemaDecision, nil, map[string]any{
		"title":                  title,
		"content":                content,
		"paragraph_latest_state": summary,
	})
}

// ReflectionSummary asks for the summary enriched with new results.
func (s *Set) ReflectionSummary(title, content, query, summary string, results []string) (llm.Request, error) {
	return s.build(reflectionSummaryTmpl, schemaReflectionSummary, nil, map[string]any{
		"title":                  title,
		"content":                content,
		"search_query":           query,
		"search_results":         results,
		"paragraph_latest_state": summary,
	})
}

// Formatting asks for the final document from all section summaries.
// template and upstream may be empty.
func (s *Set) Formatting(query string, sections []SectionText, tmpl string, upstream Upstream) (llm.Request, error) {
	input := map[string]any{
		"query":    query,
		"sections": sections,
	}
	if tmpl != "" {
		input["selected_template"] = tmpl
	}
	if len(upstream.Reports) > 0 {
		input["engine_reports"] = upstream.Reports
	}
	if upstream.ForumLogs != "" {
		input["forum_logs"] = upstream.ForumLogs
	}
	t := formattingMarkdownTmpl
	if s.family.Format() == types.FormatHTML {
		t = formattingHTMLTmpl
	}
	return s.build(t, "", nil, input)
}

// TemplateOption is a report template offered for selection.
type TemplateOption struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TemplateSelection asks the model to pick one template for query.
func (s *Set) TemplateSelection(query string, options []TemplateOption) (llm.Request, error) {
	return s.build(templateSelectionTmpl, schemaTemplateSelection, nil, map[string]any{
		"query":     query,
		"templates": options,
	})
}

// ExpertReview asks for an annotated and corrected version of document.
func (s *Set) ExpertReview(document, rules string) (llm.Request, error) {
	if rules == "" {
		rules = "No specific business rules. Apply general professional standards."
	}
	return s.build(expertReviewTmpl, "", nil, map[string]any{
		"report_content": document,
		"business_rules": rules,
	})
}

// build renders the system template and serializes input as the user prompt.
func (s *Set) build(t *template.Template, schema string, extra map[string]any, input any) (llm.Request, error) {
	data := map[string]any{
		"Role":   s.info.Role,
		"Focus":  s.info.Focus,
		"Format": string(s.family.Format()),
		"Tools":  toolDescriptions,
	}
	for k, v := range extra {
		data[k] = v
	}

	var sys bytes.Buffer
	if err := t.Execute(&sys, data); err != nil {
		return llm.Request{}, fmt.Errorf("rendering %s prompt: %w", t.Name(), err)
	}

	user, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return llm.Request{}, fmt.Errorf("marshaling %s input: %w", t.Name(), err)
	}

	return llm.Request{
		System: strings.TrimSpace(sys.String()),
		User:   string(user),
		Schema: schema,
	}, nil
}
