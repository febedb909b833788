// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
)

// SectionStatus tracks a section's progress through the research loop.
type SectionStatus string

const (
	SectionNotStarted SectionStatus = "not_started"
	SectionSearching  SectionStatus = "searching"
	SectionReflecting SectionStatus = "reflecting"
	SectionCompleted  SectionStatus = "completed"
)

var sectionRank = map[SectionStatus]int{
	"":                0,
	SectionNotStarted: 0,
	SectionSearching:  1,
	SectionReflecting: 2,
	SectionCompleted:  3,
}

var (
	// ErrStatusRegression is returned when a section would move backwards.
	ErrStatusRegression = errors.New("section status cannot move backwards")

	// ErrEmptySummary is returned when a section reaches Reflecting without a summary.
	ErrEmptySummary = errors.New("section summary is empty")
)

// SearchRecord is one search result kept in a section's history.
type SearchRecord struct {
	Query          string   `json:"query" yaml:"query"`
	Tool           ToolName `json:"tool_name" yaml:"tool_name"`
	URL            string   `json:"url" yaml:"url"`
	Title          string   `json:"title" yaml:"title"`
	Content        string   `json:"content" yaml:"content"`
	RelevanceScore float64  `json:"relevance_score" yaml:"relevance_score"`
}

// ResearchSection is one planned section of a report together with its
// evolving summary and search history. Title and ExpectedContent are set at
// planning time and never change.
type ResearchSection struct {
	Title           string `json:"title" yaml:"title"`
	ExpectedContent string `json:"content" yaml:"content"`

	LatestSummary       string         `json:"paragraph_latest_state" yaml:"paragraph_latest_state"`
	SearchHistory       []SearchRecord `json:"search_history" yaml:"search_history"`
	ReflectionIteration int            `json:"reflection_iteration" yaml:"reflection_iteration"`
	Status              SectionStatus  `json:"status" yaml:"status"`
}

// NewResearchSection returns a section in the NotStarted state.
func NewResearchSection(title, expectedContent string) *ResearchSection {
	return &ResearchSection{
		Title:           title,
		ExpectedContent: expectedContent,
		Status:          SectionNotStarted,
	}
}

// Advance moves the section to status. Backwards moves are rejected, and a
// section may not reach Reflecting or later without a summary.
func (s *ResearchSection) Advance(status SectionStatus) error {
	to, ok := sectionRank[status]
	if !ok {
		return fmt.Errorf("unknown section status %q", status)
	}
	if to < sectionRank[s.Status] {
		return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, s.Status, status)
	}
	if to >= sectionRank[SectionReflecting] && strings.TrimSpace(s.LatestSummary) == "" {
		return fmt.Errorf("%w: cannot enter %s", ErrEmptySummary, status)
	}
	s.Status = status
	return nil
}

// Record appends one SearchRecord per item, preserving item order.
func (s *ResearchSection) Record(query string, tool ToolName, items []SearchItem) {
	for _, it := range items {
		s.SearchHistory = append(s.SearchHistory, SearchRecord{
			Query:          query,
			Tool:           tool,
			URL:            it.URL,
			Title:          it.Title,
			Content:        it.Content,
			RelevanceScore: it.ScoreOrZero(),
		})
	}
}

// Meta returns the section's metadata without full text bodies.
func (s *ResearchSection) Meta() SectionMeta {
	seen := make(map[ToolName]bool)
	var tools []string
	for _, r := range s.SearchHistory {
		if !seen[r.Tool] {
			seen[r.Tool] = true
			tools = append(tools, string(r.Tool))
		}
	}
	return SectionMeta{
		Title:               s.Title,
		ExpectedContent:     s.ExpectedContent,
		Status:              s.Status,
		ReflectionIteration: s.ReflectionIteration,
		SearchCount:         len(s.SearchHistory),
		SummaryChars:        len([]rune(s.LatestSummary)),
		Tools:               tools,
	}
}

// SectionMeta is the per-section part of a persisted state snapshot.
type SectionMeta struct {
	Title               string        `json:"title" yaml:"title"`
	ExpectedContent     string        `json:"expected_content" yaml:"expected_content"`
	Status              SectionStatus `json:"status" yaml:"status"`
	ReflectionIteration int           `json:"reflection_iteration" yaml:"reflection_iteration"`
	SearchCount         int           `json:"search_count" yaml:"search_count"`
	SummaryChars        int           `json:"summary_chars" yaml:"summary_chars"`
	Tools               []string      `json:"tools,omitempty" yaml:"tools,omitempty"`
}
