// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "strings"

// ToolName identifies one of the external search tools.
type ToolName string

const (
	ToolHotContent        ToolName = "hot_content"
	ToolTopicGlobally     ToolName = "topic_globally"
	ToolTopicByDate       ToolName = "topic_by_date"
	ToolCommentsForTopic  ToolName = "comments_for_topic"
	ToolTopicOnPlatform   ToolName = "topic_on_platform"
	ToolSentimentAnalysis ToolName = "sentiment_analysis"
)

// AllTools lists every tool in a stable order.
var AllTools = []ToolName{
	ToolHotContent,
	ToolTopicGlobally,
	ToolTopicByDate,
	ToolCommentsForTopic,
	ToolTopicOnPlatform,
	ToolSentimentAnalysis,
}

// ParseToolName returns the ToolName for s and whether it is known.
func ParseToolName(s string) (ToolName, bool) {
	name := ToolName(strings.TrimSpace(s))
	for _, t := range AllTools {
		if t == name {
			return t, true
		}
	}
	return name, false
}

// Platform is a social platform covered by the opinion database.
type Platform string

const (
	PlatformBilibili Platform = "bilibili"
	PlatformWeibo    Platform = "weibo"
	PlatformDouyin   Platform = "douyin"
	PlatformKuaishou Platform = "kuaishou"
	PlatformXHS      Platform = "xhs"
	PlatformZhihu    Platform = "zhihu"
	PlatformTieba    Platform = "tieba"
)

var knownPlatforms = map[Platform]bool{
	PlatformBilibili: true,
	PlatformWeibo:    true,
	PlatformDouyin:   true,
	PlatformKuaishou: true,
	PlatformXHS:      true,
	PlatformZhihu:    true,
	PlatformTieba:    true,
}

// ParsePlatform returns the Platform for s and whether it is known.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	return p, knownPlatforms[p]
}

// TimePeriod is the window used by hot_content.
type TimePeriod string

const (
	Period24h  TimePeriod = "24h"
	PeriodWeek TimePeriod = "week"
	PeriodYear TimePeriod = "year"
)

// SearchDecision is the LLM's structured choice of the next search. The
// JSON field names follow the decision schema handed to the model.
type SearchDecision struct {
	Tool            ToolName `json:"search_tool" yaml:"search_tool"`
	Query           string   `json:"search_query" yaml:"search_query"`
	Reasoning       string   `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	StartDate       string   `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate         string   `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Platform        string   `json:"platform,omitempty" yaml:"platform,omitempty"`
	TimePeriod      string   `json:"time_period,omitempty" yaml:"time_period,omitempty"`
	EnableSentiment bool     `json:"enable_sentiment,omitempty" yaml:"enable_sentiment,omitempty"`
	Texts           []string `json:"texts,omitempty" yaml:"texts,omitempty"`

	// Terminal is set by the model when no further search is needed.
	Terminal bool `json:"terminal,omitempty" yaml:"terminal,omitempty"`
}

// IsTerminal reports whether the decision ends the reflection loop. An
// explicit Terminal flag wins; a decision with neither tool nor query is
// treated the same way.
func (d SearchDecision) IsTerminal() bool {
	if d.Terminal {
		return true
	}
	return strings.TrimSpace(string(d.Tool)) == "" && strings.TrimSpace(d.Query) == ""
}

// SearchItem is one result returned by a search tool.
type SearchItem struct {
	Title   string `json:"title" yaml:"title"`
	URL     string `json:"url" yaml:"url"`
	Content string `json:"content" yaml:"content"`

	// Score is the tool's relevance score when it reports one.
	Score *float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

// ScoreOrZero returns the relevance score, or 0 when the tool reported none.
func (i SearchItem) ScoreOrZero() float64 {
	if i.Score == nil {
		return 0
	}
	return *i.Score
}
