// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/pkg/types"
)

const sentimentSystem = `You classify the sentiment of social media texts.
For each input text return its index, a label (positive, neutral or negative) and a confidence score between 0 and 1.
Also return a one-sentence overall assessment.`

const sentimentSchema = `{
  "type": "object",
  "properties": {
    "results": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "index": {"type": "integer"},
          "label": {"type": "string", "enum": ["positive", "neutral", "negative"]},
          "score": {"type": "number"}
        },
        "required": ["index", "label", "score"]
      }
    },
    "overall": {"type": "string"}
  },
  "required": ["results", "overall"]
}`

// Label is the sentiment of one text.
type Label struct {
	Index int     `json:"index"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Analysis is the sentiment of a batch of texts.
type Analysis struct {
	Results []Label `json:"results"`
	Overall string  `json:"overall"`
}

// Counts returns the number of texts per label.
func (a Analysis) Counts() map[string]int {
	counts := map[string]int{"positive": 0, "neutral": 0, "negative": 0}
	for _, r := range a.Results {
		counts[strings.ToLower(r.Label)]++
	}
	return counts
}

// Sentiment serves sentiment_analysis through the LLM collaborator. When a
// decision carries no texts, the top topic_globally hits for its query are
// classified instead.
type Sentiment struct {
	LLM      llm.Client
	Source   Invoker
	MaxTexts int
}

// Analyze classifies texts.
func (s *Sentiment) Analyze(ctx context.Context, texts []string) (Analysis, error) {
	max := s.MaxTexts
	if max <= 0 {
		max = 20
	}
	if len(texts) > max {
		texts = texts[:max]
	}

	input := make([]map[string]any, len(texts))
	for i, t := range texts {
		input[i] = map[string]any{"index": i, "text": clip(t, 500)}
	}
	user, err := json.Marshal(map[string]any{"texts": input})
	if err != nil {
		return Analysis{}, fmt.Errorf("marshaling texts: %w", err)
	}

	out, err := s.LLM.Complete(ctx, llm.Request{System: sentimentSystem, User: string(user), Schema: sentimentSchema})
	if err != nil {
		return Analysis{}, fmt.Errorf("classifying sentiment: %w", err)
	}
	var a Analysis
	if err := llm.DecodeJSON(out, &a); err != nil {
		return Analysis{}, err
	}
	return a, nil
}

// Invoke runs sentiment_analysis.
func (s *Sentiment) Invoke(ctx context.Context, d types.SearchDecision) ([]types.SearchItem, error) {
	texts := d.Texts
	if len(texts) == 0 && s.Source != nil {
		hits, err := s.Source.Invoke(ctx, types.SearchDecision{Tool: types.ToolTopicGlobally, Query: d.Query})
		if err != nil {
			return nil, &ToolError{Tool: types.ToolSentimentAnalysis, Reason: "collecting texts", Err: err}
		}
		for _, h := range hits {
			texts = append(texts, h.Content)
		}
	}
	if len(texts) == 0 {
		return nil, &ToolError{Tool: types.ToolSentimentAnalysis, Reason: "no texts to analyze"}
	}

	a, err := s.Analyze(ctx, texts)
	if err != nil {
		return nil, &ToolError{Tool: types.ToolSentimentAnalysis, Reason: "upstream failure", Err: err}
	}

	items := []types.SearchItem{overviewItem(a, len(texts))}
	for _, r := range a.Results {
		if r.Index < 0 || r.Index >= len(texts) {
			continue
		}
		items = append(items, types.SearchItem{
			Title:   fmt.Sprintf("sentiment: %s", r.Label),
			Content: texts[r.Index],
			Score:   score(r.Score),
		})
	}
	return items, nil
}

// Overview classifies the contents of items and returns one summary item.
func (s *Sentiment) Overview(ctx context.Context, items []types.SearchItem) (types.SearchItem, error) {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Content
	}
	a, err := s.Analyze(ctx, texts)
	if err != nil {
		return types.SearchItem{}, err
	}
	return overviewItem(a, len(texts)), nil
}

func overviewItem(a Analysis, n int) types.SearchItem {
	c := a.Counts()
	return types.SearchItem{
		Title: "Sentiment overview",
		Content: fmt.Sprintf("%d texts: %d positive, %d neutral, %d negative. %s",
			n, c["positive"], c["neutral"], c["negative"], a.Overall),
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
