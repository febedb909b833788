// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/report-engine/internal/httputil"
	"github.com/pdiddy/report-engine/pkg/types"
)

// WebSearch serves the general search tools from a web search API that
// takes {query, count, freshness, summary} and returns web page results.
type WebSearch struct {
	Endpoint  string
	APIKey    string
	Count     int
	UserAgent string
	Client    *http.Client
}

// NewWebSearch builds a WebSearch from cfg. It returns nil when no endpoint
// is configured.
func NewWebSearch(cfg types.WebSearchConfig) *WebSearch {
	if cfg.Endpoint == "" {
		return nil
	}
	return &WebSearch{
		Endpoint:  cfg.Endpoint,
		APIKey:    cfg.APIKey,
		Count:     cfg.Count,
		UserAgent: cfg.UserAgent,
		Client:    &http.Client{Timeout: cfg.Timeout},
	}
}

type webRequest struct {
	Query     string `json:"query"`
	Count     int    `json:"count"`
	Freshness string `json:"freshness"`
	Summary   bool   `json:"summary"`
}

type webResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		WebPages struct {
			Value []webPage `json:"value"`
		} `json:"webPages"`
	} `json:"data"`
}

type webPage struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	Snippet       string `json:"snippet"`
	Summary       string `json:"summary"`
	DatePublished string `json:"datePublished"`
}

// Invoke runs hot_content, topic_globally, topic_by_date or
// topic_on_platform against the web. comments_for_topic and
// sentiment_analysis are not served.
func (w *WebSearch) Invoke(ctx context.Context, d types.SearchDecision) ([]types.SearchItem, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}

	req := webRequest{Query: d.Query, Count: w.Count, Freshness: "noLimit", Summary: true}
	if req.Count <= 0 {
		req.Count = 10
	}

	switch d.Tool {
	case types.ToolTopicGlobally:
	case types.ToolHotContent:
		if req.Query == "" {
			req.Query = "trending news"
		}
		req.Freshness = freshness(d.TimePeriod)
	case types.ToolTopicByDate:
		req.Freshness = d.StartDate + ".." + d.EndDate
	case types.ToolTopicOnPlatform:
		req.Query = d.Query + " " + platformSite(d.Platform)
		if d.StartDate != "" {
			req.Freshness = d.StartDate + ".." + d.EndDate
		}
	default:
		return nil, &ToolError{Tool: d.Tool, Reason: "not served by web search"}
	}

	pages, err := w.search(ctx, req)
	if err != nil {
		return nil, &ToolError{Tool: d.Tool, Reason: "web search failed", Err: err}
	}

	items := make([]types.SearchItem, 0, len(pages))
	for _, p := range pages {
		content := p.Summary
		if content == "" {
			content = p.Snippet
		}
		items = append(items, types.SearchItem{Title: p.Name, URL: p.URL, Content: content})
	}
	return items, nil
}

func (w *WebSearch) search(ctx context.Context, body webRequest) ([]webPage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.APIKey)
	}
	if w.UserAgent != "" {
		req.Header.Set("User-Agent", w.UserAgent)
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("calling web search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("web search returned %d: %s", resp.StatusCode, string(b))
	}

	var wr webResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("decoding web search response: %w", err)
	}
	if wr.Code != 0 && wr.Code != http.StatusOK {
		return nil, fmt.Errorf("web search error %d: %s", wr.Code, wr.Msg)
	}
	return wr.Data.WebPages.Value, nil
}

func freshness(period string) string {
	switch types.TimePeriod(strings.ToLower(period)) {
	case types.PeriodWeek:
		return "oneWeek"
	case types.PeriodYear:
		return "oneYear"
	default:
		return "oneDay"
	}
}

var platformSites = map[types.Platform]string{
	types.PlatformBilibili: "bilibili.com",
	types.PlatformWeibo:    "weibo.com",
	types.PlatformDouyin:   "douyin.com",
	types.PlatformKuaishou: "kuaishou.com",
	types.PlatformXHS:      "xiaohongshu.com",
	types.PlatformZhihu:    "zhihu.com",
	types.PlatformTieba:    "tieba.baidu.com",
}

func platformSite(p string) string {
	platform, _ := types.ParsePlatform(p)
	return "site:" + platformSites[platform]
}
