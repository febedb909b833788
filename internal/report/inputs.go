// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/prompt"
	"github.com/pdiddy/report-engine/internal/research"
	"github.com/pdiddy/report-engine/pkg/types"
)

// loadUpstream reads the newest report of every engine and the tail of the
// forum log named in res. Unreadable files are logged and skipped.
func loadUpstream(res *types.ReadinessResult, maxChars int, logger *zap.Logger) prompt.Upstream {
	var up prompt.Upstream
	if res == nil {
		return up
	}

	names := make([]string, 0, len(res.LatestFiles))
	for name := range res.LatestFiles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := res.LatestFiles[name]
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable engine report", zap.String("engine", name), zap.Error(err))
			continue
		}
		if up.Reports == nil {
			up.Reports = make(map[string]string)
		}
		up.Reports[name] = research.Truncate(string(data), maxChars)
	}

	if res.ExtraFile != "" {
		data, err := os.ReadFile(res.ExtraFile)
		if err != nil {
			logger.Debug("forum log unavailable", zap.String("path", res.ExtraFile), zap.Error(err))
		} else {
			up.ForumLogs = tail(string(data), maxChars)
		}
	}
	return up
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// describeUpstream is a log-friendly summary of up.
func describeUpstream(up prompt.Upstream) string {
	return fmt.Sprintf("%d engine reports, %d forum log chars", len(up.Reports), len([]rune(up.ForumLogs)))
}
