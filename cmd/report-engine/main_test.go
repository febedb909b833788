// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/report-engine/internal/render"
	"github.com/pdiddy/report-engine/internal/secrets"
	"github.com/pdiddy/report-engine/internal/store"
	"github.com/pdiddy/report-engine/pkg/types"
)

func TestLoadConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("REPORT_ENGINE_REPORT_SECTION_COUNT", "3")
	t.Setenv("REPORT_ENGINE_LLM_PROVIDER", "gemini")
	t.Setenv("REPORT_ENGINE_RENDER_TIMEOUT", "45s")
	initConfig()

	require.NoError(t, loadConfig(secrets.Set{secrets.GeminiAPIKey: "gem-key"}))
	assert.Equal(t, 3, cfg.Report.SectionCount)
	assert.Equal(t, types.ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gem-key", cfg.LLM.APIKey)
	assert.Equal(t, 2, cfg.Research.MaxReflections)
	assert.Equal(t, "logs/report.log", cfg.Log.File)
	assert.Equal(t, "45s", cfg.Render.Timeout.String())
	assert.Equal(t, "final_reports", cfg.Report.OutputDir)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("REPORT_ENGINE_LLM_PROVIDER", "mystery")
	initConfig()

	err := loadConfig(secrets.Set{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "mystery"`)
}

func TestProgressBar(t *testing.T) {
	for _, pct := range []int{-5, 0, 37, 100, 140} {
		assert.Equal(t, barWidth, lipgloss.Width(progressBar(pct)), "pct %d", pct)
	}
}

func TestTable(t *testing.T) {
	out := table([]string{"engine", "files"}, [][]string{
		{"market", "12"},
		{"customer", "3"},
		{"compete"},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 5)
	for _, l := range lines {
		assert.Equal(t, lipgloss.Width(lines[0]), lipgloss.Width(l), l)
	}
	assert.Contains(t, lines[2], "market")
}

func TestFindArtifacts(t *testing.T) {
	ctx := context.Background()
	blobs, err := store.NewFSStore(t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{
		"report_a/report.md",
		"report_a/report.html",
		"report_a/state.json",
		"report_a/nested/other.md",
		"report_ab/report.md",
	} {
		require.NoError(t, blobs.Put(ctx, name, []byte("x")))
	}

	a, err := findArtifacts(ctx, blobs, "report_a/")
	require.NoError(t, err)
	assert.Equal(t, types.Artifacts{
		Document: "report_a/report.md",
		HTML:     "report_a/report.html",
		State:    "report_a/state.json",
	}, a)

	_, err = findArtifacts(ctx, blobs, "missing")
	assert.ErrorIs(t, err, render.ErrNoDocument)
}
