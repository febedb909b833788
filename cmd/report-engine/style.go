// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true)
	stageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
)

const barWidth = 30

// progressBar renders pct as a fixed-width bar.
func progressBar(pct int) string {
	pct = max(0, min(pct, 100))
	filled := pct * barWidth / 100
	return okStyle.Render(strings.Repeat("█", filled)) +
		mutedStyle.Render(strings.Repeat("░", barWidth-filled))
}

// table renders rows under headers with padded, aligned columns.
func table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i := range widths {
			var cell string
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = style.Width(widths[i] + 2).Render(cell)
		}
		return strings.Join(parts, mutedStyle.Render("│"))
	}

	var sb strings.Builder
	sb.WriteString(line(headers, cellStyle.Bold(true)))
	sb.WriteString("\n")
	total := len(widths) - 1
	for _, w := range widths {
		total += w + 2
	}
	sb.WriteString(mutedStyle.Render(strings.Repeat("─", total)))
	sb.WriteString("\n")
	for _, row := range rows {
		sb.WriteString(line(row, cellStyle))
		sb.WriteString("\n")
	}
	return sb.String()
}
