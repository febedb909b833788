// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"context"
	"fmt"

	"github.com/pdiddy/report-engine/pkg/types"
)

// MarkdownPDF is the fallback path: the document is reduced to markdown,
// re-rendered as plain styled HTML and printed by Inner. It recovers
// reports whose HTML defeats the direct strategies (scripts, remote assets,
// malformed markup).
type MarkdownPDF struct {
	Inner Renderer
}

func (m *MarkdownPDF) Name() string { return "markdown" }

func (m *MarkdownPDF) Available(ctx context.Context) bool {
	return m.Inner != nil && m.Inner.Available(ctx)
}

func (m *MarkdownPDF) Render(ctx context.Context, doc Document) ([]byte, error) {
	md := doc.Text
	if doc.Format != types.FormatMarkdown {
		var err error
		md, err = HTMLToMarkdown(doc.Text)
		if err != nil {
			return nil, err
		}
	}
	clean, err := MarkdownToHTML(md, doc.Title)
	if err != nil {
		return nil, err
	}
	data, err := m.Inner.Render(ctx, Document{Text: clean, Format: types.FormatHTML, Title: doc.Title})
	if err != nil {
		return nil, fmt.Errorf("rendering simplified document: %w", err)
	}
	return data, nil
}
