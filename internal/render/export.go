// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/store"
	"github.com/pdiddy/report-engine/pkg/types"
)

// ErrNoDocument is returned when a run has no document to export.
var ErrNoDocument = errors.New("no report document to export")

// Exporter renders a completed run's document and stores the PDF next to
// it.
type Exporter struct {
	Chain  *Chain
	Store  store.BlobStore
	Logger *zap.Logger
}

// Exported describes a stored PDF.
type Exported struct {
	Name     string `json:"pdf"`
	Renderer string `json:"renderer"`
	Bytes    int    `json:"bytes"`
}

// Export renders the run's HTML artifact, falling back to the document,
// and writes report.pdf in the same directory.
func (e *Exporter) Export(ctx context.Context, a types.Artifacts, title string) (Exported, error) {
	source := a.HTML
	if source == "" {
		source = a.Document
	}
	if source == "" {
		return Exported{}, ErrNoDocument
	}
	data, err := e.Store.Get(ctx, source)
	if err != nil {
		return Exported{}, fmt.Errorf("loading %s: %w", source, err)
	}

	doc := Document{Text: string(data), Format: formatOf(source), Title: title}
	pdf, renderer, err := e.Chain.Render(ctx, doc)
	if err != nil {
		return Exported{}, err
	}

	name := path.Join(path.Dir(source), "report.pdf")
	if err := e.Store.Put(ctx, name, pdf); err != nil {
		return Exported{}, fmt.Errorf("storing pdf: %w", err)
	}
	if e.Logger != nil {
		e.Logger.Info("pdf exported",
			zap.String("pdf", name),
			zap.String("renderer", renderer),
			zap.Int("bytes", len(pdf)))
	}
	return Exported{Name: name, Renderer: renderer, Bytes: len(pdf)}, nil
}

func formatOf(name string) types.DocumentFormat {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return types.FormatMarkdown
	default:
		return types.FormatHTML
	}
}
