// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package render exports report documents to PDF through an ordered chain
// of renderer strategies.
package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/pkg/types"
)

var (
	// ErrNoRenderer is returned when no strategy in the chain is available.
	ErrNoRenderer = errors.New("no renderer available")

	// ErrAllFailed is matched by a *ChainError.
	ErrAllFailed = errors.New("all renderers failed")
)

// Document is the input of a render.
type Document struct {
	Text   string
	Format types.DocumentFormat
	Title  string
}

// Renderer turns a document into PDF bytes.
type Renderer interface {
	Name() string

	// Available reports whether the strategy can run in this environment.
	Available(ctx context.Context) bool

	Render(ctx context.Context, doc Document) ([]byte, error)
}

// Attempt is the outcome of one strategy in a chain run.
type Attempt struct {
	Renderer string `json:"renderer"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ChainError lists every attempt of a failed chain run.
type ChainError struct {
	Attempts []Attempt
}

func (e *ChainError) Error() string {
	var parts []string
	for _, a := range e.Attempts {
		if !a.Skipped {
			parts = append(parts, a.Renderer+": "+a.Error)
		}
	}
	return "all renderers failed: " + strings.Join(parts, "; ")
}

// Is reports whether target is ErrAllFailed.
func (e *ChainError) Is(target error) bool { return target == ErrAllFailed }

// ExportObserver receives one event per attempted strategy.
type ExportObserver interface {
	ObserveExport(renderer string, elapsed time.Duration, err error)
}

// Chain tries renderers in order and stops at the first success.
type Chain struct {
	Renderers []Renderer

	// Timeout bounds each attempt. Zero means no bound beyond ctx.
	Timeout time.Duration

	// SkipVerify disables the PDF structure check on renderer output.
	SkipVerify bool

	Logger   *zap.Logger
	Observer ExportObserver
}

// Render returns the PDF produced by the first available strategy that
// succeeds, and that strategy's name.
func (c *Chain) Render(ctx context.Context, doc Document) ([]byte, string, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var attempts []Attempt
	tried := 0
	for _, r := range c.Renderers {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		if !r.Available(ctx) {
			attempts = append(attempts, Attempt{Renderer: r.Name(), Skipped: true})
			logger.Debug("renderer unavailable", zap.String("renderer", r.Name()))
			continue
		}
		tried++

		data, err := c.attempt(ctx, r, doc)
		if err == nil {
			logger.Info("document rendered", zap.String("renderer", r.Name()), zap.Int("bytes", len(data)))
			return data, r.Name(), nil
		}
		attempts = append(attempts, Attempt{Renderer: r.Name(), Error: err.Error()})
		logger.Warn("renderer failed, trying next", zap.String("renderer", r.Name()), zap.Error(err))
	}

	if tried == 0 {
		return nil, "", ErrNoRenderer
	}
	return nil, "", &ChainError{Attempts: attempts}
}

func (c *Chain) attempt(ctx context.Context, r Renderer, doc Document) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	start := time.Now()
	data, err := r.Render(ctx, doc)
	if err == nil && !c.SkipVerify {
		if _, verr := VerifyPDF(data); verr != nil {
			err = verr
		}
	}
	if c.Observer != nil {
		c.Observer.ObserveExport(r.Name(), time.Since(start), err)
	}
	return data, err
}

// asRenderer exposes a chain as a single strategy.
type asRenderer struct {
	chain *Chain
	name  string
}

func (a *asRenderer) Name() string { return a.name }

func (a *asRenderer) Available(ctx context.Context) bool {
	for _, r := range a.chain.Renderers {
		if r.Available(ctx) {
			return true
		}
	}
	return false
}

func (a *asRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	data, _, err := a.chain.Render(ctx, doc)
	return data, err
}

// NewChain builds the chain named by cfg.Renderers. Unknown names are an
// error. The markdown strategy renders through the HTML strategies listed
// before it.
func NewChain(cfg types.RenderConfig, logger *zap.Logger) (*Chain, error) {
	chain := &Chain{Timeout: cfg.Timeout, Logger: logger}
	var direct []Renderer
	for _, name := range cfg.Renderers {
		var r Renderer
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "chrome":
			r = &ChromePDF{ExecPath: cfg.ChromePath}
		case "rod":
			r = &RodPDF{ExecPath: cfg.ChromePath}
		case "container":
			r = &ContainerPDF{Image: cfg.ContainerImage}
		case "markdown":
			inner := &Chain{Renderers: append([]Renderer(nil), direct...), SkipVerify: true, Logger: logger}
			r = &MarkdownPDF{Inner: &asRenderer{chain: inner, name: "html"}}
		default:
			return nil, fmt.Errorf("unknown renderer %q (known: chrome, rod, container, markdown)", name)
		}
		if _, ok := r.(*MarkdownPDF); !ok {
			direct = append(direct, r)
		}
		chain.Renderers = append(chain.Renderers, r)
	}
	return chain, nil
}
