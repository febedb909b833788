// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"context"
	"fmt"
	"io"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodPDF prints HTML to PDF through go-rod. It finds a local browser the
// same way the chrome strategy does and falls back to rod's own lookup.
type RodPDF struct {
	ExecPath string
}

func (r *RodPDF) Name() string { return "rod" }

func (r *RodPDF) bin() string {
	if p := findChrome(r.ExecPath); p != "" {
		return p
	}
	if r.ExecPath != "" {
		return ""
	}
	p, _ := launcher.LookPath()
	return p
}

func (r *RodPDF) Available(context.Context) bool { return r.bin() != "" }

func (r *RodPDF) Render(ctx context.Context, doc Document) ([]byte, error) {
	bin := r.bin()
	if bin == "" {
		return nil, fmt.Errorf("no browser found for rod")
	}
	src, err := asHTML(doc)
	if err != nil {
		return nil, err
	}
	path, cleanup, err := writeTemp(src)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	l := launcher.New().Context(ctx).Bin(bin).Headless(true)
	defer l.Cleanup()
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	defer browser.Close()

	p, err := browser.Page(proto.TargetCreateTarget{URL: fileURL(path)})
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("loading page: %w", err)
	}

	stream, err := p.PDF(&proto.PagePrintToPDF{PrintBackground: true, PreferCSSPageSize: true})
	if err != nil {
		return nil, fmt.Errorf("printing with rod: %w", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("reading pdf stream: %w", err)
	}
	return data, nil
}
