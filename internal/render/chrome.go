// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

var chromeNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
}

// findChrome returns execPath when set, else the first Chrome-like binary
// on PATH, else "".
func findChrome(execPath string) string {
	if execPath != "" {
		if _, err := os.Stat(execPath); err == nil {
			return execPath
		}
		return ""
	}
	for _, name := range chromeNames {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// writeTemp writes html to a fresh temp dir and returns the file path and
// a cleanup func.
func writeTemp(html string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "report-render-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }
	path := filepath.Join(dir, "report.html")
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return path, cleanup, nil
}

func fileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// ChromePDF prints HTML to PDF in headless Chrome through the DevTools
// protocol.
type ChromePDF struct {
	// ExecPath overrides Chrome discovery on PATH.
	ExecPath string
}

func (c *ChromePDF) Name() string { return "chrome" }

func (c *ChromePDF) Available(context.Context) bool { return findChrome(c.ExecPath) != "" }

func (c *ChromePDF) Render(ctx context.Context, doc Document) ([]byte, error) {
	bin := findChrome(c.ExecPath)
	if bin == "" {
		return nil, fmt.Errorf("chrome not found")
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

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(bin),
		chromedp.Flag("headless", true),
		chromedp.DisableGPU,
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var pdf []byte
	err = chromedp.Run(bctx,
		chromedp.Navigate(fileURL(path)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("printing with chrome: %w", err)
	}
	return pdf, nil
}
