// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pdiddy/report-engine/internal/container"
)

// ContainerPDF runs wkhtmltopdf from a container image with the document
// directory mounted at /work.
type ContainerPDF struct {
	Image string

	// Runtime is detected on first use when nil.
	Runtime container.Runtime

	mu       sync.Mutex
	detected bool
}

func (c *ContainerPDF) Name() string { return "container" }

func (c *ContainerPDF) runtime(ctx context.Context) container.Runtime {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Runtime == nil && !c.detected {
		c.detected = true
		if rt, err := container.DetectRuntime(ctx); err == nil {
			c.Runtime = rt
		}
	}
	return c.Runtime
}

func (c *ContainerPDF) Available(ctx context.Context) bool {
	return c.Image != "" && c.runtime(ctx) != nil
}

func (c *ContainerPDF) Render(ctx context.Context, doc Document) ([]byte, error) {
	rt := c.runtime(ctx)
	if rt == nil {
		return nil, fmt.Errorf("no container runtime")
	}
	src, err := asHTML(doc)
	if err != nil {
		return nil, err
	}
	in, cleanup, err := writeTemp(src)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	dir := filepath.Dir(in)
	err = rt.Run(ctx, container.RunSpec{
		Image:   c.Image,
		Mounts:  map[string]string{dir: "/work"},
		Workdir: "/work",
		Args: []string{
			"--quiet",
			"--encoding", "utf-8",
			"--enable-local-file-access",
			"report.html", "report.pdf",
		},
	})
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, "report.pdf"))
	if err != nil {
		return nil, fmt.Errorf("reading wkhtmltopdf output: %w", err)
	}
	return data, nil
}
