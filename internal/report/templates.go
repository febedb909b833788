// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Template is a report outline stored as a markdown file. The first line of
// the file describes it.
type Template struct {
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
	Size        int    `json:"size"`
	Body        string `json:"-"`
}

// ListTemplates returns the *.md templates in dir sorted by name. A missing
// directory has no templates.
func ListTemplates(dir string) ([]Template, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading template dir %s: %w", dir, err)
	}

	var out []Template
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", e.Name(), err)
		}
		body := string(data)
		out = append(out, Template{
			Name:        strings.TrimSuffix(e.Name(), ".md"),
			Filename:    e.Name(),
			Description: describe(body),
			Size:        len(body),
			Body:        body,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func describe(body string) string {
	line, _, _ := strings.Cut(body, "\n")
	line = strings.TrimSpace(strings.TrimLeft(line, "# "))
	if line == "" {
		return "No description"
	}
	return line
}

// findTemplate matches name against template names and filenames.
func findTemplate(templates []Template, name string) (Template, bool) {
	name = strings.TrimSpace(name)
	for _, t := range templates {
		if strings.EqualFold(t.Name, name) || strings.EqualFold(t.Filename, name) {
			return t, true
		}
	}
	return Template{}, false
}
