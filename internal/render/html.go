// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"regexp"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pdiddy/report-engine/pkg/types"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: "Noto Sans", "Helvetica Neue", Arial, sans-serif; line-height: 1.6; margin: 2em auto; max-width: 48em; color: #222; }
h1, h2, h3 { color: #1a3c6e; }
table { border-collapse: collapse; margin: 1em 0; }
th, td { border: 1px solid #ccc; padding: 0.4em 0.8em; }
blockquote { border-left: 4px solid #ddd; margin-left: 0; padding-left: 1em; color: #555; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// MarkdownToHTML renders md as a standalone HTML page.
func MarkdownToHTML(md, title string) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	var out bytes.Buffer
	err := pageTmpl.Execute(&out, map[string]any{
		"Title": title,
		"Body":  template.HTML(body.String()),
	})
	if err != nil {
		return "", fmt.Errorf("rendering page: %w", err)
	}
	return out.String(), nil
}

// asHTML returns doc as HTML, converting markdown.
func asHTML(doc Document) (string, error) {
	if doc.Format == types.FormatMarkdown {
		return MarkdownToHTML(doc.Text, doc.Title)
	}
	return doc.Text, nil
}

var (
	blankLines    = regexp.MustCompile(`\n{3,}`)
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
)

// HTMLToMarkdown reduces an HTML report to markdown. Readability picks the
// main content when it keeps most of the text; otherwise the whole body is
// converted. Headings keep their source level even where readability
// demoted them.
func HTMLToMarkdown(src string) (string, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	fullText := len(strings.Fields(textOf(root)))
	levels := headingLevels(root)

	base, _ := url.Parse("file:///report.html")
	if article, err := readability.FromReader(strings.NewReader(src), base); err == nil && article.Content != "" {
		if len(strings.Fields(article.TextContent))*2 >= fullText {
			if node, err := html.Parse(strings.NewReader(article.Content)); err == nil {
				root = node
			}
		}
	}

	w := mdWriter{levels: levels}
	w.walk(root)
	out := trailingSpace.ReplaceAllString(w.b.String(), "\n")
	out = blankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out) + "\n", nil
}

// headingLevels maps heading text to the first level it appears at.
func headingLevels(root *html.Node) map[string]int {
	levels := make(map[string]int)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isHeading(n.DataAtom) {
			key := strings.Join(strings.Fields(textOf(n)), " ")
			if _, ok := levels[key]; !ok {
				levels[key] = int(n.Data[1] - '0')
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return levels
}

func isHeading(a atom.Atom) bool {
	switch a {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// mdWriter converts an HTML tree to markdown.
type mdWriter struct {
	b      strings.Builder
	list   []atom.Atom
	item   []int
	levels map[string]int
}

func (w *mdWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		text := strings.Join(strings.Fields(n.Data), " ")
		if text == "" {
			return
		}
		if s := w.b.String(); len(s) > 0 && !strings.HasSuffix(s, "\n") && !strings.HasSuffix(s, " ") &&
			(n.Data[0] == ' ' || n.Data[0] == '\n' || n.Data[0] == '\t') {
			w.b.WriteByte(' ')
		}
		w.b.WriteString(text)
		if last := n.Data[len(n.Data)-1]; last == ' ' || last == '\n' || last == '\t' {
			w.b.WriteByte(' ')
		}
		return
	case html.ElementNode:
	default:
		w.children(n)
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Head, atom.Noscript:
		return
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		if orig, ok := w.levels[strings.Join(strings.Fields(textOf(n)), " ")]; ok {
			level = orig
		}
		w.block(strings.Repeat("#", level) + " ")
		w.children(n)
		w.b.WriteString("\n\n")
	case atom.P, atom.Div, atom.Section, atom.Article:
		w.block("")
		w.children(n)
		w.b.WriteString("\n\n")
	case atom.Br:
		w.b.WriteString("\n")
	case atom.Hr:
		w.block("---\n\n")
	case atom.Strong, atom.B:
		w.wrap(n, "**")
	case atom.Em, atom.I:
		w.wrap(n, "_")
	case atom.Code:
		w.wrap(n, "`")
	case atom.A:
		href := attr(n, "href")
		if href == "" || strings.HasPrefix(href, "#") {
			w.children(n)
			return
		}
		w.b.WriteString("[")
		w.children(n)
		w.b.WriteString("](" + href + ")")
	case atom.Ul, atom.Ol:
		w.list = append(w.list, n.DataAtom)
		w.item = append(w.item, 0)
		w.block("")
		w.children(n)
		w.list = w.list[:len(w.list)-1]
		w.item = w.item[:len(w.item)-1]
		w.b.WriteString("\n")
	case atom.Li:
		depth := len(w.list)
		marker := "- "
		if depth > 0 && w.list[depth-1] == atom.Ol {
			w.item[depth-1]++
			marker = fmt.Sprintf("%d. ", w.item[depth-1])
		}
		w.newline()
		w.b.WriteString(strings.Repeat("  ", max(depth-1, 0)) + marker)
		w.children(n)
		w.newline()
	case atom.Blockquote:
		w.block("> ")
		w.children(n)
		w.b.WriteString("\n\n")
	case atom.Tr:
		w.newline()
		w.b.WriteString("|")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
				w.b.WriteString(" ")
				w.children(c)
				w.b.WriteString(" |")
			}
		}
		w.b.WriteString("\n")
		if isHeaderRow(n) {
			cells := 0
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && c.DataAtom == atom.Th {
					cells++
				}
			}
			w.b.WriteString("|" + strings.Repeat(" --- |", cells) + "\n")
		}
	case atom.Table:
		w.block("")
		w.children(n)
		w.b.WriteString("\n")
	default:
		w.children(n)
	}
}

func (w *mdWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *mdWriter) wrap(n *html.Node, mark string) {
	w.b.WriteString(mark)
	w.children(n)
	w.b.WriteString(mark)
}

// block starts a new block with prefix.
func (w *mdWriter) block(prefix string) {
	if s := w.b.String(); len(s) > 0 && !strings.HasSuffix(s, "\n\n") {
		if strings.HasSuffix(s, "\n") {
			w.b.WriteString("\n")
		} else {
			w.b.WriteString("\n\n")
		}
	}
	w.b.WriteString(prefix)
}

func (w *mdWriter) newline() {
	if s := w.b.String(); len(s) > 0 && !strings.HasSuffix(s, "\n") {
		w.b.WriteString("\n")
	}
}

func isHeaderRow(tr *html.Node) bool {
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Th {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
