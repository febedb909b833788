// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/container"
	"github.com/pdiddy/report-engine/internal/store"
	"github.com/pdiddy/report-engine/pkg/types"
)

// minimalPDF builds a one-page PDF with a correct cross-reference table.
func minimalPDF() []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objs)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return []byte(b.String())
}

type fakeRenderer struct {
	name      string
	available bool
	out       []byte
	err       error
	calls     int
	got       Document
}

func (f *fakeRenderer) Name() string                   { return f.name }
func (f *fakeRenderer) Available(context.Context) bool { return f.available }
func (f *fakeRenderer) Render(_ context.Context, d Document) ([]byte, error) {
	f.calls++
	f.got = d
	return f.out, f.err
}

type exportEvent struct {
	renderer string
	failed   bool
}

type recordingObserver struct{ events []exportEvent }

func (r *recordingObserver) ObserveExport(renderer string, _ time.Duration, err error) {
	r.events = append(r.events, exportEvent{renderer, err != nil})
}

func TestChainFirstSuccessWins(t *testing.T) {
	pdf := minimalPDF()
	a := &fakeRenderer{name: "a", available: true, err: errors.New("boom")}
	b := &fakeRenderer{name: "b", available: false}
	c := &fakeRenderer{name: "c", available: true, out: pdf}
	d := &fakeRenderer{name: "d", available: true, out: pdf}
	obs := &recordingObserver{}

	chain := &Chain{Renderers: []Renderer{a, b, c, d}, Observer: obs, Logger: zap.NewNop()}
	data, name, err := chain.Render(context.Background(), Document{Text: "<p>x</p>", Format: types.FormatHTML})
	require.NoError(t, err)
	assert.Equal(t, "c", name)
	assert.Equal(t, pdf, data)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 0, b.calls)
	assert.Equal(t, 0, d.calls)
	assert.Equal(t, []exportEvent{{"a", true}, {"c", false}}, obs.events)
}

func TestChainRejectsInvalidOutput(t *testing.T) {
	bad := &fakeRenderer{name: "bad", available: true, out: []byte("not a pdf")}
	good := &fakeRenderer{name: "good", available: true, out: minimalPDF()}

	_, name, err := (&Chain{Renderers: []Renderer{bad, good}}).Render(context.Background(), Document{})
	require.NoError(t, err)
	assert.Equal(t, "good", name)

	_, _, err = (&Chain{Renderers: []Renderer{bad}, SkipVerify: false}).Render(context.Background(), Document{})
	assert.ErrorIs(t, err, ErrAllFailed)
	assert.ErrorContains(t, err, "bad: ")
}

func TestChainAllFailed(t *testing.T) {
	chain := &Chain{Renderers: []Renderer{
		&fakeRenderer{name: "a", available: true, err: errors.New("first")},
		&fakeRenderer{name: "b", available: false},
		&fakeRenderer{name: "c", available: true, err: errors.New("second")},
	}}
	_, _, err := chain.Render(context.Background(), Document{})
	require.ErrorIs(t, err, ErrAllFailed)

	var ce *ChainError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []Attempt{
		{Renderer: "a", Error: "first"},
		{Renderer: "b", Skipped: true},
		{Renderer: "c", Error: "second"},
	}, ce.Attempts)
	assert.Equal(t, "all renderers failed: a: first; c: second", err.Error())
}

func TestChainNoRenderer(t *testing.T) {
	chain := &Chain{Renderers: []Renderer{&fakeRenderer{name: "a"}}}
	_, _, err := chain.Render(context.Background(), Document{})
	assert.ErrorIs(t, err, ErrNoRenderer)

	_, _, err = (&Chain{}).Render(context.Background(), Document{})
	assert.ErrorIs(t, err, ErrNoRenderer)
}

func TestChainContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &fakeRenderer{name: "a", available: true, out: minimalPDF()}
	_, _, err := (&Chain{Renderers: []Renderer{r}}).Render(ctx, Document{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.calls)
}

func TestNewChain(t *testing.T) {
	chain, err := NewChain(types.RenderConfig{
		Renderers:      []string{"chrome", "Container", " rod ", "markdown"},
		ContainerImage: "img",
		Timeout:        time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, chain.Renderers, 4)
	assert.Equal(t, time.Minute, chain.Timeout)

	var names []string
	for _, r := range chain.Renderers {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"chrome", "container", "rod", "markdown"}, names)

	md := chain.Renderers[3].(*MarkdownPDF)
	inner := md.Inner.(*asRenderer)
	assert.Len(t, inner.chain.Renderers, 3)
	assert.True(t, inner.chain.SkipVerify)

	_, err = NewChain(types.RenderConfig{Renderers: []string{"chrome", "latex"}}, nil)
	assert.ErrorContains(t, err, `unknown renderer "latex"`)
}

func TestMarkdownPDFSimplifiesHTML(t *testing.T) {
	inner := &fakeRenderer{name: "html", available: true, out: []byte("%PDF-")}
	m := &MarkdownPDF{Inner: inner}
	assert.True(t, m.Available(context.Background()))

	src := `<html><head><script>alert(1)</script></head><body><h1>Report</h1><p>Body <strong>text</strong>.</p></body></html>`
	_, err := m.Render(context.Background(), Document{Text: src, Format: types.FormatHTML, Title: "T"})
	require.NoError(t, err)
	assert.Equal(t, types.FormatHTML, inner.got.Format)
	assert.Contains(t, inner.got.Text, "<h1>Report</h1>")
	assert.Contains(t, inner.got.Text, "<strong>text</strong>")
	assert.NotContains(t, inner.got.Text, "alert(1)")
	assert.Contains(t, inner.got.Text, "<title>T</title>")

	assert.False(t, (&MarkdownPDF{}).Available(context.Background()))
	assert.False(t, (&MarkdownPDF{Inner: &fakeRenderer{}}).Available(context.Background()))
}

func TestMarkdownPDFInnerFailure(t *testing.T) {
	m := &MarkdownPDF{Inner: &fakeRenderer{name: "html", available: true, err: errors.New("no chrome")}}
	_, err := m.Render(context.Background(), Document{Text: "# x", Format: types.FormatMarkdown})
	assert.ErrorContains(t, err, "no chrome")
}

func TestMarkdownToHTML(t *testing.T) {
	out, err := MarkdownToHTML("# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n", "Weekly <report>")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Title</h1>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<title>Weekly &lt;report&gt;</title>")
}

func TestHTMLToMarkdown(t *testing.T) {
	src := `<html><body>
<h2>Findings</h2>
<p>Sales rose <em>sharply</em> per <a href="https://example.com">source</a>.</p>
<ul><li>one</li><li>two</li></ul>
<ol><li>first</li><li>second</li></ol>
<table><tr><th>k</th><th>v</th></tr><tr><td>a</td><td>1</td></tr></table>
</body></html>`
	md, err := HTMLToMarkdown(src)
	require.NoError(t, err)
	assert.Contains(t, md, "## Findings")
	assert.Contains(t, md, "Sales rose _sharply_ per [source](https://example.com).")
	assert.Contains(t, md, "- one\n- two")
	assert.Contains(t, md, "1. first\n2. second")
	assert.Contains(t, md, "| k | v |\n| --- | --- |\n| a | 1 |")
	assert.NotContains(t, md, "\n\n\n")
}

func TestHTMLToMarkdownKeepsHeadingLevels(t *testing.T) {
	body := strings.Repeat("<p>Revenue grew in every region during the quarter, led by strong demand for storage products.</p>", 6)
	src := `<html><body><article><h1>Quarterly Report</h1>` + body + `<h2>Outlook</h2>` + body + `</article></body></html>`
	md, err := HTMLToMarkdown(src)
	require.NoError(t, err)
	assert.Contains(t, md, "# Quarterly Report\n")
	assert.NotContains(t, md, "## Quarterly Report")
	assert.Contains(t, md, "## Outlook\n")
}

func TestVerifyPDF(t *testing.T) {
	pages, err := VerifyPDF(minimalPDF())
	require.NoError(t, err)
	assert.Equal(t, 1, pages)

	for _, bad := range [][]byte{nil, []byte("hello"), []byte("%PDF-1.4\ngarbage")} {
		_, err := VerifyPDF(bad)
		assert.ErrorIs(t, err, ErrNotPDF)
	}
}

// fakeRuntime stands in for docker: it writes the PDF wkhtmltopdf would
// produce into the mounted directory.
type fakeRuntime struct {
	spec container.RunSpec
	out  []byte
	err  error
}

func (f *fakeRuntime) Name() string                              { return "fake" }
func (f *fakeRuntime) Available(context.Context) bool            { return true }
func (f *fakeRuntime) ImageExists(context.Context, string) error { return nil }
func (f *fakeRuntime) Run(_ context.Context, spec container.RunSpec) error {
	f.spec = spec
	if f.err != nil {
		return f.err
	}
	for host := range spec.Mounts {
		return os.WriteFile(filepath.Join(host, "report.pdf"), f.out, 0o644)
	}
	return errors.New("no mount")
}

func TestContainerPDF(t *testing.T) {
	rt := &fakeRuntime{out: minimalPDF()}
	c := &ContainerPDF{Image: "wk:latest", Runtime: rt}
	require.True(t, c.Available(context.Background()))

	data, err := c.Render(context.Background(), Document{Text: "# Hi", Format: types.FormatMarkdown})
	require.NoError(t, err)
	assert.Equal(t, rt.out, data)
	assert.Equal(t, "wk:latest", rt.spec.Image)
	assert.Equal(t, "/work", rt.spec.Workdir)
	assert.Contains(t, rt.spec.Args, "--enable-local-file-access")
	assert.Equal(t, []string{"report.html", "report.pdf"}, rt.spec.Args[len(rt.spec.Args)-2:])

	rt.err = errors.New("exit 1")
	_, err = c.Render(context.Background(), Document{Text: "<p>x</p>", Format: types.FormatHTML})
	assert.ErrorContains(t, err, "exit 1")

	assert.False(t, (&ContainerPDF{Runtime: rt}).Available(context.Background()))
}

func TestExporter(t *testing.T) {
	ctx := context.Background()
	fs, err := store.NewFSStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.Put(ctx, "r1/report.md", []byte("# Report")))
	require.NoError(t, fs.Put(ctx, "r1/report.html", []byte("<h1>Report</h1>")))

	r := &fakeRenderer{name: "chrome", available: true, out: minimalPDF()}
	e := &Exporter{Chain: &Chain{Renderers: []Renderer{r}}, Store: fs}

	got, err := e.Export(ctx, types.Artifacts{Document: "r1/report.md", HTML: "r1/report.html"}, "Report")
	require.NoError(t, err)
	assert.Equal(t, Exported{Name: "r1/report.pdf", Renderer: "chrome", Bytes: len(r.out)}, got)
	assert.Equal(t, types.FormatHTML, r.got.Format)
	assert.Equal(t, "Report", r.got.Title)

	stored, err := fs.Get(ctx, "r1/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, r.out, stored)

	_, err = e.Export(ctx, types.Artifacts{Document: "r1/report.md"}, "")
	require.NoError(t, err)
	assert.Equal(t, types.FormatMarkdown, r.got.Format)

	_, err = e.Export(ctx, types.Artifacts{}, "")
	assert.ErrorIs(t, err, ErrNoDocument)

	_, err = e.Export(ctx, types.Artifacts{HTML: "missing/report.html"}, "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
