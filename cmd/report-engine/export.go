// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/report-engine/internal/render"
	"github.com/pdiddy/report-engine/internal/store"
	"github.com/pdiddy/report-engine/pkg/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render an existing report to PDF",
	Long: `Export re-renders a finished report through the configured renderer chain
and writes report.pdf into its directory under report.output_dir.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("task-dir", "", "report directory relative to report.output_dir (required)")
	exportCmd.Flags().String("title", "", "document title")
	_ = exportCmd.MarkFlagRequired("task-dir")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("task-dir")
	title, _ := cmd.Flags().GetString("title")

	blobs, err := store.NewFSStore(cfg.Report.OutputDir)
	if err != nil {
		return err
	}
	a, err := findArtifacts(cmd.Context(), blobs, dir)
	if err != nil {
		return err
	}
	exp, err := newExporter(blobs, nil)
	if err != nil {
		return err
	}
	if title == "" {
		title = dir
	}

	out, err := exp.Export(cmd.Context(), a, title)
	var chainErr *render.ChainError
	if errors.As(err, &chainErr) {
		rows := make([][]string, 0, len(chainErr.Attempts))
		for _, at := range chainErr.Attempts {
			state := errorStyle.Render(at.Error)
			if at.Skipped {
				state = mutedStyle.Render("unavailable")
			}
			rows = append(rows, []string{at.Renderer, state})
		}
		fmt.Print(table([]string{"renderer", "result"}, rows))
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (%s, %d bytes)\n", okStyle.Render("pdf"), blobs.Path(out.Name), out.Renderer, out.Bytes)
	return nil
}

// findArtifacts locates the HTML and markdown documents of a report directory.
func findArtifacts(ctx context.Context, blobs store.BlobStore, dir string) (types.Artifacts, error) {
	dir = strings.Trim(dir, "/")
	names, err := blobs.List(ctx, dir+"/")
	if err != nil {
		return types.Artifacts{}, err
	}
	var a types.Artifacts
	for _, name := range names {
		if path.Dir(name) != dir {
			continue
		}
		switch path.Ext(name) {
		case ".html":
			a.HTML = name
		case ".md", ".markdown":
			a.Document = name
		case ".json":
			a.State = name
		}
	}
	if a.HTML == "" && a.Document == "" {
		return a, fmt.Errorf("no report document in %s: %w", dir, render.ErrNoDocument)
	}
	return a, nil
}
