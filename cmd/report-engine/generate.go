// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/gate"
	"github.com/pdiddy/report-engine/internal/render"
	"github.com/pdiddy/report-engine/internal/report"
	"github.com/pdiddy/report-engine/internal/task"
	"github.com/pdiddy/report-engine/pkg/types"
)

// pollInterval is how often generate redraws progress.
var pollInterval = 500 * time.Millisecond

var generateCmd = &cobra.Command{
	Use:   "generate [query]",
	Short: "Generate one report in the foreground",
	Long: `Generate plans, researches and assembles a report for the query, printing
progress on stderr. Interrupting the command cancels the task.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().String("family", "", "report family: market, customer, compete or summary")
	generateCmd.Flags().String("template", "", "template name or literal template text")
	generateCmd.Flags().Bool("skip-gate", false, "run without checking for new upstream reports")
	generateCmd.Flags().Bool("preview", false, "render the finished report in the terminal")
	generateCmd.Flags().Bool("pdf", false, "export the finished report to PDF")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Close(shutdownCtx)
	}()

	query := "Public opinion analysis report"
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		query = args[0]
	}
	family, _ := cmd.Flags().GetString("family")
	tmpl, _ := cmd.Flags().GetString("template")
	skipGate, _ := cmd.Flags().GetBool("skip-gate")

	snap, err := a.tasks.Submit(task.Request{
		Query:          query,
		Family:         family,
		CustomTemplate: tmpl,
		SkipGate:       skipGate,
	})
	var notReady *gate.NotReadyError
	if errors.As(err, &notReady) {
		fmt.Fprintln(os.Stderr, errorStyle.Render("inputs not ready"))
		for _, m := range notReady.Result.Missing {
			fmt.Fprintf(os.Stderr, "  missing: %s\n", m)
		}
		fmt.Fprintln(os.Stderr, mutedStyle.Render("rerun with --skip-gate to generate anyway"))
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, titleStyle.Render("report "+snap.TaskID))
	final, err := follow(ctx, a.tasks, snap.TaskID)
	if err != nil {
		return err
	}
	switch final.Status {
	case types.TaskCompleted:
	case types.TaskCancelled:
		return fmt.Errorf("report cancelled")
	default:
		return fmt.Errorf("report failed: %s", final.ErrorMessage)
	}

	res, err := a.tasks.Result(snap.TaskID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", okStyle.Render("document"), a.store.Path(res.Artifacts.Document))
	fmt.Fprintf(os.Stderr, "%s %s\n", okStyle.Render("state"), a.store.Path(res.Artifacts.State))

	if want, _ := cmd.Flags().GetBool("pdf"); want && res.Artifacts.PDF == "" {
		out, err := a.tasks.ExportPDF(ctx, snap.TaskID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("pdf export failed"), err)
		} else {
			fmt.Fprintf(os.Stderr, "%s %s (%s)\n", okStyle.Render("pdf"), a.store.Path(out.Name), out.Renderer)
		}
	}

	if preview, _ := cmd.Flags().GetBool("preview"); preview {
		return printPreview(res)
	}
	return nil
}

// follow redraws progress until task id reaches a terminal status. ctx
// cancellation cancels the task.
func follow(ctx context.Context, tasks *task.Manager, id string) (types.TaskSnapshot, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		snap := tasks.Status(id)
		fmt.Fprintf(os.Stderr, "\r%s %3d%% %s", progressBar(snap.Progress), snap.Progress,
			stageStyle.Render(fmt.Sprintf("%-12s", snap.Stage)))
		if snap.Status.Terminal() {
			fmt.Fprintln(os.Stderr)
			if err := tasks.Wait(context.Background(), id); err != nil {
				return snap, err
			}
			return tasks.Status(id), nil
		}
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			if err := tasks.Cancel(id); err != nil {
				logger.Warn("cancelling task", zap.String("task_id", id), zap.Error(err))
			}
			return tasks.Status(id), nil
		case <-ticker.C:
		}
	}
}

// printPreview renders the document as styled markdown on stdout.
func printPreview(res *report.Result) error {
	md := res.Document
	if res.Format == types.FormatHTML {
		converted, err := render.HTMLToMarkdown(md)
		if err != nil {
			return fmt.Errorf("converting report for preview: %w", err)
		}
		md = converted
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return fmt.Errorf("creating preview renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("rendering preview: %w", err)
	}
	fmt.Print(out)
	return nil
}
