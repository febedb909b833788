// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pdiddy/report-engine/internal/gate"
	"github.com/pdiddy/report-engine/pkg/types"
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Inspect and record the upstream input baseline",
	Long: `A report run needs at least one new file in every watched engine directory
since the baseline was recorded. The baseline is reset after each
successful run.`,
}

var baselineInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Record the baseline unless one exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := gate.New(cfg.Gate).InitializeBaseline()
		if err != nil {
			return err
		}
		fmt.Print(baselineTable(b))
		return nil
	},
}

var baselineResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Overwrite the baseline with the current directory state",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := gate.New(cfg.Gate).ResetBaseline()
		if err != nil {
			return err
		}
		fmt.Print(baselineTable(b))
		return nil
	},
}

var baselineCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether new upstream inputs are present",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := gate.New(cfg.Gate).CheckReady()
		if err != nil {
			return err
		}
		fmt.Print(readinessTable(res))
		if !res.Ready {
			return fmt.Errorf("inputs not ready: missing %v", res.Missing)
		}
		fmt.Println(okStyle.Render("ready"))
		return nil
	},
}

func init() {
	baselineCmd.AddCommand(baselineInitCmd, baselineResetCmd, baselineCheckCmd)
	rootCmd.AddCommand(baselineCmd)
}

func baselineTable(b types.FileBaseline) string {
	names := make([]string, 0, len(b.Dirs))
	for name := range b.Dirs {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		d := b.Dirs[name]
		latest := "-"
		if !d.LatestModTime.IsZero() {
			latest = d.LatestModTime.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{name, d.Path, strconv.Itoa(d.Count), latest})
	}
	return table([]string{"engine", "dir", "files", "latest"}, rows)
}

func readinessTable(res types.ReadinessResult) string {
	names := make([]string, 0, len(res.CurrentCounts))
	for name := range res.CurrentCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names)+1)
	for _, name := range names {
		state := errorStyle.Render("no new files")
		if f, ok := res.NewFilesFound[name]; ok {
			state = okStyle.Render("new: " + f)
		}
		rows = append(rows, []string{
			name,
			strconv.Itoa(res.BaselineCounts[name]),
			strconv.Itoa(res.CurrentCounts[name]),
			state,
		})
	}
	extra := errorStyle.Render("missing")
	if res.ExtraFileExists {
		extra = okStyle.Render("present")
	}
	if res.ExtraFile != "" {
		rows = append(rows, []string{res.ExtraFile, "", "", extra})
	}
	return table([]string{"engine", "baseline", "current", "state"}, rows)
}
