// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pdiddy/report-engine/internal/report"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List report templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := report.ListTemplates(cfg.Report.TemplateDir)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println(mutedStyle.Render("no templates in " + cfg.Report.TemplateDir))
			return nil
		}
		rows := make([][]string, 0, len(list))
		for _, t := range list {
			rows = append(rows, []string{t.Name, t.Description, strconv.Itoa(t.Size)})
		}
		fmt.Print(table([]string{"name", "description", "bytes"}, rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}
