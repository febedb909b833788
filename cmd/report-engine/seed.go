// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/report-engine/internal/tools"
)

var seedCmd = &cobra.Command{
	Use:   "seed <posts.yaml>...",
	Short: "Load posts and comments into the opinion database",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := tools.OpenOpinionDB(cfg.Tools.DBPath, cfg.Research.MaxSearchResults)
		if err != nil {
			return err
		}
		defer db.Close()

		total := 0
		for _, file := range args {
			posts, err := tools.LoadPosts(file)
			if err != nil {
				return err
			}
			if err := db.Ingest(cmd.Context(), posts); err != nil {
				return fmt.Errorf("ingesting %s: %w", file, err)
			}
			total += len(posts)
		}
		fmt.Printf("%s %d posts into %s\n", okStyle.Render("seeded"), total, cfg.Tools.DBPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
