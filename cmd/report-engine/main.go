// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the report-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/logging"
	"github.com/pdiddy/report-engine/internal/secrets"
	"github.com/pdiddy/report-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	cfg    types.Config
	logger = zap.NewNop()
	runLog *logging.RunLog
)

// rootCmd is the base command for the report-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "report-engine",
	Short: "Multi-agent report generation over upstream analysis engines",
	Long: `report-engine plans a report into sections, researches each section with
search tools and an LLM, assembles the final document from the upstream
engine reports and a template, and exports it to PDF.

The serve command exposes the HTTP control surface; generate runs a single
report in the foreground.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		if err := loadConfig(s); err != nil {
			return err
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		logger, runLog, err = logging.New(cfg.Log, verbose)
		if err != nil {
			return err
		}
		if keys := s.Keys(); len(keys) > 0 {
			logger.Debug("loaded secrets", zap.Strings("keys", keys))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
		if runLog != nil {
			_ = runLog.Close()
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./report-engine.yaml or ~/.config/report-engine/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log at debug level")
}

// configKeys are bound to REPORT_ENGINE_* variables so the environment can
// set them without a config file.
var configKeys = []string{
	"server.listen", "server.allow_origins", "server.jwt_secret",
	"llm.provider", "llm.model", "llm.api_key", "llm.base_url", "llm.max_retries",
	"llm.max_tokens", "llm.temperature", "llm.timeout", "llm.user_agent",
	"research.max_reflections", "research.max_content_length", "research.max_search_results",
	"report.section_count", "report.family", "report.output_dir", "report.template_dir",
	"report.expert_review", "report.max_input_chars",
	"gate.extra_file", "gate.baseline_file", "gate.skip",
	"tools.db_path", "tools.web_search.endpoint", "tools.web_search.api_key", "tools.web_search.count",
	"render.renderers", "render.chrome_path", "render.container_image", "render.timeout", "render.auto_export",
	"schedule.cron", "schedule.query", "schedule.family",
	"log.level", "log.file",
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("report-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "report-engine"))
		}
	}

	viper.SetEnvPrefix("REPORT_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, k := range configKeys {
		_ = viper.BindEnv(k)
	}
	viper.SetDefault("research.max_reflections", 2)
	viper.SetDefault("log.file", "logs/report.log")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig decodes viper settings into cfg, fills empty credentials from
// s and applies defaults.
func loadConfig(s secrets.Set) error {
	var c types.Config
	if err := viper.Unmarshal(&c); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	c.Normalize()
	s.Fill(&c)
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg = c
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
