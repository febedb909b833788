// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "report-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// AIConfig holds shared settings for components that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// LLMProvider selects the LLM backend.
type LLMProvider string

const (
	ProviderClaude LLMProvider = "claude"
	ProviderOpenAI LLMProvider = "openai"
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig configures the LLM collaborator used by every engine stage.
type LLMConfig struct {
	AIConfig   `yaml:",inline" mapstructure:",squash"`
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Provider selects the backend: claude, openai, or gemini.
	Provider LLMProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// BaseURL overrides the API endpoint. The openai provider accepts any
	// OpenAI-compatible gateway here.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxTokens caps the response length (default 8192).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature is the sampling temperature. Zero uses the provider default.
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
}

// ResearchConfig bounds the per-section reflection loop.
type ResearchConfig struct {
	// MaxReflections is the maximum number of reflection rounds after the
	// initial search (default 2). Zero disables reflection.
	MaxReflections int `json:"max_reflections" yaml:"max_reflections" mapstructure:"max_reflections"`

	// MaxContentLength truncates each search result's content, in characters
	// (default 20000).
	MaxContentLength int `json:"max_content_length" yaml:"max_content_length" mapstructure:"max_content_length"`

	// MaxSearchResults caps the number of items a single tool call may
	// contribute to a prompt (default 10).
	MaxSearchResults int `json:"max_search_results" yaml:"max_search_results" mapstructure:"max_search_results"`
}

// ReportConfig configures report planning, assembly and output.
type ReportConfig struct {
	// SectionCount is the number of sections planned per report (default 5).
	SectionCount int `json:"section_count" yaml:"section_count" mapstructure:"section_count"`

	// Family is the default report family: market, customer, compete, or
	// summary (HTML report over all upstream engines).
	Family string `json:"family" yaml:"family" mapstructure:"family"`

	// OutputDir receives documents, state snapshots and PDFs.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// TemplateDir holds report templates (*.md, first line is the description).
	TemplateDir string `json:"template_dir" yaml:"template_dir" mapstructure:"template_dir"`

	// ExpertReview enables a final review pass over the assembled document.
	ExpertReview bool `json:"expert_review" yaml:"expert_review" mapstructure:"expert_review"`

	// MaxInputChars truncates each upstream engine report passed to the
	// assembly prompt (default 30000).
	MaxInputChars int `json:"max_input_chars" yaml:"max_input_chars" mapstructure:"max_input_chars"`
}

// GateConfig configures the file readiness gate.
type GateConfig struct {
	// Dirs maps an engine name to the directory its reports are written to.
	Dirs map[string]string `json:"dirs" yaml:"dirs" mapstructure:"dirs"`

	// ExtraFile is a single file that must exist before a run (the forum log).
	ExtraFile string `json:"extra_file" yaml:"extra_file" mapstructure:"extra_file"`

	// BaselineFile persists the recorded baseline between processes.
	BaselineFile string `json:"baseline_file" yaml:"baseline_file" mapstructure:"baseline_file"`

	// Skip disables the readiness check at submit time.
	Skip bool `json:"skip" yaml:"skip" mapstructure:"skip"`
}

// WebSearchConfig configures the HTTP web search backend.
type WebSearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Endpoint is the web search API URL. Empty disables web search.
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// APIKey authenticates against the web search API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Count is the number of results requested per query (default 10).
	Count int `json:"count" yaml:"count" mapstructure:"count"`
}

// ToolsConfig configures the search tool backends.
type ToolsConfig struct {
	// DBPath is the SQLite opinion database path.
	DBPath string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`

	// WebSearch configures the optional web search backend.
	WebSearch WebSearchConfig `json:"web_search" yaml:"web_search" mapstructure:"web_search"`

	// Routes maps a tool name to a backend ("db" or "web"). Tools without a
	// route use the opinion database.
	Routes map[string]string `json:"routes" yaml:"routes" mapstructure:"routes"`
}

// RenderConfig configures document export.
type RenderConfig struct {
	// Renderers lists renderer strategies in the order they are tried
	// (default chrome, container, markdown).
	Renderers []string `json:"renderers" yaml:"renderers" mapstructure:"renderers"`

	// ChromePath overrides the Chrome/Chromium executable.
	ChromePath string `json:"chrome_path,omitempty" yaml:"chrome_path,omitempty" mapstructure:"chrome_path"`

	// ContainerImage is the wkhtmltopdf image used by the container renderer.
	ContainerImage string `json:"container_image" yaml:"container_image" mapstructure:"container_image"`

	// Timeout bounds a single render attempt (default 2m).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// AutoExport exports a PDF after every successful run.
	AutoExport bool `json:"auto_export" yaml:"auto_export" mapstructure:"auto_export"`
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	// Listen is the listen address (default ":8080").
	Listen string `json:"listen" yaml:"listen" mapstructure:"listen"`

	// AllowOrigins lists CORS origins (default "*").
	AllowOrigins []string `json:"allow_origins" yaml:"allow_origins" mapstructure:"allow_origins"`

	// JWTSecret enables HS256 bearer authentication on mutating routes.
	JWTSecret string `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty" mapstructure:"jwt_secret"`
}

// ScheduleConfig configures recurring report runs.
type ScheduleConfig struct {
	// Cron is a cron expression (e.g. "0 8 * * *"). Empty disables scheduling.
	Cron string `json:"cron" yaml:"cron" mapstructure:"cron"`

	// Query is the report query submitted at each tick.
	Query string `json:"query" yaml:"query" mapstructure:"query"`

	// Family is the report family of scheduled runs (default report.family).
	Family string `json:"family" yaml:"family" mapstructure:"family"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum level: debug, info, warn, error (default info).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// File receives a copy of every log entry for the /log endpoint.
	// Empty disables the file.
	File string `json:"file" yaml:"file" mapstructure:"file"`
}

// Config groups all component configurations.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server" mapstructure:"server"`
	LLM      LLMConfig      `json:"llm" yaml:"llm" mapstructure:"llm"`
	Research ResearchConfig `json:"research" yaml:"research" mapstructure:"research"`
	Report   ReportConfig   `json:"report" yaml:"report" mapstructure:"report"`
	Gate     GateConfig     `json:"gate" yaml:"gate" mapstructure:"gate"`
	Tools    ToolsConfig    `json:"tools" yaml:"tools" mapstructure:"tools"`
	Render   RenderConfig   `json:"render" yaml:"render" mapstructure:"render"`
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule" mapstructure:"schedule"`
	Log      LogConfig      `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultGateDirs are the upstream engine output directories.
var DefaultGateDirs = map[string]string{
	"market":   "market_engine_streamlit_reports",
	"customer": "customer_engine_streamlit_reports",
	"compete":  "compete_engine_streamlit_reports",
}

// DefaultRenderers is the default renderer order.
var DefaultRenderers = []string{"chrome", "container", "markdown"}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if len(c.Server.AllowOrigins) == 0 {
		c.Server.AllowOrigins = []string{"*"}
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderClaude
	}
	c.LLM.Provider = LLMProvider(strings.ToLower(string(c.LLM.Provider)))
	if c.LLM.MaxRetries <= 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 8192
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 5 * time.Minute
	}
	if c.LLM.UserAgent == "" {
		c.LLM.UserAgent = "report-engine/0.1"
	}

	if c.Research.MaxContentLength <= 0 {
		c.Research.MaxContentLength = 20000
	}
	if c.Research.MaxSearchResults <= 0 {
		c.Research.MaxSearchResults = 10
	}

	if c.Report.SectionCount == 0 {
		c.Report.SectionCount = 5
	}
	if c.Report.Family == "" {
		c.Report.Family = "summary"
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = "final_reports"
	}
	if c.Report.TemplateDir == "" {
		c.Report.TemplateDir = "report_templates"
	}
	if c.Report.MaxInputChars <= 0 {
		c.Report.MaxInputChars = 30000
	}

	if len(c.Gate.Dirs) == 0 {
		c.Gate.Dirs = make(map[string]string, len(DefaultGateDirs))
		for k, v := range DefaultGateDirs {
			c.Gate.Dirs[k] = v
		}
	}
	if c.Gate.ExtraFile == "" {
		c.Gate.ExtraFile = "logs/forum.log"
	}
	if c.Gate.BaselineFile == "" {
		c.Gate.BaselineFile = c.Report.OutputDir + "/.baseline.yaml"
	}

	if c.Tools.DBPath == "" {
		c.Tools.DBPath = "data/opinions.db"
	}
	if c.Tools.WebSearch.Count <= 0 {
		c.Tools.WebSearch.Count = 10
	}
	if c.Tools.WebSearch.Timeout <= 0 {
		c.Tools.WebSearch.Timeout = 30 * time.Second
	}

	if len(c.Render.Renderers) == 0 {
		c.Render.Renderers = append([]string(nil), DefaultRenderers...)
	}
	if c.Render.ContainerImage == "" {
		c.Render.ContainerImage = "surnet/alpine-wkhtmltopdf:3.20.2-0.12.6-full"
	}
	if c.Render.Timeout <= 0 {
		c.Render.Timeout = 2 * time.Minute
	}

	if c.Schedule.Family == "" {
		c.Schedule.Family = c.Report.Family
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports configuration values that cannot be normalized.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case ProviderClaude, ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	if c.Research.MaxReflections < 0 {
		errs = append(errs, fmt.Errorf("research.max_reflections must be >= 0, got %d", c.Research.MaxReflections))
	}
	if c.Research.MaxContentLength <= 0 {
		errs = append(errs, fmt.Errorf("research.max_content_length must be > 0, got %d", c.Research.MaxContentLength))
	}
	if c.Report.SectionCount < 1 {
		errs = append(errs, fmt.Errorf("report.section_count must be >= 1, got %d", c.Report.SectionCount))
	}
	if len(c.Gate.Dirs) == 0 {
		errs = append(errs, errors.New("gate.dirs must name at least one directory"))
	}
	if c.Schedule.Cron != "" && strings.TrimSpace(c.Schedule.Query) == "" {
		errs = append(errs, errors.New("schedule.query is required when schedule.cron is set"))
	}
	for tool, backend := range c.Tools.Routes {
		if _, ok := ParseToolName(tool); !ok {
			errs = append(errs, fmt.Errorf("tools.routes: unknown tool %q", tool))
		}
		if backend != "db" && backend != "web" {
			errs = append(errs, fmt.Errorf("tools.routes.%s: unknown backend %q", tool, backend))
		}
	}
	return errors.Join(errs...)
}
