// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm is the LLM collaborator used by every engine stage: a prompt
// goes in, text comes out. Backends (Claude, OpenAI-compatible, Gemini)
// implement Client; retry and instrumentation wrap any Client.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/pkg/types"
)

// Client abstracts the Generative AI API so tests can supply a mock.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is one completion call.
type Request struct {
	// System is the system prompt.
	System string

	// User is the user prompt.
	User string

	// Schema is an optional JSON schema the answer must follow. It is passed
	// through to the model as text; a non-empty schema implies JSON output.
	Schema string

	// JSON asks for a JSON object response without a schema.
	JSON bool
}

// WantsJSON reports whether the caller expects a JSON answer.
func (r Request) WantsJSON() bool {
	return r.JSON || r.Schema != ""
}

// systemPrompt returns the system prompt with the schema appended.
func (r Request) systemPrompt() string {
	if r.Schema == "" {
		return r.System
	}
	var b strings.Builder
	b.WriteString(r.System)
	b.WriteString("\n\n<OUTPUT JSON SCHEMA>\n")
	b.WriteString(r.Schema)
	b.WriteString("\n</OUTPUT JSON SCHEMA>\n\nReturn only a JSON object that follows the schema, with no explanation or extra text.")
	return b.String()
}

// APIError is a non-2xx response from an LLM provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ErrEmptyResponse is returned when a provider answers without text.
var ErrEmptyResponse = errors.New("empty LLM response")

// New builds the Client selected by cfg, wrapped with retry.
func New(ctx context.Context, cfg types.LLMConfig, logger *zap.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm provider %s: API key is required", cfg.Provider)
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var c Client
	switch cfg.Provider {
	case types.ProviderClaude, "":
		c = &ClaudeBackend{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Client:      httpClient,
		}
	case types.ProviderOpenAI:
		c = &OpenAIBackend{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Client:      httpClient,
		}
	case types.ProviderGemini:
		g, err := NewGeminiBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c = g
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	return WithRetry(c, cfg.MaxRetries, logger), nil
}

// DecodeJSON unmarshals a model answer into v. Markdown code fences and
// prose around the outermost JSON value are ignored.
func DecodeJSON(text string, v any) error {
	body := extractJSON(text)
	if body == "" {
		return fmt.Errorf("no JSON value in response: %q", truncate(text, 200))
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("parsing AI response JSON: %w", err)
	}
	return nil
}

// extractJSON returns the outermost JSON object or array in text.
func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// CallObserver receives one event per completed LLM call.
type CallObserver interface {
	ObserveLLMCall(provider string, elapsed time.Duration, err error)
}

type observedClient struct {
	next     Client
	provider string
	obs      CallObserver
}

// Observe reports every call made through c to obs.
func Observe(c Client, provider string, obs CallObserver) Client {
	if obs == nil {
		return c
	}
	return &observedClient{next: c, provider: provider, obs: obs}
}

func (o *observedClient) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := o.next.Complete(ctx, req)
	o.obs.ObserveLLMCall(o.provider, time.Since(start), err)
	return out, err
}
