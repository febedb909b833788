// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pdiddy/report-engine/pkg/types"
)

const defaultGeminiModel = "gemini-2.5-pro"

// GeminiBackend calls the Gemini API through the genai SDK.
type GeminiBackend struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

// NewGeminiBackend creates a Gemini client for cfg.
func NewGeminiBackend(ctx context.Context, cfg types.LLMConfig) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiBackend{
		client:      client,
		model:       model,
		maxTokens:   int32(cfg.MaxTokens),
		temperature: float32(cfg.Temperature),
	}, nil
}

// Complete generates one answer for the request.
func (g *GeminiBackend) Complete(ctx context.Context, r Request) (string, error) {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: g.maxTokens,
	}
	if sys := r.systemPrompt(); sys != "" {
		config.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	if g.temperature > 0 {
		config.Temperature = genai.Ptr(g.temperature)
	}
	if r.WantsJSON() {
		config.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{
		genai.NewContentFromText(r.User, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("calling Gemini API: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("Gemini API: %w", ErrEmptyResponse)
	}
	return text, nil
}
