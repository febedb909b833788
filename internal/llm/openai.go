// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// OpenAIBackend calls an OpenAI-compatible chat completions endpoint.
// BaseURL may point at any gateway that speaks the same protocol.
type OpenAIBackend struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Client      *http.Client
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat completion request.
func (o *OpenAIBackend) Complete(ctx context.Context, r Request) (string, error) {
	base := strings.TrimRight(o.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	model := o.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	body := openAIRequest{
		Model:     model,
		MaxTokens: o.MaxTokens,
	}
	if sys := r.systemPrompt(); sys != "" {
		body.Messages = append(body.Messages, openAIMessage{Role: "system", Content: sys})
	}
	body.Messages = append(body.Messages, openAIMessage{Role: "user", Content: r.User})
	if o.Temperature > 0 {
		t := o.Temperature
		body.Temperature = &t
	}
	if r.WantsJSON() {
		body.ResponseFormat = &openAIFormat{Type: "json_object"}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling OpenAI-compatible API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", &APIError{Provider: "OpenAI", StatusCode: resp.StatusCode, Body: string(b)}
	}

	var oResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return "", fmt.Errorf("decoding OpenAI response: %w", err)
	}
	if len(oResp.Choices) == 0 || strings.TrimSpace(oResp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("OpenAI API: %w", ErrEmptyResponse)
	}
	return oResp.Choices[0].Message.Content, nil
}
