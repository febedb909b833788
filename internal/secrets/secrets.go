// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files. The
// file name is the key and the trimmed contents are the value.
//
// Known keys: anthropic-api-key, openai-api-key, gemini-api-key,
// web-search-api-key, jwt-secret.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/report-engine/pkg/types"
)

const (
	AnthropicAPIKey = "anthropic-api-key"
	OpenAIAPIKey    = "openai-api-key"
	GeminiAPIKey    = "gemini-api-key"
	WebSearchAPIKey = "web-search-api-key"
	JWTSecret       = "jwt-secret"
)

// providerKeys maps an LLM provider to the secret holding its API key.
var providerKeys = map[types.LLMProvider]string{
	types.ProviderClaude: AnthropicAPIKey,
	types.ProviderOpenAI: OpenAIAPIKey,
	types.ProviderGemini: GeminiAPIKey,
}

// Warn reports a secret file that could not be read.
var Warn = func(name string, err error) {
	fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
}

// Set is a loaded secrets directory.
type Set map[string]string

// Load reads every regular, non-hidden file in dir. A missing directory
// yields an empty Set; unreadable files are reported through Warn and
// skipped.
func Load(dir string) (Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Set{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	s := make(Set)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			Warn(name, err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			s[name] = value
		}
	}
	return s, nil
}

// Keys returns the loaded key names, sorted.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns current when it is set, otherwise the secret stored under key.
func (s Set) Get(key, current string) string {
	if current != "" {
		return current
	}
	return s[key]
}

// Fill copies secrets into cfg fields that configuration left empty.
func (s Set) Fill(cfg *types.Config) {
	if key, ok := providerKeys[cfg.LLM.Provider]; ok {
		cfg.LLM.APIKey = s.Get(key, cfg.LLM.APIKey)
	}
	cfg.Tools.WebSearch.APIKey = s.Get(WebSearchAPIKey, cfg.Tools.WebSearch.APIKey)
	cfg.Server.JWTSecret = s.Get(JWTSecret, cfg.Server.JWTSecret)
}
