//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Environment variables consulted when no key file is configured.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvVoyageAPIKey    = "VOYAGE_API_KEY"
	EnvSerpAPIKey      = "SERPAPI_API_KEY"
)

// keySource says where one provider's key may come from. The fallback
// file lives in the home directory.
type keySource struct {
	label    string
	env      string
	homeFile string
	path     func(APIKeysConfig) string
	store    func(*LoadedKeys, string)
}

var keySources = map[string]keySource{
	"anthropic": {
		label: "Anthropic", env: EnvAnthropicAPIKey, homeFile: ".anthropic-api-key",
		path:  func(c APIKeysConfig) string { return c.Anthropic },
		store: func(k *LoadedKeys, v string) { k.Anthropic = v },
	},
	"openai": {
		label: "OpenAI", env: EnvOpenAIAPIKey, homeFile: ".openai-api-key",
		path:  func(c APIKeysConfig) string { return c.OpenAI },
		store: func(k *LoadedKeys, v string) { k.OpenAI = v },
	},
	"voyage": {
		label: "Voyage", env: EnvVoyageAPIKey, homeFile: ".voyage-api-key",
		path:  func(c APIKeysConfig) string { return c.Voyage },
		store: func(k *LoadedKeys, v string) { k.Voyage = v },
	},
	"serpapi": {
		label: "SerpAPI", env: EnvSerpAPIKey, homeFile: ".serpapi-api-key",
		path:  func(c APIKeysConfig) string { return c.SerpAPI },
		store: func(k *LoadedKeys, v string) { k.SerpAPI = v },
	},
}

// LoadedKeys are the secrets resolved at startup.
type LoadedKeys struct {
	Anthropic string
	OpenAI    string
	Voyage    string
	SerpAPI   string
}

// ForProvider returns the key for a provider name. Ollama needs none.
func (k *LoadedKeys) ForProvider(provider string) string {
	switch strings.ToLower(provider) {
	case "anthropic":
		return k.Anthropic
	case "openai":
		return k.OpenAI
	case "voyage":
		return k.Voyage
	case "serpapi":
		return k.SerpAPI
	}
	return ""
}

// APIKeyLoader resolves provider keys.
type APIKeyLoader struct {
	config APIKeysConfig
}

// NewAPIKeyLoader returns a loader reading the files named in cfg.
func NewAPIKeyLoader(cfg APIKeysConfig) *APIKeyLoader {
	return &APIKeyLoader{config: cfg}
}

// Load returns the key for provider. A file named in the configuration
// is authoritative; otherwise the environment variable is used, then the
// provider's dot file in the home directory.
func (l *APIKeyLoader) Load(provider string) (string, error) {
	src, ok := keySources[strings.ToLower(provider)]
	if !ok {
		return "", fmt.Errorf("no API key source for provider %q", provider)
	}

	if configured := src.path(l.config); configured != "" {
		return readKeyFile(expandPath(configured), src.label)
	}
	if key := os.Getenv(src.env); key != "" {
		return key, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	key, err := readKeyFile(filepath.Join(home, src.homeFile), src.label)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s API key not found: set %s or create ~/%s",
			src.label, src.env, src.homeFile)
	}
	return key, err
}

func readKeyFile(path, label string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s API key file not found: %s: %w", label, path, err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s API key: %w", label, err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%s API key file is empty: %s", label, path)
	}
	return key, nil
}

// LoadModelKeys loads the keys the configured models need, plus the
// optional SerpAPI key for web search. Failures are returned per provider
// rather than aborting: models behind a missing key simply stay
// unavailable.
func (l *APIKeyLoader) LoadModelKeys(models map[string]ModelConfig) (*LoadedKeys, map[string]error) {
	needed := map[string]bool{"serpapi": true}
	for _, m := range models {
		needed[strings.ToLower(m.Provider)] = true
		needed[strings.ToLower(m.Embedding.Provider)] = true
	}

	keys := &LoadedKeys{}
	missing := make(map[string]error)
	for provider := range needed {
		src, ok := keySources[provider]
		if !ok {
			continue
		}
		key, err := l.Load(provider)
		if err != nil {
			missing[provider] = err
			continue
		}
		src.store(keys, key)
	}
	return keys, missing
}

// MissingProviders lists the providers in a LoadModelKeys failure map,
// sorted.
func MissingProviders(missing map[string]error) []string {
	out := make([]string, 0, len(missing))
	for p := range missing {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
