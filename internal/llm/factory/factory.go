//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package factory builds LLM providers from configuration and keeps them
// in a registry keyed by the model selector requests name.
package factory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pgEdge/pgedge-ask-server/internal/config"
	"github.com/pgEdge/pgedge-ask-server/internal/llm"
	"github.com/pgEdge/pgedge-ask-server/internal/llm/anthropic"
	"github.com/pgEdge/pgedge-ask-server/internal/llm/ollama"
	"github.com/pgEdge/pgedge-ask-server/internal/llm/openai"
	"github.com/pgEdge/pgedge-ask-server/internal/llm/voyage"
)

// Provider constants for matching configuration values.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderVoyage    = "voyage"
	ProviderOllama    = "ollama"
)

// ErrUnknownModel is returned for a selector the registry does not hold.
var ErrUnknownModel = errors.New("unknown model")

type models struct {
	completion llm.CompletionProvider
	embedding  llm.EmbeddingProvider
}

// Registry maps model selectors to their completion and embedding
// providers. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]models
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]models)}
}

// FromConfig builds a registry holding every configured model whose
// providers could be constructed. Models that could not be built are
// returned with the reason so the caller can log them.
func FromConfig(
	cfgs map[string]config.ModelConfig,
	keys *config.LoadedKeys,
	timeouts config.TimeoutsConfig,
) (*Registry, map[string]error) {
	r := NewRegistry()
	skipped := make(map[string]error)

	for name, mc := range cfgs {
		completion, err := NewCompletionProvider(mc, keys, timeouts)
		if err != nil {
			skipped[name] = err
			continue
		}
		embedding, err := NewEmbeddingProvider(mc.Embedding, keys, timeouts)
		if err != nil {
			skipped[name] = err
			continue
		}
		r.Register(name, completion, embedding)
	}

	return r, skipped
}

// Register adds or replaces a selector.
func (r *Registry) Register(name string, completion llm.CompletionProvider, embedding llm.EmbeddingProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = models{completion: completion, embedding: embedding}
}

// Completion returns the completion provider for a selector.
func (r *Registry) Completion(name string) (llm.CompletionProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.entries[name]
	if !ok || m.completion == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return m.completion, nil
}

// Embedding returns the embedding provider for a selector.
func (r *Registry) Embedding(name string) (llm.EmbeddingProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.entries[name]
	if !ok || m.embedding == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return m.embedding, nil
}

// Names returns the registered selectors in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// endpointOptions applies the shared transport settings to one backend.
func endpointOptions(baseURL string, t config.TimeoutsConfig) []llm.EndpointOption {
	return []llm.EndpointOption{
		llm.WithBaseURL(baseURL),
		llm.WithTimeout(t.Model),
		llm.WithRetries(t.ModelRetries, 0),
	}
}

// NewEmbeddingProvider creates an embedding provider based on configuration.
func NewEmbeddingProvider(
	cfg config.LLMConfig,
	apiKeys *config.LoadedKeys,
	timeouts config.TimeoutsConfig,
) (llm.EmbeddingProvider, error) {
	endpoint := endpointOptions(cfg.BaseURL, timeouts)

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		if apiKeys.OpenAI == "" {
			return nil, fmt.Errorf("OpenAI API key not configured")
		}
		return openai.NewEmbeddingProvider(apiKeys.OpenAI,
			openai.WithEmbeddingModel(cfg.Model),
			openai.WithDimensions(cfg.Dimensions),
			openai.WithEmbeddingClient(openai.NewClient(apiKeys.OpenAI, endpoint...))), nil

	case ProviderVoyage:
		if apiKeys.Voyage == "" {
			return nil, fmt.Errorf("Voyage API key not configured")
		}
		return voyage.NewEmbeddingProvider(apiKeys.Voyage, cfg.Model, endpoint...), nil

	case ProviderOllama:
		return ollama.NewEmbeddingProvider(
			ollama.WithEmbeddingModel(cfg.Model),
			ollama.WithEmbeddingClient(ollama.NewClient(endpoint...))), nil

	case ProviderAnthropic:
		return nil, fmt.Errorf("Anthropic does not provide an embedding API")

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// NewCompletionProvider creates a completion provider based on configuration.
func NewCompletionProvider(
	cfg config.ModelConfig,
	apiKeys *config.LoadedKeys,
	timeouts config.TimeoutsConfig,
) (llm.CompletionProvider, error) {
	endpoint := endpointOptions(cfg.BaseURL, timeouts)

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		if apiKeys.OpenAI == "" {
			return nil, fmt.Errorf("OpenAI API key not configured")
		}
		opts := []openai.CompletionOption{
			openai.WithCompletionClient(openai.NewClient(apiKeys.OpenAI, endpoint...)),
			openai.WithCompletionModel(cfg.Model),
			openai.WithMaxTokens(cfg.MaxTokens),
		}
		if cfg.Temperature != nil {
			opts = append(opts, openai.WithTemperature(*cfg.Temperature))
		}
		return openai.NewCompletionProvider(apiKeys.OpenAI, opts...), nil

	case ProviderAnthropic:
		if apiKeys.Anthropic == "" {
			return nil, fmt.Errorf("Anthropic API key not configured")
		}
		opts := []anthropic.CompletionOption{
			anthropic.WithCompletionClient(anthropic.NewClient(apiKeys.Anthropic, endpoint...)),
			anthropic.WithCompletionModel(cfg.Model),
			anthropic.WithMaxTokens(cfg.MaxTokens),
		}
		if cfg.Temperature != nil {
			opts = append(opts, anthropic.WithTemperature(*cfg.Temperature))
		}
		return anthropic.NewCompletionProvider(apiKeys.Anthropic, opts...), nil

	case ProviderOllama:
		opts := []ollama.CompletionOption{
			ollama.WithCompletionClient(ollama.NewClient(endpoint...)),
			ollama.WithCompletionModel(cfg.Model),
		}
		if cfg.Temperature != nil {
			opts = append(opts, ollama.WithTemperature(*cfg.Temperature))
		}
		return ollama.NewCompletionProvider(opts...), nil

	case ProviderVoyage:
		return nil, fmt.Errorf("Voyage does not provide a completion API")

	default:
		return nil, fmt.Errorf("unknown completion provider: %s", cfg.Provider)
	}
}
