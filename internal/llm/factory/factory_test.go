//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package factory

import (
	"errors"
	"testing"
	"time"

	"github.com/pgEdge/pgedge-ask-server/internal/config"
)

func TestNewEmbeddingProvider(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LLMConfig
		keys      config.LoadedKeys
		expectErr bool
		model     string
	}{
		{"openai", config.LLMConfig{Provider: "openai"}, config.LoadedKeys{OpenAI: "k"}, false, "text-embedding-3-small"},
		{"openai without key", config.LLMConfig{Provider: "openai"}, config.LoadedKeys{}, true, ""},
		{"voyage", config.LLMConfig{Provider: "voyage", Model: "voyage-3-lite"}, config.LoadedKeys{Voyage: "k"}, false, "voyage-3-lite"},
		{"ollama", config.LLMConfig{Provider: "ollama"}, config.LoadedKeys{}, false, "nomic-embed-text"},
		{"case insensitive", config.LLMConfig{Provider: "OpenAI"}, config.LoadedKeys{OpenAI: "k"}, false, "text-embedding-3-small"},
		{"anthropic has no embeddings", config.LLMConfig{Provider: "anthropic"}, config.LoadedKeys{Anthropic: "k"}, true, ""},
		{"unknown", config.LLMConfig{Provider: "unknown"}, config.LoadedKeys{}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := tt.keys
			provider, err := NewEmbeddingProvider(tt.cfg, &keys, config.TimeoutsConfig{Model: time.Second})
			if tt.expectErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEmbeddingProvider failed: %v", err)
			}
			if provider.ModelName() != tt.model {
				t.Errorf("expected model %s, got %s", tt.model, provider.ModelName())
			}
		})
	}
}

func TestNewCompletionProvider(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.ModelConfig
		keys      config.LoadedKeys
		expectErr bool
		model     string
	}{
		{"openai", config.ModelConfig{Provider: "openai", Model: "gpt-4"}, config.LoadedKeys{OpenAI: "k"}, false, "gpt-4"},
		{"anthropic", config.ModelConfig{Provider: "anthropic"}, config.LoadedKeys{Anthropic: "k"}, false, "claude-sonnet-4-20250514"},
		{"anthropic without key", config.ModelConfig{Provider: "anthropic"}, config.LoadedKeys{}, true, ""},
		{"ollama", config.ModelConfig{Provider: "ollama", Model: "llama3.2"}, config.LoadedKeys{}, false, "llama3.2"},
		{"voyage has no completions", config.ModelConfig{Provider: "voyage"}, config.LoadedKeys{Voyage: "k"}, true, ""},
		{"unknown", config.ModelConfig{Provider: "unknown"}, config.LoadedKeys{}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := tt.keys
			provider, err := NewCompletionProvider(tt.cfg, &keys, config.TimeoutsConfig{Model: time.Second})
			if tt.expectErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCompletionProvider failed: %v", err)
			}
			if provider.ModelName() != tt.model {
				t.Errorf("expected model %s, got %s", tt.model, provider.ModelName())
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Models["claude"] = config.ModelConfig{
		Provider:  "anthropic",
		Model:     "claude-sonnet-4-20250514",
		Embedding: config.LLMConfig{Provider: "voyage"},
	}

	// No OpenAI or Voyage key: only ollama can be built.
	registry, skipped := FromConfig(cfg.Models, &config.LoadedKeys{Anthropic: "k"}, config.TimeoutsConfig{Model: time.Second})

	if names := registry.Names(); len(names) != 1 || names[0] != "ollama" {
		t.Errorf("expected only ollama, got %v", names)
	}
	if _, ok := skipped["openai"]; !ok {
		t.Error("expected openai to be skipped")
	}
	if _, ok := skipped["claude"]; !ok {
		t.Error("expected claude to be skipped for the missing voyage key")
	}

	if _, err := registry.Completion("ollama"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := registry.Embedding("ollama"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := registry.Completion("openai"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
}
