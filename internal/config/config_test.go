//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: 127.0.0.1
  port: 9090
models:
  claude:
    provider: anthropic
    model: claude-sonnet-4-20250514
defaults:
  ask_model: claude
  top_k: 6
memory:
  backend: sqlite
  sqlite_path: /tmp/history.db
retrieval:
  mode: hybrid
timeouts:
  model: 45s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load valid config: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.ListenAddress != "127.0.0.1" {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Defaults.TopK != 6 {
		t.Errorf("expected top_k 6, got %d", cfg.Defaults.TopK)
	}
	if cfg.Timeouts.Model != 45*time.Second {
		t.Errorf("expected model timeout 45s, got %s", cfg.Timeouts.Model)
	}
	if cfg.Memory.Backend != MemorySQLite {
		t.Errorf("expected sqlite memory, got %s", cfg.Memory.Backend)
	}

	claude, ok := cfg.Models["claude"]
	if !ok {
		t.Fatal("expected claude model")
	}
	if claude.Embedding.Provider != "voyage" {
		t.Errorf("expected voyage embeddings for anthropic, got %s", claude.Embedding.Provider)
	}

	// Built-in selectors survive alongside configured ones.
	if _, ok := cfg.Models["openai"]; !ok {
		t.Error("expected default openai model to remain")
	}
	if len(cfg.Indexing.Embedders) != 1 || cfg.Indexing.Embedders[0] != "claude" {
		t.Errorf("expected embedders to default to the ask model, got %v", cfg.Indexing.Embedders)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	path, err := Locate("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Skipf("a configuration file exists at %s", path)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}
	if cfg.Defaults.AskModel != "ollama" || cfg.Defaults.AgentModel != "openai" {
		t.Errorf("unexpected default models %+v", cfg.Defaults)
	}
}

func TestLoad_InvalidConfigs(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		errContains string
	}{
		{
			name:        "invalid port",
			content:     "server:\n  port: 70000\n",
			errContains: "server.port",
		},
		{
			name:        "unknown default model",
			content:     "defaults:\n  ask_model: missing\n",
			errContains: "defaults.ask_model: unknown model: missing",
		},
		{
			name:        "bad provider",
			content:     "models:\n  x:\n    provider: cohere\n    model: m\n",
			errContains: "models.x.provider",
		},
		{
			name:        "postgres memory without database",
			content:     "memory:\n  backend: postgres\n",
			errContains: "requires database.url or database.host",
		},
		{
			name:        "overlap larger than chunk",
			content:     "retrieval:\n  chunk_size: 10\n  chunk_overlap: 20\n",
			errContains: "retrieval.chunk_overlap",
		},
		{
			name:        "unknown retrieval mode",
			content:     "retrieval:\n  mode: keyword\n",
			errContains: "retrieval.mode",
		},
		{
			name:        "negative embedding dimensions",
			content:     "models:\n  x:\n    provider: openai\n    model: m\n    embedding:\n      dimensions: -1\n",
			errContains: "models.x.embedding.dimensions",
		},
		{
			name:        "negative retries",
			content:     "timeouts:\n  model_retries: -1\n",
			errContains: "timeouts",
		},
		{
			name:        "malformed yaml",
			content:     "server: [",
			errContains: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("expected error containing '%s', got '%s'",
					tt.errContains, err.Error())
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Defaults.TopK != 4 {
		t.Errorf("expected default top_k 4, got %d", cfg.Defaults.TopK)
	}
	if cfg.Retrieval.ChunkSize != 500 || cfg.Retrieval.ChunkOverlap != 50 {
		t.Errorf("unexpected chunking defaults %+v", cfg.Retrieval)
	}
	if cfg.Memory.Directory != "history_store" || cfg.Uploads.Directory != "uploaded_files" {
		t.Errorf("unexpected storage directories %q %q", cfg.Memory.Directory, cfg.Uploads.Directory)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("expected 10 agent iterations, got %d", cfg.Agent.MaxIterations)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidation_DatabaseFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retrieval.Backend = RetrievalPostgres
	cfg.Database = DatabaseConfig{Host: "localhost", Port: 0, SSLMode: "sometimes"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, expected := range []string{"database.database", "database.port", "database.ssl_mode"} {
		if !strings.Contains(err.Error(), expected) {
			t.Errorf("expected error to contain '%s', got '%s'", expected, err.Error())
		}
	}
}

func TestAPIKeyLoader(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "openai.key")
	if err := os.WriteFile(keyFile, []byte("  sk-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvOpenAIAPIKey, "sk-env")
	t.Setenv(EnvAnthropicAPIKey, "ak-env")
	t.Setenv("HOME", dir)

	t.Run("config path wins over env", func(t *testing.T) {
		key, err := NewAPIKeyLoader(APIKeysConfig{OpenAI: keyFile}).Load("openai")
		if err != nil || key != "sk-file" {
			t.Errorf("got %q, %v", key, err)
		}
	})

	t.Run("env when no path", func(t *testing.T) {
		key, err := NewAPIKeyLoader(APIKeysConfig{}).Load("OpenAI")
		if err != nil || key != "sk-env" {
			t.Errorf("got %q, %v", key, err)
		}
	})

	t.Run("missing keys are reported per provider", func(t *testing.T) {
		t.Setenv(EnvVoyageAPIKey, "")
		t.Setenv(EnvSerpAPIKey, "")
		models := map[string]ModelConfig{
			"claude": {Provider: "anthropic", Model: "m", Embedding: LLMConfig{Provider: "voyage"}},
		}
		keys, missing := NewAPIKeyLoader(APIKeysConfig{}).LoadModelKeys(models)
		if keys.Anthropic != "ak-env" {
			t.Errorf("expected anthropic key, got %q", keys.Anthropic)
		}
		if keys.OpenAI != "" {
			t.Error("openai key should not be loaded when no model needs it")
		}
		got := MissingProviders(missing)
		if len(got) != 2 || got[0] != "serpapi" || got[1] != "voyage" {
			t.Errorf("unexpected missing providers %v", got)
		}
	})

	t.Run("home dot file", func(t *testing.T) {
		t.Setenv(EnvVoyageAPIKey, "")
		if err := os.WriteFile(filepath.Join(dir, ".voyage-api-key"), []byte("vk-home\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		key, err := NewAPIKeyLoader(APIKeysConfig{}).Load("voyage")
		if err != nil || key != "vk-home" {
			t.Errorf("got %q, %v", key, err)
		}
	})

	t.Run("empty and absent files", func(t *testing.T) {
		empty := filepath.Join(dir, "empty.key")
		if err := os.WriteFile(empty, []byte(" \n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := NewAPIKeyLoader(APIKeysConfig{SerpAPI: empty}).Load("serpapi"); err == nil || !strings.Contains(err.Error(), "empty") {
			t.Errorf("expected empty file error, got %v", err)
		}
		if _, err := NewAPIKeyLoader(APIKeysConfig{SerpAPI: filepath.Join(dir, "nope")}).Load("serpapi"); err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected not found error, got %v", err)
		}
		if _, err := NewAPIKeyLoader(APIKeysConfig{}).Load("ollama"); err == nil {
			t.Error("expected an error for a provider without keys")
		}
	})
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/test", filepath.Join(homeDir, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}

	for _, tt := range tests {
		result := expandPath(tt.input)
		if result != tt.expected {
			t.Errorf("expandPath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
