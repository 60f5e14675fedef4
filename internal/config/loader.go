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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the file looked for in the standard locations.
const ConfigFileName = "pgedge-ask-server.yaml"

// standardLocations lists where a configuration is looked for when none
// is named, system-wide first.
func standardLocations() []string {
	locations := []string{filepath.Join("/etc/pgedge", ConfigFileName)}
	if exe, err := os.Executable(); err == nil {
		if exe, err = filepath.EvalSymlinks(exe); err == nil {
			locations = append(locations, filepath.Join(filepath.Dir(exe), ConfigFileName))
		}
	}
	return locations
}

// Locate returns the configuration file Load reads for path. A named
// path must exist. Without one the standard locations are tried and ""
// means none exists, so the defaults apply.
func Locate(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file not found: %s", path)
		}
		return path, nil
	}
	for _, candidate := range standardLocations() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// Load reads the configuration named by path, or the first one found in
// /etc/pgedge or next to the binary. With neither, the validated
// defaults are returned.
func Load(path string) (*Config, error) {
	found, err := Locate(path)
	if err != nil {
		return nil, err
	}
	if found == "" {
		return finish(DefaultConfig())
	}

	data, err := os.ReadFile(found)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyDefaults fills values that depend on other settings.
func applyDefaults(cfg *Config) {
	for name, m := range cfg.Models {
		m.Provider = strings.ToLower(m.Provider)
		m.Embedding.Provider = strings.ToLower(m.Embedding.Provider)
		switch {
		case m.Embedding.Provider != "":
		case m.Provider == "anthropic":
			// No embedding API of its own.
			m.Embedding.Provider = "voyage"
		default:
			m.Embedding.Provider = m.Provider
		}
		if m.Embedding.Provider == m.Provider && m.Embedding.BaseURL == "" {
			m.Embedding.BaseURL = m.BaseURL
		}
		cfg.Models[name] = m
	}

	if cfg.Defaults.TopK <= 0 {
		cfg.Defaults.TopK = 4
	}
	if len(cfg.Indexing.Embedders) == 0 && cfg.Defaults.AskModel != "" {
		cfg.Indexing.Embedders = []string{cfg.Defaults.AskModel}
	}

	cfg.Memory.Backend = strings.ToLower(cfg.Memory.Backend)
	cfg.Retrieval.Backend = strings.ToLower(cfg.Retrieval.Backend)
	cfg.Retrieval.Mode = strings.ToLower(cfg.Retrieval.Mode)

	if db := &cfg.Database; db.Host != "" {
		if db.Port == 0 {
			db.Port = 5432
		}
		if db.SSLMode == "" {
			db.SSLMode = "prefer"
		}
	}
}
