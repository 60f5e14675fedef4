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
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

var (
	completionProviders = []string{"anthropic", "openai", "ollama"}
	embeddingProviders  = []string{"openai", "voyage", "ollama"}
)

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}

	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns all validation
// errors found.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateDefaults()...)
	errs = append(errs, c.validateMemory()...)
	errs = append(errs, c.validateRetrieval()...)
	errs = append(errs, c.validateLimits()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateServer() ValidationErrors {
	var errs ValidationErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if c.Server.TLS.Enabled {
		for field, path := range map[string]string{
			"server.tls.cert_file": c.Server.TLS.CertFile,
			"server.tls.key_file":  c.Server.TLS.KeyFile,
		} {
			if path == "" {
				errs = append(errs, ValidationError{Field: field, Message: "required when TLS is enabled"})
			} else if _, err := os.Stat(expandPath(path)); err != nil {
				errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("file not found: %s", path)})
			}
		}
	}

	return errs
}

// validateModels validates every configured model selector, in name order
// so the aggregated message is stable.
func (c *Config) validateModels() ValidationErrors {
	var errs ValidationErrors

	if len(c.Models) == 0 {
		return append(errs, ValidationError{
			Field:   "models",
			Message: "at least one model must be configured",
		})
	}

	names := make([]string, 0, len(c.Models))
	for name := range c.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m := c.Models[name]
		prefix := "models." + name
		errs = append(errs, validateProvider(prefix+".provider", m.Provider, completionProviders)...)
		if m.Model == "" {
			errs = append(errs, ValidationError{Field: prefix + ".model", Message: "required"})
		}
		if m.Temperature != nil && (*m.Temperature < 0 || *m.Temperature > 2) {
			errs = append(errs, ValidationError{Field: prefix + ".temperature", Message: "must be between 0 and 2"})
		}
		errs = append(errs, validateProvider(prefix+".embedding.provider", m.Embedding.Provider, embeddingProviders)...)
		if m.Embedding.Dimensions < 0 {
			errs = append(errs, ValidationError{Field: prefix + ".embedding.dimensions", Message: "must not be negative"})
		}
	}

	return errs
}

func (c *Config) validateDefaults() ValidationErrors {
	var errs ValidationErrors

	refs := []struct{ field, name string }{
		{"defaults.ask_model", c.Defaults.AskModel},
		{"defaults.agent_model", c.Defaults.AgentModel},
		{"reasoning.thought_model", c.Reasoning.ThoughtModel},
		{"reasoning.final_model", c.Reasoning.FinalModel},
	}
	for i, name := range c.Indexing.Embedders {
		refs = append(refs, struct{ field, name string }{fmt.Sprintf("indexing.embedders[%d]", i), name})
	}
	for _, r := range refs {
		if r.name == "" {
			continue
		}
		if _, ok := c.Models[r.name]; !ok {
			errs = append(errs, ValidationError{
				Field:   r.field,
				Message: fmt.Sprintf("unknown model: %s", r.name),
			})
		}
	}

	return errs
}

func (c *Config) validateMemory() ValidationErrors {
	var errs ValidationErrors

	switch c.Memory.Backend {
	case MemoryFile:
		if c.Memory.Directory == "" {
			errs = append(errs, ValidationError{Field: "memory.directory", Message: "required for the file backend"})
		}
	case MemoryRedis:
		if c.Memory.RedisAddr == "" {
			errs = append(errs, ValidationError{Field: "memory.redis_addr", Message: "required for the redis backend"})
		}
	case MemorySQLite:
		if c.Memory.SQLitePath == "" {
			errs = append(errs, ValidationError{Field: "memory.sqlite_path", Message: "required for the sqlite backend"})
		}
	case MemoryPostgres:
		errs = append(errs, c.validateDatabase("memory.backend")...)
	case MemoryInMemory:
	default:
		errs = append(errs, ValidationError{
			Field:   "memory.backend",
			Message: "must be one of: file, redis, sqlite, postgres, memory",
		})
	}

	return errs
}

func (c *Config) validateRetrieval() ValidationErrors {
	var errs ValidationErrors

	switch c.Retrieval.Backend {
	case RetrievalMemory:
	case RetrievalPostgres:
		errs = append(errs, c.validateDatabase("retrieval.backend")...)
	default:
		errs = append(errs, ValidationError{Field: "retrieval.backend", Message: "must be one of: memory, postgres"})
	}

	if c.Retrieval.Mode != ModeVector && c.Retrieval.Mode != ModeHybrid {
		errs = append(errs, ValidationError{Field: "retrieval.mode", Message: "must be one of: vector, hybrid"})
	}
	if c.Retrieval.ChunkSize <= 0 {
		errs = append(errs, ValidationError{Field: "retrieval.chunk_size", Message: "must be positive"})
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		errs = append(errs, ValidationError{
			Field:   "retrieval.chunk_overlap",
			Message: "must be non-negative and smaller than chunk_size",
		})
	}

	return errs
}

func (c *Config) validateLimits() ValidationErrors {
	var errs ValidationErrors

	if c.Uploads.Directory == "" {
		errs = append(errs, ValidationError{Field: "uploads.directory", Message: "required"})
	}
	if c.Uploads.MaxBytes <= 0 {
		errs = append(errs, ValidationError{Field: "uploads.max_bytes", Message: "must be positive"})
	}
	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, ValidationError{Field: "agent.max_iterations", Message: "must be positive"})
	}
	if c.Timeouts.Model < 0 || c.Timeouts.Retrieval < 0 || c.Timeouts.ModelRetries < 0 {
		errs = append(errs, ValidationError{Field: "timeouts", Message: "must be non-negative"})
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{Field: "logging.level", Message: "must be one of: debug, info, warn, error"})
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{Field: "logging.format", Message: "must be one of: text, json"})
	}

	return errs
}

// validateDatabase checks the connection settings a backend depends on.
func (c *Config) validateDatabase(field string) ValidationErrors {
	var errs ValidationErrors
	db := c.Database

	if !db.Configured() {
		return append(errs, ValidationError{
			Field:   field,
			Message: "requires database.url or database.host",
		})
	}
	if db.URL != "" {
		return errs
	}

	if db.Database == "" {
		errs = append(errs, ValidationError{Field: "database.database", Message: "required"})
	}
	if db.Port < 1 || db.Port > 65535 {
		errs = append(errs, ValidationError{Field: "database.port", Message: "must be between 1 and 65535"})
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if db.SSLMode != "" && !slices.Contains(validSSLModes, db.SSLMode) {
		errs = append(errs, ValidationError{
			Field:   "database.ssl_mode",
			Message: "must be one of: " + strings.Join(validSSLModes, ", "),
		})
	}

	return errs
}

func validateProvider(field, provider string, valid []string) ValidationErrors {
	if provider == "" {
		return ValidationErrors{{Field: field, Message: "required"}}
	}
	if !slices.Contains(valid, strings.ToLower(provider)) {
		return ValidationErrors{{
			Field:   field,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(valid, ", ")),
		}}
	}
	return nil
}
