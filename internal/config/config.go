//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config provides configuration loading and validation for the
// ask server.
package config

import "time"

// Config represents the complete server configuration.
type Config struct {
	Server    ServerConfig           `yaml:"server"`
	APIKeys   APIKeysConfig          `yaml:"api_keys"`
	Models    map[string]ModelConfig `yaml:"models"`
	Defaults  Defaults               `yaml:"defaults"`
	Reasoning ReasoningConfig        `yaml:"reasoning"`
	Memory    MemoryConfig           `yaml:"memory"`
	Retrieval RetrievalConfig        `yaml:"retrieval"`
	Uploads   UploadsConfig          `yaml:"uploads"`
	Indexing  IndexingConfig         `yaml:"indexing"`
	Agent     AgentConfig            `yaml:"agent"`
	Timeouts  TimeoutsConfig         `yaml:"timeouts"`
	Logging   LoggingConfig          `yaml:"logging"`
	Telemetry TelemetryConfig        `yaml:"telemetry"`
	Database  DatabaseConfig         `yaml:"database"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddress string     `yaml:"listen_address"`
	Port          int        `yaml:"port"`
	TLS           TLSConfig  `yaml:"tls"`
	CORS          CORSConfig `yaml:"cors"`
}

// TLSConfig contains TLS/HTTPS settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APIKeysConfig contains paths to files holding provider API keys.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Voyage    string `yaml:"voyage"`
	SerpAPI   string `yaml:"serpapi"`
}

// ModelConfig describes one model selector that requests may name.
type ModelConfig struct {
	Provider    string    `yaml:"provider"`
	Model       string    `yaml:"model"`
	BaseURL     string    `yaml:"base_url"`
	Temperature *float64  `yaml:"temperature"`
	MaxTokens   int       `yaml:"max_tokens"`
	Embedding   LLMConfig `yaml:"embedding"`
}

// LLMConfig contains a provider/model pair.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	// Dimensions shortens OpenAI text-embedding-3 vectors; zero keeps
	// the model's native size.
	Dimensions int `yaml:"dimensions"`
}

// Defaults contains request defaults.
type Defaults struct {
	AskModel   string `yaml:"ask_model"`
	AgentModel string `yaml:"agent_model"`
	TopK       int    `yaml:"top_k"`
}

// ReasoningConfig optionally pins the two reasoning stages to specific
// model selectors. Empty means the request's model.
type ReasoningConfig struct {
	ThoughtModel string `yaml:"thought_model"`
	FinalModel   string `yaml:"final_model"`
}

// Memory backends.
const (
	MemoryFile     = "file"
	MemoryRedis    = "redis"
	MemorySQLite   = "sqlite"
	MemoryPostgres = "postgres"
	MemoryInMemory = "memory"
)

// MemoryConfig contains session memory settings.
type MemoryConfig struct {
	Backend          string        `yaml:"backend"`
	Directory        string        `yaml:"directory"`
	RedisAddr        string        `yaml:"redis_addr"`
	RedisPassword    string        `yaml:"redis_password"`
	RedisDB          int           `yaml:"redis_db"`
	RedisKeyPrefix   string        `yaml:"redis_key_prefix"`
	RedisTTL         time.Duration `yaml:"redis_ttl"`
	SQLitePath       string        `yaml:"sqlite_path"`
	AnonymousTTL     time.Duration `yaml:"anonymous_ttl"`
	SerializeAppends bool          `yaml:"serialize_appends"`
}

// Retrieval backends and modes.
const (
	RetrievalMemory   = "memory"
	RetrievalPostgres = "postgres"

	ModeVector = "vector"
	ModeHybrid = "hybrid"
)

// RetrievalConfig contains document retrieval settings.
type RetrievalConfig struct {
	Backend      string        `yaml:"backend"`
	Mode         string        `yaml:"mode"`
	ChunkSize    int           `yaml:"chunk_size"`
	ChunkOverlap int           `yaml:"chunk_overlap"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// UploadsConfig contains upload storage settings.
type UploadsConfig struct {
	Directory string `yaml:"directory"`
	MaxBytes  int64  `yaml:"max_bytes"`
	Watch     bool   `yaml:"watch"`
}

// IndexingConfig controls background indexing of uploaded documents.
type IndexingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Embedders lists model selectors whose embeddings are computed as
	// soon as a document arrives.
	Embedders []string `yaml:"embedders"`
}

// AgentConfig contains settings for the tool-using agent.
type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	SearchResults int           `yaml:"search_results"`
	ToolTimeout   time.Duration `yaml:"tool_timeout"`
	SandboxURL    string        `yaml:"sandbox_url"`
}

// TimeoutsConfig bounds each external call.
type TimeoutsConfig struct {
	Model     time.Duration `yaml:"model"`
	Retrieval time.Duration `yaml:"retrieval"`
	// ModelRetries is how often a rate-limited or failed model call is
	// retried before the error is reported.
	ModelRetries int `yaml:"model_retries"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConfig contains OpenTelemetry trace export settings.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// DatabaseConfig contains PostgreSQL connection settings, used by the
// postgres memory and retrieval backends.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
}

// Configured reports whether any connection setting is present.
func (d DatabaseConfig) Configured() bool {
	return d.URL != "" || d.Host != ""
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress: "0.0.0.0",
			Port:          8080,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:3000"},
			},
		},
		Models: map[string]ModelConfig{
			"openai": {
				Provider:  "openai",
				Model:     "gpt-4o-mini",
				Embedding: LLMConfig{Provider: "openai", Model: "text-embedding-3-small"},
			},
			"ollama": {
				Provider:  "ollama",
				Model:     "llama3.2",
				BaseURL:   "http://localhost:11434",
				Embedding: LLMConfig{Provider: "ollama", Model: "nomic-embed-text"},
			},
		},
		Defaults: Defaults{
			AskModel:   "ollama",
			AgentModel: "openai",
			TopK:       4,
		},
		Memory: MemoryConfig{
			Backend:        MemoryFile,
			Directory:      "history_store",
			RedisAddr:      "localhost:6379",
			RedisKeyPrefix: "chat_history:",
			SQLitePath:     "history.db",
			AnonymousTTL:   time.Hour,
		},
		Retrieval: RetrievalConfig{
			Backend:      RetrievalMemory,
			Mode:         ModeVector,
			ChunkSize:    500,
			ChunkOverlap: 50,
			CacheTTL:     time.Hour,
		},
		Uploads: UploadsConfig{
			Directory: "uploaded_files",
			MaxBytes:  32 << 20,
			Watch:     true,
		},
		Indexing: IndexingConfig{
			Enabled: true,
		},
		Agent: AgentConfig{
			MaxIterations: 10,
			SearchResults: 3,
			ToolTimeout:   30 * time.Second,
		},
		Timeouts: TimeoutsConfig{
			Model:        2 * time.Minute,
			Retrieval:    time.Minute,
			ModelRetries: 2,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "pgedge-ask-server",
		},
	}
}
