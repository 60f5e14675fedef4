//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package ollama adapts a local Ollama server to the llm interfaces.
package ollama

import (
	"time"

	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

const (
	defaultBaseURL        = "http://localhost:11434"
	defaultEmbeddingModel = "nomic-embed-text"
	defaultChatModel      = "llama3.2"
	// Local models can take a while to load on first use.
	defaultTimeout = 120 * time.Second
)

// NewClient returns an endpoint for an Ollama server. No key is needed.
func NewClient(opts ...llm.EndpointOption) *llm.Endpoint {
	return llm.NewEndpoint(defaultBaseURL, defaultTimeout, opts...)
}
