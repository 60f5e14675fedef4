//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package anthropic adapts the Anthropic messages API to the llm
// completion interface. Anthropic has no embeddings API; pair it with
// voyage for retrieval.
package anthropic

import (
	"time"

	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	defaultModel   = "claude-sonnet-4-20250514"
	defaultTimeout = 60 * time.Second
	apiVersion     = "2023-06-01"
)

// NewClient returns an endpoint authenticated with apiKey.
func NewClient(apiKey string, opts ...llm.EndpointOption) *llm.Endpoint {
	opts = append([]llm.EndpointOption{
		llm.WithHeader("x-api-key", apiKey),
		llm.WithHeader("anthropic-version", apiVersion),
	}, opts...)
	return llm.NewEndpoint(defaultBaseURL, defaultTimeout, opts...)
}
