//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package openai adapts the OpenAI chat and embeddings APIs, and servers
// compatible with them, to the llm interfaces.
package openai

import (
	"time"

	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

const (
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultChatModel      = "gpt-4o-mini"
	defaultTimeout        = 60 * time.Second
)

// NewClient returns an endpoint authenticated with apiKey.
func NewClient(apiKey string, opts ...llm.EndpointOption) *llm.Endpoint {
	opts = append([]llm.EndpointOption{llm.WithHeader("Authorization", "Bearer "+apiKey)}, opts...)
	return llm.NewEndpoint(defaultBaseURL, defaultTimeout, opts...)
}
