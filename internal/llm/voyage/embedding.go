//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package voyage provides a Voyage AI embedding client, used to give
// Anthropic-backed models an embedding model for document retrieval.
package voyage

import (
	"context"
	"time"

	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

const (
	defaultBaseURL = "https://api.voyageai.com/v1"
	defaultModel   = "voyage-3"
	defaultTimeout = 60 * time.Second
)

// Voyage embeds queries and documents differently; the input type
// tells it which side of the search a text is on.
const (
	inputDocument = "document"
	inputQuery    = "query"
)

// EmbeddingProvider vectorizes text with the Voyage embeddings API.
type EmbeddingProvider struct {
	client     *llm.Endpoint
	model      string
	dimensions int
}

// NewEmbeddingProvider returns a provider authenticated with apiKey.
// Endpoint options such as llm.WithBaseURL apply to its HTTP client.
func NewEmbeddingProvider(apiKey string, model string, endpoint ...llm.EndpointOption) *EmbeddingProvider {
	if model == "" {
		model = defaultModel
	}
	endpoint = append([]llm.EndpointOption{llm.WithHeader("Authorization", "Bearer "+apiKey)}, endpoint...)
	return &EmbeddingProvider{
		client:     llm.NewEndpoint(defaultBaseURL, defaultTimeout, endpoint...),
		model:      model,
		dimensions: dimensionsOf(model),
	}
}

// dimensionsOf returns the default output size of the published models.
func dimensionsOf(model string) int {
	if model == "voyage-3-lite" {
		return 512
	}
	return 1024
}

type embeddingRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	InputType string   `json:"input_type,omitempty"`
}

type embeddingResponse struct {
	Data []llm.IndexedEmbedding `json:"data"`
}

// Embed vectorizes a search query.
func (p *EmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{text}, inputQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch vectorizes documents to be searched.
func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return p.embed(ctx, texts, inputDocument)
}

func (p *EmbeddingProvider) embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	var reply embeddingResponse
	req := embeddingRequest{Model: p.model, Input: texts, InputType: inputType}
	if err := p.client.Call(ctx, "/embeddings", req, &reply); err != nil {
		return nil, err
	}
	return llm.InInputOrder(len(texts), reply.Data)
}

// Dimensions returns the vector size of the model.
func (p *EmbeddingProvider) Dimensions() int {
	return p.dimensions
}

// ModelName returns the embedding model.
func (p *EmbeddingProvider) ModelName() string {
	return p.model
}

var _ llm.EmbeddingProvider = (*EmbeddingProvider)(nil)
