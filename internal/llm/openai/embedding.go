//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package openai

import (
	"context"
	"fmt"

	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

// EmbeddingProvider vectorizes text with the embeddings API.
type EmbeddingProvider struct {
	client     *llm.Endpoint
	model      string
	dimensions int
	// requested is sent as the dimensions parameter when non-zero.
	requested int
}

// EmbeddingOption configures an EmbeddingProvider.
type EmbeddingOption func(*EmbeddingProvider)

// NewEmbeddingProvider returns an embeddings provider. The default model
// produces 1536-dimensional vectors.
func NewEmbeddingProvider(apiKey string, opts ...EmbeddingOption) *EmbeddingProvider {
	p := &EmbeddingProvider{model: defaultEmbeddingModel, dimensions: 1536}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = NewClient(apiKey)
	}
	return p
}

// WithEmbeddingModel selects the embedding model.
func WithEmbeddingModel(model string) EmbeddingOption {
	return func(p *EmbeddingProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithDimensions asks the model for shorter vectors. Values <= 0 keep
// the native size.
func WithDimensions(dims int) EmbeddingOption {
	return func(p *EmbeddingProvider) {
		if dims > 0 {
			p.dimensions, p.requested = dims, dims
		}
	}
}

// WithEmbeddingClient uses an existing endpoint.
func WithEmbeddingClient(client *llm.Endpoint) EmbeddingOption {
	return func(p *EmbeddingProvider) { p.client = client }
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []llm.IndexedEmbedding `json:"data"`
}

// Embed vectorizes one text.
func (p *EmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch vectorizes texts in one request.
func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embeddingRequest{Model: p.model, Input: texts, Dimensions: p.requested}
	var reply embeddingResponse
	if err := p.client.Call(ctx, "/embeddings", req, &reply); err != nil {
		return nil, err
	}
	vectors, err := llm.InInputOrder(len(texts), reply.Data)
	if err != nil {
		return nil, err
	}
	for i, v := range vectors {
		if p.requested > 0 && len(v) != p.requested {
			return nil, llm.ModelError(fmt.Sprintf(
				"embedding %d has %d dimensions, requested %d", i, len(v), p.requested))
		}
	}
	return vectors, nil
}

// Dimensions returns the configured vector size.
func (p *EmbeddingProvider) Dimensions() int {
	return p.dimensions
}

// ModelName returns the embedding model.
func (p *EmbeddingProvider) ModelName() string {
	return p.model
}

var _ llm.EmbeddingProvider = (*EmbeddingProvider)(nil)
