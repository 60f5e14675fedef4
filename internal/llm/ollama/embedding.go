//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package ollama

import (
	"context"
	"fmt"

	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

// EmbeddingProvider vectorizes text with /api/embed.
type EmbeddingProvider struct {
	client     *llm.Endpoint
	model      string
	dimensions int
}

// EmbeddingOption configures an EmbeddingProvider.
type EmbeddingOption func(*EmbeddingProvider)

// NewEmbeddingProvider returns an embeddings provider. The default model
// produces 768-dimensional vectors.
func NewEmbeddingProvider(opts ...EmbeddingOption) *EmbeddingProvider {
	p := &EmbeddingProvider{model: defaultEmbeddingModel, dimensions: 768}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = NewClient()
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

// WithDimensions records the vector size the model produces.
func WithDimensions(dims int) EmbeddingOption {
	return func(p *EmbeddingProvider) { p.dimensions = dims }
}

// WithEmbeddingClient uses an existing endpoint.
func WithEmbeddingClient(client *llm.Endpoint) EmbeddingOption {
	return func(p *EmbeddingProvider) { p.client = client }
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed vectorizes one text.
func (p *EmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch vectorizes texts in one call. Ollama returns the vectors in
// input order without indexes.
func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var reply embedResponse
	if err := p.client.Call(ctx, "/api/embed", embedRequest{Model: p.model, Input: texts}, &reply); err != nil {
		return nil, err
	}
	if len(reply.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(reply.Embeddings))
	}
	return reply.Embeddings, nil
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
