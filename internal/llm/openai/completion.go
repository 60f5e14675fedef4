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
	"encoding/json"

	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

// CompletionProvider answers prompts with the chat completions API.
type CompletionProvider struct {
	client      *llm.Endpoint
	model       string
	maxTokens   int
	temperature float64
}

// CompletionOption configures a CompletionProvider.
type CompletionOption func(*CompletionProvider)

// NewCompletionProvider returns a chat provider. The default temperature
// is 0 so answers are reproducible.
func NewCompletionProvider(apiKey string, opts ...CompletionOption) *CompletionProvider {
	p := &CompletionProvider{model: defaultChatModel, maxTokens: 4096}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = NewClient(apiKey)
	}
	return p
}

// WithCompletionModel selects the chat model.
func WithCompletionModel(model string) CompletionOption {
	return func(p *CompletionProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithMaxTokens caps answers that do not set their own limit.
func WithMaxTokens(tokens int) CompletionOption {
	return func(p *CompletionProvider) {
		if tokens > 0 {
			p.maxTokens = tokens
		}
	}
}

// WithTemperature sets the temperature used unless a request overrides it.
func WithTemperature(temp float64) CompletionOption {
	return func(p *CompletionProvider) { p.temperature = temp }
}

// WithCompletionClient uses an existing endpoint.
func WithCompletionClient(client *llm.Endpoint) CompletionOption {
	return func(p *CompletionProvider) { p.client = client }
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	Stop          []string       `json:"stop,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// choice covers both shapes the API uses: message in a batch reply and
// delta in a stream event.
type choice struct {
	Message      chatMessage `json:"message"`
	Delta        chatMessage `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage"`
}

func (r chatResponse) tokenUsage() *llm.TokenUsage {
	if r.Usage == nil {
		return nil
	}
	u := llm.Usage(r.Usage.PromptTokens, r.Usage.CompletionTokens)
	return &u
}

// Complete returns the first choice of a batch completion.
func (p *CompletionProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var reply chatResponse
	if err := p.client.Call(ctx, "/chat/completions", p.request(req, false), &reply); err != nil {
		return nil, err
	}
	if len(reply.Choices) == 0 {
		return nil, llm.ModelError("no completion returned")
	}

	out := &llm.CompletionResponse{
		Content:      reply.Choices[0].Message.Content,
		FinishReason: reply.Choices[0].FinishReason,
	}
	if u := reply.tokenUsage(); u != nil {
		out.Usage = *u
	}
	return out, nil
}

// CompleteStream relays the server-sent deltas of a streamed completion.
// Usage arrives on a trailing event with no choices.
func (p *CompletionProvider) CompleteStream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, <-chan error) {
	return llm.Pump(ctx, func(emit llm.Emit) error {
		body, err := p.client.Open(ctx, "/chat/completions", p.request(req, true))
		if err != nil {
			return err
		}
		defer func() { _ = body.Close() }()

		return llm.EachEvent(body, func(data []byte) error {
			if string(data) == "[DONE]" {
				return llm.ErrStreamDone
			}
			var event chatResponse
			if json.Unmarshal(data, &event) != nil {
				return nil
			}

			chunk := llm.StreamChunk{Usage: event.tokenUsage()}
			if len(event.Choices) > 0 {
				chunk.Content = event.Choices[0].Delta.Content
				chunk.FinishReason = event.Choices[0].FinishReason
			}
			if chunk.Content == "" && chunk.FinishReason == "" && chunk.Usage == nil {
				return nil
			}
			if !emit(chunk) {
				return llm.ErrStreamDone
			}
			return nil
		})
	})
}

func (p *CompletionProvider) request(req llm.CompletionRequest, stream bool) chatRequest {
	msgs := req.AllMessages()
	out := chatRequest{
		Model:     p.model,
		Messages:  make([]chatMessage, len(msgs)),
		MaxTokens: p.maxTokens,
		Stop:      req.Stop,
		Stream:    stream,
	}
	for i, m := range msgs {
		out.Messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if stream {
		out.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	temperature := req.TemperatureOr(p.temperature)
	out.Temperature = &temperature
	return out
}

// ModelName returns the chat model.
func (p *CompletionProvider) ModelName() string {
	return p.model
}

var _ llm.CompletionProvider = (*CompletionProvider)(nil)
