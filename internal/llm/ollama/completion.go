//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package ollama

import (
	"context"
	"encoding/json"

	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

// CompletionProvider answers prompts with /api/chat.
type CompletionProvider struct {
	client      *llm.Endpoint
	model       string
	temperature *float64
}

// CompletionOption configures a CompletionProvider.
type CompletionOption func(*CompletionProvider)

// NewCompletionProvider returns a chat provider. Unless a temperature is
// configured the model's own default applies.
func NewCompletionProvider(opts ...CompletionOption) *CompletionProvider {
	p := &CompletionProvider{model: defaultChatModel}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = NewClient()
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

// WithTemperature pins the temperature used unless a request overrides it.
func WithTemperature(temp float64) CompletionOption {
	return func(p *CompletionProvider) { p.temperature = &temp }
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
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// chatResponse is both the batch reply and one NDJSON line of a stream.
type chatResponse struct {
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Error           string      `json:"error"`
}

// chunk converts a reply line. Only the final line carries the finish
// reason and token counts.
func (r chatResponse) chunk() llm.StreamChunk {
	c := llm.StreamChunk{Content: r.Message.Content}
	if !r.Done {
		return c
	}
	u := llm.Usage(r.PromptEvalCount, r.EvalCount)
	c.Usage = &u
	c.FinishReason = r.DoneReason
	if c.FinishReason == "" {
		c.FinishReason = "stop"
	}
	return c
}

// Complete runs a non-streaming chat call.
func (p *CompletionProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var reply chatResponse
	if err := p.client.Call(ctx, "/api/chat", p.request(req, false), &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, llm.ModelError(reply.Error)
	}

	// Batch replies are always complete, even if done is omitted.
	reply.Done = true
	c := reply.chunk()
	return &llm.CompletionResponse{Content: c.Content, FinishReason: c.FinishReason, Usage: *c.Usage}, nil
}

// CompleteStream relays the NDJSON lines of a streamed chat call until
// the line marked done.
func (p *CompletionProvider) CompleteStream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, <-chan error) {
	return llm.Pump(ctx, func(emit llm.Emit) error {
		body, err := p.client.Open(ctx, "/api/chat", p.request(req, true))
		if err != nil {
			return err
		}
		defer func() { _ = body.Close() }()

		return llm.EachLine(body, func(line []byte) error {
			var reply chatResponse
			if json.Unmarshal(line, &reply) != nil {
				return nil
			}
			if reply.Error != "" {
				return llm.ModelError(reply.Error)
			}
			if !emit(reply.chunk()) || reply.Done {
				return llm.ErrStreamDone
			}
			return nil
		})
	})
}

func (p *CompletionProvider) request(req llm.CompletionRequest, stream bool) chatRequest {
	msgs := req.AllMessages()
	out := chatRequest{
		Model:    p.model,
		Messages: make([]chatMessage, len(msgs)),
		Stream:   stream,
		Options: chatOptions{
			Temperature: p.temperature,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		},
	}
	for i, m := range msgs {
		out.Messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	if req.Temperature >= 0 {
		t := req.Temperature
		out.Options.Temperature = &t
	}
	return out
}

// ModelName returns the chat model.
func (p *CompletionProvider) ModelName() string {
	return p.model
}

var _ llm.CompletionProvider = (*CompletionProvider)(nil)
