//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

// CompletionProvider answers prompts with the messages API.
type CompletionProvider struct {
	client      *llm.Endpoint
	model       string
	maxTokens   int
	temperature float64
}

// CompletionOption configures a CompletionProvider.
type CompletionOption func(*CompletionProvider)

// NewCompletionProvider returns a messages provider. max_tokens is
// mandatory for this API, so it defaults to 4096.
func NewCompletionProvider(apiKey string, opts ...CompletionOption) *CompletionProvider {
	p := &CompletionProvider{model: defaultModel, maxTokens: 4096}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = NewClient(apiKey)
	}
	return p
}

// WithCompletionModel selects the model.
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

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model         string    `json:"model"`
	MaxTokens     int       `json:"max_tokens"`
	System        string    `json:"system,omitempty"`
	Messages      []message `json:"messages"`
	Temperature   *float64  `json:"temperature,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	Stream        bool      `json:"stream,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      usage  `json:"usage"`
}

// event is one server-sent event of a streamed reply. Which fields are
// set depends on Type.
type event struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Message struct {
		Usage usage `json:"usage"`
	} `json:"message"`
	Usage usage `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete concatenates the text blocks of a batch reply.
func (p *CompletionProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var reply messagesResponse
	if err := p.client.Call(ctx, "/messages", p.request(req, false), &reply); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range reply.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &llm.CompletionResponse{
		Content:      text.String(),
		FinishReason: reply.StopReason,
		Usage:        llm.Usage(reply.Usage.InputTokens, reply.Usage.OutputTokens),
	}, nil
}

// CompleteStream relays text deltas. Input tokens are reported when the
// message starts and output tokens when it ends, so the final chunk
// combines both.
func (p *CompletionProvider) CompleteStream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, <-chan error) {
	return llm.Pump(ctx, func(emit llm.Emit) error {
		body, err := p.client.Open(ctx, "/messages", p.request(req, true))
		if err != nil {
			return err
		}
		defer func() { _ = body.Close() }()

		var input int
		return llm.EachEvent(body, func(data []byte) error {
			var ev event
			if json.Unmarshal(data, &ev) != nil {
				return nil
			}

			var chunk llm.StreamChunk
			switch ev.Type {
			case "message_start":
				input = ev.Message.Usage.InputTokens
				return nil
			case "content_block_delta":
				if ev.Delta.Type != "text_delta" {
					return nil
				}
				chunk.Content = ev.Delta.Text
			case "message_delta":
				if ev.Delta.StopReason == "" {
					return nil
				}
				u := llm.Usage(input, ev.Usage.OutputTokens)
				chunk.FinishReason, chunk.Usage = ev.Delta.StopReason, &u
			case "message_stop":
				return llm.ErrStreamDone
			case "error":
				if ev.Error.Message == "" {
					return llm.ModelError("stream error")
				}
				return llm.ModelError(ev.Error.Message)
			default:
				return nil
			}

			if !emit(chunk) {
				return llm.ErrStreamDone
			}
			return nil
		})
	})
}

func (p *CompletionProvider) request(req llm.CompletionRequest, stream bool) messagesRequest {
	messages, system := buildMessages(req)
	out := messagesRequest{
		Model:         p.model,
		MaxTokens:     p.maxTokens,
		System:        system,
		Messages:      messages,
		StopSequences: req.Stop,
		Stream:        stream,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	temperature := req.TemperatureOr(p.temperature)
	out.Temperature = &temperature
	return out
}

// buildMessages maps a neutral prompt onto the messages API. Leading
// system messages become the system field. A system message that follows
// conversation turns keeps its position as a user turn, and adjacent
// turns with the same role are merged since the API expects alternation.
func buildMessages(req llm.CompletionRequest) ([]message, string) {
	var system []string
	messages := make([]message, 0, len(req.Messages))

	for _, m := range req.AllMessages() {
		role := m.Role
		if role == llm.RoleSystem {
			if len(messages) == 0 {
				system = append(system, m.Content)
				continue
			}
			role = llm.RoleUser
		}
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content += "\n\n" + m.Content
			continue
		}
		messages = append(messages, message{Role: role, Content: m.Content})
	}

	return messages, strings.Join(system, "\n\n")
}

// ModelName returns the model.
func (p *CompletionProvider) ModelName() string {
	return p.model
}

var _ llm.CompletionProvider = (*CompletionProvider)(nil)
