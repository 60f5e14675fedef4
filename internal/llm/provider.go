//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package llm defines the model adapter used by the ask pipelines: a
// uniform interface over text-generation and embedding backends.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// EmbeddingProvider turns text into vectors for retrieval.
type EmbeddingProvider interface {
	// Embed vectorizes a search query.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch vectorizes documents, one vector per text in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimensions() int
	ModelName() string
}

// CompletionProvider generates text with a chat model, either in one
// call or as a stream of chunks.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CompleteStream yields the answer incrementally. The chunk channel
	// is closed when the model finishes; at most one error is delivered
	// on the error channel. Cancelling ctx stops consumption upstream.
	CompleteStream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, <-chan error)

	ModelName() string
}

// CompletionRequest is a provider-neutral prompt.
type CompletionRequest struct {
	// SystemPrompt is prepended as the first system message.
	SystemPrompt string

	// Messages is the ordered prompt. System messages may appear anywhere;
	// providers without that notion fold them into their system field.
	Messages []Message

	// MaxTokens caps the answer length; 0 keeps the provider default.
	MaxTokens int

	// Temperature overrides the configured sampling temperature unless
	// it is negative. See DefaultTemperature.
	Temperature float64

	// Stop lists sequences at which generation halts.
	Stop []string
}

// DefaultTemperature asks the provider to use its configured temperature.
const DefaultTemperature = -1.0

// Message is a single prompt message.
type Message struct {
	Role    string
	Content string
}

// CompletionResponse is the full text of a batch completion.
type CompletionResponse struct {
	Content      string
	FinishReason string
	Usage        TokenUsage
}

// StreamChunk is one increment of a streamed completion. FinishReason and
// Usage are only set on the last chunk.
type StreamChunk struct {
	Content      string
	FinishReason string
	Usage        *TokenUsage
}

// TokenUsage counts the tokens billed for one call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Usage builds a TokenUsage from prompt and completion counts.
func Usage(prompt, completion int) TokenUsage {
	return TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// Error is returned by providers for failed backend calls.
type Error struct {
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes.
const (
	ErrCodeRateLimit      = "rate_limit"
	ErrCodeInvalidKey     = "invalid_api_key"
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeModelError     = "model_error"
	ErrCodeServerError    = "server_error"
	ErrCodeTimeout        = "timeout"
	ErrCodeNetworkError   = "network_error"
)

// ModelError reports a failure the backend described in its reply body
// rather than through the HTTP status.
func ModelError(message string) *Error {
	return &Error{Code: ErrCodeModelError, Message: message}
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// IsTimeout reports whether err is a provider timeout or an expired
// context deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeTimeout
}

// AllMessages returns the request's system prompt followed by its
// messages, skipping blank system messages.
func (r CompletionRequest) AllMessages() []Message {
	msgs := make([]Message, 0, len(r.Messages)+1)
	if r.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	for _, m := range r.Messages {
		if m.Role == RoleSystem && strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// TemperatureOr resolves the sampling temperature for a request against a
// provider's configured default.
func (r CompletionRequest) TemperatureOr(configured float64) float64 {
	if r.Temperature >= 0 {
		return r.Temperature
	}
	return configured
}
