//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Endpoint posts JSON bodies to one model backend. Provider packages wrap
// it with their own headers and wire types.
type Endpoint struct {
	client  *http.Client
	baseURL string
	header  http.Header
	retries int
	backoff time.Duration
}

// EndpointOption configures an Endpoint.
type EndpointOption func(*Endpoint)

// NewEndpoint returns an endpoint rooted at baseURL.
func NewEndpoint(baseURL string, timeout time.Duration, opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		header:  http.Header{"Content-Type": {"application/json"}},
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithBaseURL overrides the backend URL. Empty keeps the default.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) {
		if url != "" {
			e.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithTimeout bounds every round trip, including reading a stream.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) EndpointOption {
	return func(e *Endpoint) {
		if client != nil {
			e.client = client
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) EndpointOption {
	return func(e *Endpoint) {
		e.header.Set(key, value)
	}
}

// WithRetries retries retryable failures up to n more times, waiting
// attempt² × backoff between tries.
func WithRetries(n int, backoff time.Duration) EndpointOption {
	return func(e *Endpoint) {
		if n > 0 {
			e.retries = n
		}
		if backoff > 0 {
			e.backoff = backoff
		}
	}
}

// Call posts in to path and decodes the JSON reply into out.
func (e *Endpoint) Call(ctx context.Context, path string, in, out any) error {
	body, err := e.Open(ctx, path, in)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Open posts in to path and returns the reply body for the caller to
// read and close. Non-200 replies are returned as *Error.
func (e *Endpoint) Open(ctx context.Context, path string, in any) (io.ReadCloser, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		body, err := e.post(ctx, path, payload)
		if err == nil || attempt >= e.retries || !IsRetryable(err) {
			return body, err
		}

		wait := time.Duration((attempt+1)*(attempt+1)) * e.backoff
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(wait):
		}
	}
}

func (e *Endpoint) post(ctx context.Context, path string, payload []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = e.header.Clone()

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, TransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, ErrorFromStatus(resp.StatusCode,
			fmt.Sprintf("API error (status %d): %s", resp.StatusCode, errorText(text)))
	}
	return resp.Body, nil
}

// errorText pulls the human-readable message out of the error envelopes
// the supported backends use, falling back to the raw body.
func errorText(body []byte) string {
	var env struct {
		Error json.RawMessage `json:"error"`
		// Voyage
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &env) == nil {
		var nested struct {
			Message string `json:"message"`
		}
		var flat string
		switch {
		case json.Unmarshal(env.Error, &nested) == nil && nested.Message != "":
			return nested.Message
		case json.Unmarshal(env.Error, &flat) == nil && flat != "":
			return flat
		case env.Detail != "":
			return env.Detail
		}
	}
	return strings.TrimSpace(string(body))
}

// ErrorFromStatus classifies an HTTP error reply from a backend.
func ErrorFromStatus(status int, message string) *Error {
	e := &Error{Code: ErrCodeModelError, Message: message, StatusCode: status}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = ErrCodeInvalidKey
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Code, e.Retryable = ErrCodeTimeout, true
	// 529 is Anthropic's overload status.
	case status == http.StatusTooManyRequests || status == 529:
		e.Code, e.Retryable = ErrCodeRateLimit, true
	case status >= 500:
		e.Code, e.Retryable = ErrCodeServerError, true
	case status >= 400:
		e.Code = ErrCodeInvalidRequest
	}
	return e
}

// TransportError wraps a failed round trip to a backend.
func TransportError(err error) *Error {
	e := &Error{
		Code:      ErrCodeNetworkError,
		Message:   fmt.Sprintf("request failed: %v", err),
		Retryable: true,
		Err:       err,
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		e.Code = ErrCodeTimeout
	}
	if errors.Is(err, context.Canceled) {
		e.Retryable = false
	}
	return e
}
