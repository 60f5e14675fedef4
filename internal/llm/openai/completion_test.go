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
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *CompletionProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient("test-key", llm.WithBaseURL(server.URL))
	return NewCompletionProvider("test-key", WithCompletionClient(client))
}

func TestCompletionProvider_Complete(t *testing.T) {
	var got chatRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Hello!"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	})

	resp, err := provider.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "You are a helpful assistant.",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Reference Information:\nctx"},
			{Role: llm.RoleUser, Content: "Hi there"},
		},
		Temperature: llm.DefaultTemperature,
		Stop:        []string{"\nObservation:"},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != "Hello!" {
		t.Errorf("expected 'Hello!', got %s", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if got.Stream {
		t.Error("expected stream to be false")
	}
	if len(got.Messages) != 3 || got.Messages[0].Role != "system" || got.Messages[1].Role != "system" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
	if got.Temperature == nil || *got.Temperature != 0 {
		t.Errorf("expected explicit temperature 0, got %v", got.Temperature)
	}
	if len(got.Stop) != 1 {
		t.Errorf("expected stop sequence to be forwarded, got %v", got.Stop)
	}
}

func TestCompletionProvider_CompleteStream(t *testing.T) {
	var got chatRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"The ", "sky ", "is blue."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":3}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	chunks, errs := provider.CompleteStream(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "colour?"}},
	})

	var sb strings.Builder
	var usage *llm.TokenUsage
	finish := ""
	for c := range chunks {
		sb.WriteString(c.Content)
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
		if c.Usage != nil {
			usage = c.Usage
		}
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if sb.String() != "The sky is blue." {
		t.Errorf("unexpected streamed text %q", sb.String())
	}
	if finish != "stop" {
		t.Errorf("expected finish reason stop, got %q", finish)
	}
	if usage == nil || usage.TotalTokens != 7 {
		t.Errorf("expected trailing usage, got %+v", usage)
	}
	if !got.Stream || got.StreamOptions == nil || !got.StreamOptions.IncludeUsage {
		t.Errorf("expected streaming request with usage, got %+v", got)
	}
}

func TestCompletionProvider_ErrorClassification(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	})

	_, err := provider.Complete(context.Background(), llm.CompletionRequest{})
	var llmErr *llm.Error
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *llm.Error, got %v", err)
	}
	if llmErr.Code != llm.ErrCodeRateLimit || !llmErr.Retryable {
		t.Errorf("unexpected classification %+v", llmErr)
	}
	if !strings.Contains(llmErr.Message, "slow down") {
		t.Errorf("expected API message in error, got %q", llmErr.Message)
	}
}

func TestCompletionProvider_ModelName(t *testing.T) {
	provider := NewCompletionProvider("test-key")
	if provider.ModelName() != defaultChatModel {
		t.Errorf("expected %s, got %s", defaultChatModel, provider.ModelName())
	}

	provider = NewCompletionProvider("test-key", WithCompletionModel("gpt-4o"))
	if provider.ModelName() != "gpt-4o" {
		t.Errorf("expected gpt-4o, got %s", provider.ModelName())
	}
}

func TestCompletionProvider_Options(t *testing.T) {
	provider := NewCompletionProvider(
		"test-key",
		WithMaxTokens(1000),
		WithTemperature(0.5),
	)

	if provider.maxTokens != 1000 {
		t.Errorf("expected maxTokens 1000, got %d", provider.maxTokens)
	}
	if provider.temperature != 0.5 {
		t.Errorf("expected temperature 0.5, got %f", provider.temperature)
	}
}
