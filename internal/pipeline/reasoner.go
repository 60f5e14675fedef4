//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

// Result is the outcome of two-stage reasoning.
type Result struct {
	Thought     string
	FinalAnswer string
	HasThought  bool
}

// Render formats the result as a single text payload.
func (r Result) Render() string {
	if !r.HasThought {
		return r.FinalAnswer
	}
	return "[Thought]\n" + r.Thought + "\n\n[Final Answer]\n" + r.FinalAnswer + "\n"
}

// Reasoner produces a thought and then a final answer derived from it.
// The stages may use different models.
type Reasoner struct {
	thought  llm.CompletionProvider
	final    llm.CompletionProvider
	grounded bool
	timeout  time.Duration
	tracer   trace.Tracer

	// FinalOnly hides the thought from the result. The first stage still
	// runs. No HTTP route sets it: /api/ask always renders both stages.
	FinalOnly bool
}

// NewReasoner creates a reasoner. grounded selects the prompts used when
// the thought input carries retrieved context.
func NewReasoner(thought, final llm.CompletionProvider, grounded bool, timeout time.Duration, tracer trace.Tracer) *Reasoner {
	return &Reasoner{thought: thought, final: final, grounded: grounded, timeout: timeout, tracer: tracer}
}

// Reason runs stage one to completion, then stage two with its output.
func (r *Reasoner) Reason(ctx context.Context, in ThoughtInput) (Result, error) {
	thought, err := r.complete(ctx, "pipeline.thought", r.thought, ThoughtPrompt(in))
	if err != nil {
		return Result{}, err
	}

	final, err := r.complete(ctx, "pipeline.final_answer", r.final,
		FinalPrompt(NewFinalInput(thought, in.History), r.grounded))
	if err != nil {
		return Result{}, err
	}

	if r.FinalOnly {
		return Result{FinalAnswer: final}, nil
	}
	return Result{Thought: thought, FinalAnswer: final, HasThought: true}, nil
}

func (r *Reasoner) complete(
	ctx context.Context,
	spanName string,
	model llm.CompletionProvider,
	req llm.CompletionRequest,
) (string, error) {
	ctx, span := r.tracer.Start(ctx, spanName,
		trace.WithAttributes(attribute.String("llm.model", model.ModelName())))
	defer span.End()

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := model.Complete(ctx, req)
	if err != nil {
		return "", fail(span, newError(ErrModelInvocation, err))
	}
	return resp.Content, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
