//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Answer runs the pipeline to completion and returns the whole payload.
// The exchange is appended to the session only after success.
func (p *Pipeline) Answer(ctx context.Context) (string, error) {
	release, err := p.lock(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	in, err := p.prepare(ctx)
	if err != nil {
		return "", err
	}

	var payload string
	if p.reasoner != nil {
		result, err := p.reasoner.Reason(ctx,
			NewThoughtInput(p.req.Question, in.history, in.context, p.shape.Retrieves()))
		if err != nil {
			return "", err
		}
		payload = result.Render()
	} else {
		payload, err = p.generate(ctx, in)
		if err != nil {
			return "", err
		}
	}

	if err := p.commit(ctx, payload); err != nil {
		return "", err
	}
	p.logger.Debug("answered", "session_id", p.req.SessionID, "length", len(payload))
	return payload, nil
}

func (p *Pipeline) generate(ctx context.Context, in prepared) (string, error) {
	ctx, span := p.startGenerate(ctx)
	defer span.End()

	ctx, cancel := withTimeout(ctx, p.composer.opts.ModelTimeout)
	defer cancel()

	resp, err := p.model.Complete(ctx, ChatPrompt(p.chatInput(in)))
	if err != nil {
		return "", fail(span, newError(ErrModelInvocation, err))
	}
	return resp.Content, nil
}

func (p *Pipeline) chatInput(in prepared) ChatInput {
	return NewChatInput(p.req.Question, in.history, in.context, p.shape.Retrieves())
}

func (p *Pipeline) startGenerate(ctx context.Context) (context.Context, trace.Span) {
	return p.composer.tracer.Start(ctx, "pipeline.generate",
		trace.WithAttributes(
			attribute.String("pipeline.shape", p.shape.String()),
			attribute.String("llm.model", p.model.ModelName()),
		))
}

// Stream runs the pipeline incrementally. History and context are read
// before it returns, so configuration, memory and retrieval failures are
// reported here rather than on the channel. The channel carries chunk
// events then one done event, or an error event when generation fails.
// The exchange is appended only once the model finishes; cancelling ctx
// or a failure appends nothing.
//
// Batch shapes run to completion and are delivered as one chunk.
func (p *Pipeline) Stream(ctx context.Context) (<-chan Event, error) {
	release, err := p.lock(ctx)
	if err != nil {
		return nil, err
	}

	in, err := p.prepare(ctx)
	if err != nil {
		release()
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer release()

		send := func(e Event) bool {
			select {
			case events <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}
		sendError := func(err error) {
			p.logger.Error("stream failed", "session_id", p.req.SessionID, "error", err)
			send(Event{Type: EventError, Content: publicMessage(err), Err: err})
		}

		var answer string
		if p.reasoner != nil {
			result, err := p.reasoner.Reason(ctx,
				NewThoughtInput(p.req.Question, in.history, in.context, p.shape.Retrieves()))
			if err != nil {
				sendError(err)
				return
			}
			answer = result.Render()
			if !send(Event{Type: EventChunk, Content: answer}) {
				return
			}
		} else {
			var ok bool
			answer, ok = p.forward(ctx, in, send, sendError)
			if !ok {
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
		if err := p.commit(ctx, answer); err != nil {
			sendError(err)
			return
		}
		send(Event{Type: EventDone})
	}()

	return events, nil
}

// forward relays model chunks and returns the full text, or false when
// generation failed or the caller went away.
func (p *Pipeline) forward(
	ctx context.Context,
	in prepared,
	send func(Event) bool,
	sendError func(error),
) (string, bool) {
	genCtx, span := p.startGenerate(ctx)
	defer span.End()

	genCtx, cancel := withTimeout(genCtx, p.composer.opts.ModelTimeout)
	defer cancel()

	chunks, errs := p.model.CompleteStream(genCtx, ChatPrompt(p.chatInput(in)))

	var answer strings.Builder
	for chunk := range chunks {
		if chunk.Content == "" {
			continue
		}
		answer.WriteString(chunk.Content)
		if !send(Event{Type: EventChunk, Content: chunk.Content}) {
			// Stop reading so the provider sees the cancelled context.
			cancel()
			for range chunks {
			}
			return "", false
		}
	}

	if err := <-errs; err != nil {
		if ctx.Err() != nil {
			return "", false
		}
		sendError(fail(span, newError(ErrModelInvocation, err)))
		return "", false
	}
	span.SetAttributes(attribute.Int("llm.response_length", answer.Len()))
	return answer.String(), true
}

// publicMessage is the error text shown to callers; causes stay in the
// logs.
func publicMessage(err error) string {
	switch {
	case IsTimeout(err):
		return "the request timed out"
	case isKind(err, ErrModelInvocation):
		return "model invocation failed"
	case isKind(err, ErrRetrieval):
		return "retrieval failed"
	case isKind(err, ErrMemory):
		return "session memory failed"
	default:
		return "internal error"
	}
}
