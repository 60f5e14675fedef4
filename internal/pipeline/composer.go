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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pgEdge/pgedge-ask-server/internal/llm"
	"github.com/pgEdge/pgedge-ask-server/internal/memory"
	"github.com/pgEdge/pgedge-ask-server/internal/retrieval"
	"github.com/pgEdge/pgedge-ask-server/internal/telemetry"
)

// Models resolves model selectors to providers.
type Models interface {
	Completion(name string) (llm.CompletionProvider, error)
	Embedding(name string) (llm.EmbeddingProvider, error)
}

// Retriever returns passages relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) ([]string, error)
}

// Options tune a Composer.
type Options struct {
	// ThoughtModel and FinalModel override the request's model for the
	// reasoning stages when set.
	ThoughtModel string
	FinalModel   string

	TopK             int
	ModelTimeout     time.Duration
	RetrievalTimeout time.Duration

	// AnonymousMemory holds sessions of requests marked Anonymous. It
	// defaults to the main store.
	AnonymousMemory memory.Store

	Tracer trace.Tracer
	Logger *slog.Logger
}

// Composer builds a fresh Pipeline for each request.
type Composer struct {
	models    Models
	retriever Retriever
	memory    memory.Store
	opts      Options
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewComposer creates a composer.
func NewComposer(models Models, retriever Retriever, store memory.Store, opts Options) *Composer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}
	if opts.AnonymousMemory == nil {
		opts.AnonymousMemory = store
	}
	return &Composer{
		models:    models,
		retriever: retriever,
		memory:    store,
		opts:      opts,
		tracer:    tracer,
		logger:    logger.With("component", "pipeline"),
	}
}

// Pipeline is one request's composed stages. It performs no I/O until
// Answer or Stream is called.
type Pipeline struct {
	composer *Composer
	req      Request
	shape    Shape
	store    memory.Store
	model    llm.CompletionProvider
	reasoner *Reasoner
	logger   *slog.Logger
}

// Compose selects the request's shape and resolves its models. Unknown
// selectors fail with ErrConfiguration.
func (c *Composer) Compose(req Request) (*Pipeline, error) {
	shape := SelectShape(req.UseRAG, req.UseCoT)

	model, err := c.models.Completion(req.Model)
	if err != nil {
		return nil, newError(ErrConfiguration, err)
	}
	if shape.Retrieves() {
		if _, err := c.models.Embedding(req.Model); err != nil {
			return nil, newError(ErrConfiguration, err)
		}
	}

	p := &Pipeline{
		composer: c,
		req:      req,
		shape:    shape,
		store:    c.memory,
		model:    model,
		logger:   c.logger.With("shape", shape.String(), "model", req.Model),
	}
	if req.Anonymous {
		p.store = c.opts.AnonymousMemory
	}

	if shape.Reasons() {
		thought, err := c.stageModel(c.opts.ThoughtModel, model)
		if err != nil {
			return nil, err
		}
		final, err := c.stageModel(c.opts.FinalModel, model)
		if err != nil {
			return nil, err
		}
		p.reasoner = NewReasoner(thought, final, shape.Retrieves(), c.opts.ModelTimeout, c.tracer)
	}

	p.logger.Debug("composed pipeline")
	return p, nil
}

func (c *Composer) stageModel(name string, fallback llm.CompletionProvider) (llm.CompletionProvider, error) {
	if name == "" {
		return fallback, nil
	}
	model, err := c.models.Completion(name)
	if err != nil {
		return nil, newError(ErrConfiguration, err)
	}
	return model, nil
}

// Shape returns the selected composition.
func (p *Pipeline) Shape() Shape {
	return p.shape
}

// Reasoner returns the two-stage reasoner, or nil for single-stage
// shapes.
func (p *Pipeline) Reasoner() *Reasoner {
	return p.reasoner
}

// Batch reports whether the pipeline answers in one payload rather than
// as a stream.
func (p *Pipeline) Batch() bool {
	return p.shape.Reasons()
}

// lock serializes the exchange with others of the same session when the
// store supports it.
func (p *Pipeline) lock(ctx context.Context) (func(), error) {
	locker, ok := p.store.(memory.Locker)
	if !ok {
		return func() {}, nil
	}
	release, err := locker.Acquire(ctx, p.req.SessionID)
	if err != nil {
		return nil, newError(ErrMemory, err)
	}
	return release, nil
}

// prepared is what every shape reads before calling a model.
type prepared struct {
	history []llm.Message
	context string
}

// prepare reads the session history and, for retrieval shapes, the
// context. A retrieval failure aborts before any model call.
func (p *Pipeline) prepare(ctx context.Context) (prepared, error) {
	turns, err := p.store.History(ctx, p.req.SessionID)
	if err != nil {
		kind := ErrMemory
		if errors.Is(err, memory.ErrInvalidSession) {
			kind = ErrConfiguration
		}
		return prepared{}, newError(kind, err)
	}
	out := prepared{history: HistoryMessages(turns)}

	if !p.shape.Retrieves() {
		return out, nil
	}

	ctx, span := p.composer.tracer.Start(ctx, "pipeline.retrieve",
		trace.WithAttributes(attribute.Int("retrieval.documents", len(p.req.Documents))))
	defer span.End()

	ctx, cancel := withTimeout(ctx, p.composer.opts.RetrievalTimeout)
	defer cancel()

	passages, err := p.composer.retriever.Retrieve(ctx, retrieval.Query{
		Text:      p.req.Question,
		Documents: p.req.Documents,
		Embedder:  p.req.Model,
		K:         p.composer.opts.TopK,
	})
	if err != nil {
		return prepared{}, fail(span, newError(ErrRetrieval, err))
	}
	span.SetAttributes(attribute.Int("retrieval.passages", len(passages)))
	out.context = retrieval.JoinPassages(passages)
	return out, nil
}

// commit appends the exchange as one Human and one Assistant turn.
func (p *Pipeline) commit(ctx context.Context, answer string) error {
	if err := p.store.Append(ctx, p.req.SessionID, memory.Human(p.req.Question), memory.AI(answer)); err != nil {
		return newError(ErrMemory, fmt.Errorf("failed to append exchange: %w", err))
	}
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
