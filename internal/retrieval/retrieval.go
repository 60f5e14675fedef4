//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package retrieval finds passages in uploaded files that are relevant to
// a question. Files are indexed on first use (load, split, embed) and
// searched by embedding similarity, optionally fused with BM25.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pgEdge/pgedge-ask-server/internal/bm25"
	"github.com/pgEdge/pgedge-ask-server/internal/config"
	"github.com/pgEdge/pgedge-ask-server/internal/database"
	"github.com/pgEdge/pgedge-ask-server/internal/document"
	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

// DefaultK is the number of passages returned when a query sets none.
const DefaultK = 4

// hybridCandidates multiplies K to size each ranking before fusion.
const hybridCandidates = 4

// Query asks for the K passages of Documents closest to Text, using the
// named embedder.
type Query struct {
	Text      string
	Documents []string
	Embedder  string
	K         int
}

// Embedders looks up embedding providers by model selector.
type Embedders interface {
	Embedding(name string) (llm.EmbeddingProvider, error)
}

// Resolver maps a document identifier to a file path.
type Resolver interface {
	Resolve(id string) (string, error)
}

// Options tune a Service.
type Options struct {
	Mode         string
	K            int
	ChunkSize    int
	ChunkOverlap int
	// IndexTimeout bounds one file's indexing. Indexing is shared by
	// concurrent requests and outlives the one that started it.
	IndexTimeout time.Duration
	Logger       *slog.Logger
}

// Service indexes and searches uploaded files.
type Service struct {
	backend   Backend
	embedders Embedders
	resolver  Resolver
	splitter  *document.Splitter
	mode      string
	k         int
	timeout   time.Duration
	logger    *slog.Logger
	indexing  singleflight.Group
}

// NewService creates a retrieval service over backend.
func NewService(backend Backend, embedders Embedders, resolver Resolver, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	k := opts.K
	if k <= 0 {
		k = DefaultK
	}
	mode := opts.Mode
	if mode == "" {
		mode = config.ModeVector
	}
	return &Service{
		backend:   backend,
		embedders: embedders,
		resolver:  resolver,
		splitter:  document.NewSplitter(opts.ChunkSize, opts.ChunkOverlap),
		mode:      mode,
		k:         k,
		timeout:   opts.IndexTimeout,
		logger:    logger.With("component", "retrieval"),
	}
}

// Retrieve returns the passages most relevant to q, best first. A query
// without documents returns nothing. Documents not yet indexed for the
// embedder are indexed first.
func (s *Service) Retrieve(ctx context.Context, q Query) ([]string, error) {
	if len(q.Documents) == 0 {
		return nil, nil
	}
	k := q.K
	if k <= 0 {
		k = s.k
	}

	embedder, err := s.embedders.Embedding(q.Embedder)
	if err != nil {
		return nil, err
	}

	sources, err := s.ensureIndexed(ctx, q.Embedder, embedder, q.Documents)
	if err != nil {
		return nil, err
	}

	vector, err := embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var results []database.SearchResult
	if s.mode == config.ModeHybrid {
		results, err = s.hybridSearch(ctx, q.Embedder, sources, q.Text, vector, k)
	} else {
		results, err = s.backend.Search(ctx, q.Embedder, sources, vector, k)
	}
	if err != nil {
		return nil, err
	}

	passages := make([]string, len(results))
	for i, r := range results {
		passages[i] = r.Content
	}
	s.logger.Debug("retrieved passages",
		"embedder", q.Embedder, "documents", len(sources), "passages", len(passages))
	return passages, nil
}

func (s *Service) hybridSearch(
	ctx context.Context,
	embedder string,
	sources []string,
	text string,
	vector []float32,
	k int,
) ([]database.SearchResult, error) {
	vectorResults, err := s.backend.Search(ctx, embedder, sources, vector, k*hybridCandidates)
	if err != nil {
		return nil, err
	}

	docs, err := s.backend.Fetch(ctx, embedder, sources)
	if err != nil {
		return nil, err
	}
	idx := bm25.NewIndex()
	for id, content := range docs {
		idx.Add(id, content)
	}
	var keywordResults []database.SearchResult
	for _, r := range idx.Search(text, k*hybridCandidates) {
		keywordResults = append(keywordResults, database.SearchResult{ID: r.ID, Content: r.Content, Score: r.Score})
	}

	return HybridSearch(vectorResults, keywordResults, k), nil
}

// ensureIndexed resolves documents to source names, indexing any the
// backend does not hold yet.
func (s *Service) ensureIndexed(
	ctx context.Context,
	name string,
	embedder llm.EmbeddingProvider,
	documents []string,
) ([]string, error) {
	seen := make(map[string]bool, len(documents))
	var sources []string
	for _, id := range documents {
		path, err := s.resolver.Resolve(id)
		if err != nil {
			return nil, fmt.Errorf("document %q: %w", id, err)
		}
		source := filepath.Base(path)
		if seen[source] {
			continue
		}
		seen[source] = true

		has, err := s.backend.Has(ctx, name, source)
		if err != nil {
			return nil, err
		}
		if !has {
			if err := s.index(ctx, name, embedder, path); err != nil {
				return nil, err
			}
		}
		sources = append(sources, source)
	}
	return sources, nil
}

// Index loads, splits and embeds the file at path and stores its chunks
// for the named embedder, replacing any previous chunks.
func (s *Service) Index(ctx context.Context, name, path string) error {
	embedder, err := s.embedders.Embedding(name)
	if err != nil {
		return err
	}
	return s.index(ctx, name, embedder, path)
}

// index builds path once for all concurrent callers. The build is
// detached from the caller that started it, so a caller that gives up
// does not fail the others waiting on the same file.
func (s *Service) index(ctx context.Context, name string, embedder llm.EmbeddingProvider, path string) error {
	key := name + "\x00" + path
	done := s.indexing.DoChan(key, func() (_ any, err error) {
		// DoChan re-panics on a goroutine of its own, beyond any
		// caller's recover.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("indexing %s panicked: %v", filepath.Base(path), r)
			}
		}()
		buildCtx := context.WithoutCancel(ctx)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			buildCtx, cancel = context.WithTimeout(buildCtx, s.timeout)
			defer cancel()
		}
		return nil, s.build(buildCtx, name, embedder, path)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-done:
		return res.Err
	}
}

func (s *Service) build(ctx context.Context, name string, embedder llm.EmbeddingProvider, path string) error {
	docs, err := document.Load(ctx, path)
	if err != nil {
		return err
	}
	pieces := s.splitter.SplitDocuments(docs)
	source := filepath.Base(path)

	chunks := make([]database.Chunk, len(pieces))
	if len(pieces) > 0 {
		texts := make([]string, len(pieces))
		for i, p := range pieces {
			texts[i] = p.Text
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed %s: %w", source, err)
		}
		if len(vectors) != len(pieces) {
			return fmt.Errorf("failed to embed %s: got %d embeddings for %d chunks",
				source, len(vectors), len(pieces))
		}
		for i, p := range pieces {
			chunks[i] = database.Chunk{
				Source:    source,
				Page:      p.Metadata.Page,
				Row:       p.Metadata.Row,
				Index:     i,
				Content:   p.Text,
				Embedding: vectors[i],
			}
		}
	}

	if err := s.backend.Put(ctx, name, source, chunks); err != nil {
		return err
	}
	s.logger.Info("indexed document", "source", source, "embedder", name, "chunks", len(chunks))
	return nil
}

// Invalidate drops every chunk of the file at path so the next retrieval
// re-indexes it.
func (s *Service) Invalidate(ctx context.Context, path string) error {
	source := filepath.Base(path)
	if err := s.backend.Delete(ctx, source); err != nil {
		return err
	}
	s.logger.Debug("invalidated document", "source", source)
	return nil
}

// JoinPassages concatenates passages into one context string.
func JoinPassages(passages []string) string {
	return strings.Join(passages, "\n\n")
}
