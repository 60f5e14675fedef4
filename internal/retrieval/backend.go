//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/pgEdge/pgedge-ask-server/internal/config"
	"github.com/pgEdge/pgedge-ask-server/internal/database"
)

// Backend stores chunk embeddings per (embedder, source) pair.
type Backend interface {
	Has(ctx context.Context, embedder, source string) (bool, error)
	Put(ctx context.Context, embedder, source string, chunks []database.Chunk) error
	Search(ctx context.Context, embedder string, sources []string, embedding []float32, topN int) ([]database.SearchResult, error)
	Fetch(ctx context.Context, embedder string, sources []string) (map[string]string, error)
	Delete(ctx context.Context, source string) error
}

// OpenBackend builds the configured backend. pool is required by the
// postgres backend only.
func OpenBackend(ctx context.Context, cfg config.RetrievalConfig, pool *database.Pool) (Backend, error) {
	switch cfg.Backend {
	case config.RetrievalMemory, "":
		return NewMemoryBackend(cfg.CacheTTL), nil
	case config.RetrievalPostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres retrieval backend requires a database connection")
		}
		return database.NewChunkStore(ctx, pool)
	default:
		return nil, fmt.Errorf("unknown retrieval backend: %s", cfg.Backend)
	}
}

// MemoryBackend keeps chunks in a go-cache cache. Entries expire once
// unused for the TTL and are rebuilt on the next retrieval.
type MemoryBackend struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewMemoryBackend creates a memory backend. A non-positive ttl keeps
// entries until invalidated.
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	if ttl <= 0 {
		return &MemoryBackend{cache: gocache.New(gocache.NoExpiration, 0)}
	}
	return &MemoryBackend{cache: gocache.New(ttl, ttl/2)}
}

func chunkKey(embedder, source string) string {
	return embedder + "\x00" + source
}

func (b *MemoryBackend) chunks(embedder, source string) ([]database.Chunk, bool) {
	v, ok := b.cache.Get(chunkKey(embedder, source))
	if !ok {
		return nil, false
	}
	return v.([]database.Chunk), true
}

// Has reports whether source is cached for the embedder and restarts
// its TTL, so a search right after a positive answer finds the chunks.
func (b *MemoryBackend) Has(_ context.Context, embedder, source string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	chunks, ok := b.chunks(embedder, source)
	if ok {
		b.cache.SetDefault(chunkKey(embedder, source), chunks)
	}
	return ok, nil
}

// Put replaces the cached chunks of source.
func (b *MemoryBackend) Put(_ context.Context, embedder, source string, chunks []database.Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.SetDefault(chunkKey(embedder, source), chunks)
	return nil
}

// Search ranks the cached chunks of sources by cosine similarity.
func (b *MemoryBackend) Search(
	_ context.Context,
	embedder string,
	sources []string,
	embedding []float32,
	topN int,
) ([]database.SearchResult, error) {
	type scored struct {
		chunk database.Chunk
		score float64
	}
	var ranked []scored
	for _, source := range sources {
		chunks, _ := b.chunks(embedder, source)
		for _, c := range chunks {
			ranked = append(ranked, scored{chunk: c, score: cosine(embedding, c.Embedding)})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].chunk.Source != ranked[j].chunk.Source {
			return ranked[i].chunk.Source < ranked[j].chunk.Source
		}
		return ranked[i].chunk.Index < ranked[j].chunk.Index
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}

	results := make([]database.SearchResult, len(ranked))
	for i, r := range ranked {
		results[i] = database.SearchResult{ID: r.chunk.ID(), Content: r.chunk.Content, Score: r.score}
	}
	return results, nil
}

// Fetch returns the content of every cached chunk of sources.
func (b *MemoryBackend) Fetch(_ context.Context, embedder string, sources []string) (map[string]string, error) {
	docs := make(map[string]string)
	for _, source := range sources {
		chunks, _ := b.chunks(embedder, source)
		for _, c := range chunks {
			docs[c.ID()] = c.Content
		}
	}
	return docs, nil
}

// Delete drops source for every embedder.
func (b *MemoryBackend) Delete(_ context.Context, source string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	suffix := "\x00" + source
	for key := range b.cache.Items() {
		if strings.HasSuffix(key, suffix) {
			b.cache.Delete(key)
		}
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
