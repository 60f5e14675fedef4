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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-ask-server/internal/config"
	"github.com/pgEdge/pgedge-ask-server/internal/database"
	"github.com/pgEdge/pgedge-ask-server/internal/document"
	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

// constantEmbedder gives every text the same vector, so vector ranking
// falls back to chunk order.
type constantEmbedder struct {
	batches atomic.Int32
	err     error
}

func (e *constantEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 1}, e.err
}

func (e *constantEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batches.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 1}
	}
	return out, nil
}

func (e *constantEmbedder) Dimensions() int   { return 2 }
func (e *constantEmbedder) ModelName() string { return "constant" }

type embedders map[string]llm.EmbeddingProvider

func (m embedders) Embedding(name string) (llm.EmbeddingProvider, error) {
	if e, ok := m[name]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("unknown model: %s", name)
}

type dirResolver string

func (d dirResolver) Resolve(id string) (string, error) {
	return filepath.Join(string(d), filepath.Base(id)), nil
}

func setup(t *testing.T, mode string, files map[string]string) (*Service, *constantEmbedder, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	emb := &constantEmbedder{}
	svc := NewService(NewMemoryBackend(time.Hour), embedders{"test": emb}, dirResolver(dir), Options{
		Mode:         mode,
		ChunkSize:    15,
		ChunkOverlap: 0,
	})
	return svc, emb, dir
}

func TestRetrieve_ContextContainsDocumentText(t *testing.T) {
	svc, _, _ := setup(t, config.ModeVector, map[string]string{"doc.txt": "The sky is blue."})

	passages, err := svc.Retrieve(context.Background(), Query{
		Text:      "What color is the sky?",
		Documents: []string{"uploaded_files/doc.txt"},
		Embedder:  "test",
	})
	require.NoError(t, err)
	assert.Contains(t, JoinPassages(passages), "The sky is blue.")
}

func TestRetrieve_NoDocuments(t *testing.T) {
	svc, emb, _ := setup(t, config.ModeVector, nil)

	passages, err := svc.Retrieve(context.Background(), Query{Text: "q", Embedder: "test"})
	require.NoError(t, err)
	assert.Empty(t, passages)
	assert.Zero(t, emb.batches.Load())
}

func TestRetrieve_IndexesOnceAndInvalidates(t *testing.T) {
	svc, emb, dir := setup(t, config.ModeVector, map[string]string{"a.txt": "alpha apples"})
	ctx := context.Background()
	q := Query{Text: "apples", Documents: []string{"a.txt", "uploaded_files/a.txt"}, Embedder: "test"}

	_, err := svc.Retrieve(ctx, q)
	require.NoError(t, err)
	_, err = svc.Retrieve(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int32(1), emb.batches.Load())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("changed content"), 0o644))
	require.NoError(t, svc.Invalidate(ctx, filepath.Join(dir, "a.txt")))

	passages, err := svc.Retrieve(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int32(2), emb.batches.Load())
	assert.Equal(t, []string{"changed content"}, passages)
}

func TestRetrieve_Limit(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 10; i++ {
		paragraphs = append(paragraphs, fmt.Sprintf("paragraph %d", i))
	}
	svc, _, _ := setup(t, config.ModeVector, map[string]string{"many.txt": strings.Join(paragraphs, "\n\n")})

	passages, err := svc.Retrieve(context.Background(), Query{Text: "x", Documents: []string{"many.txt"}, Embedder: "test"})
	require.NoError(t, err)
	assert.Len(t, passages, DefaultK)
	assert.Equal(t, "paragraph 0", passages[0])

	passages, err = svc.Retrieve(context.Background(), Query{Text: "x", Documents: []string{"many.txt"}, Embedder: "test", K: 2})
	require.NoError(t, err)
	assert.Len(t, passages, 2)
}

func TestRetrieve_HybridPromotesKeywordMatch(t *testing.T) {
	files := map[string]string{"fruit.txt": "alpha apples\n\nbeta bananas\n\ngamma grapes"}

	vector, _, _ := setup(t, config.ModeVector, files)
	passages, err := vector.Retrieve(context.Background(), Query{Text: "grapes", Documents: []string{"fruit.txt"}, Embedder: "test"})
	require.NoError(t, err)
	require.Len(t, passages, 3)
	assert.Equal(t, "alpha apples", passages[0])

	hybrid, _, _ := setup(t, config.ModeHybrid, files)
	passages, err = hybrid.Retrieve(context.Background(), Query{Text: "grapes", Documents: []string{"fruit.txt"}, Embedder: "test"})
	require.NoError(t, err)
	require.Len(t, passages, 3)
	assert.Equal(t, "gamma grapes", passages[0])
}

func TestRetrieve_Failures(t *testing.T) {
	svc, emb, _ := setup(t, config.ModeVector, map[string]string{"doc.txt": "text", "doc.docx": "x"})
	ctx := context.Background()

	_, err := svc.Retrieve(ctx, Query{Text: "q", Documents: []string{"doc.txt"}, Embedder: "missing"})
	assert.Error(t, err)

	_, err = svc.Retrieve(ctx, Query{Text: "q", Documents: []string{"doc.docx"}, Embedder: "test"})
	assert.True(t, document.IsUnsupported(err))

	_, err = svc.Retrieve(ctx, Query{Text: "q", Documents: []string{"absent.txt"}, Embedder: "test"})
	assert.ErrorIs(t, err, os.ErrNotExist)

	emb.err = errors.New("backend down")
	_, err = svc.Retrieve(ctx, Query{Text: "q", Documents: []string{"doc.txt"}, Embedder: "test"})
	assert.ErrorIs(t, err, emb.err)
}

// gatedEmbedder blocks EmbedBatch until release is closed or its context
// ends.
type gatedEmbedder struct {
	constantEmbedder
	started chan struct{}
	release chan struct{}
}

func (e *gatedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	close(e.started)
	select {
	case <-e.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return e.constantEmbedder.EmbedBatch(ctx, texts)
}

func TestRetrieve_AbandonedIndexingServesOtherCallers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("shared file"), 0o644))
	emb := &gatedEmbedder{started: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(NewMemoryBackend(time.Hour), embedders{"test": emb}, dirResolver(dir), Options{})
	q := Query{Text: "q", Documents: []string{"doc.txt"}, Embedder: "test"}

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Retrieve(first, q)
		firstErr <- err
	}()
	<-emb.started

	type result struct {
		passages []string
		err      error
	}
	second := make(chan result, 1)
	go func() {
		passages, err := svc.Retrieve(context.Background(), q)
		second <- result{passages, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	time.Sleep(20 * time.Millisecond)
	close(emb.release)

	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Equal(t, []string{"shared file"}, res.passages)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never finished")
	}
	assert.Equal(t, int32(1), emb.batches.Load())
}

func TestRetrieve_IndexTimeout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("slow"), 0o644))
	emb := &gatedEmbedder{started: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(NewMemoryBackend(time.Hour), embedders{"test": emb}, dirResolver(dir),
		Options{IndexTimeout: 20 * time.Millisecond})

	_, err := svc.Retrieve(context.Background(), Query{Text: "q", Documents: []string{"doc.txt"}, Embedder: "test"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type panickingEmbedder struct{ constantEmbedder }

func (*panickingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	panic("index out of range")
}

func TestRetrieve_IndexingPanicBecomesError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("text"), 0o644))
	svc := NewService(NewMemoryBackend(time.Hour), embedders{"test": &panickingEmbedder{}}, dirResolver(dir), Options{})

	var err error
	require.NotPanics(t, func() {
		_, err = svc.Retrieve(context.Background(), Query{Text: "q", Documents: []string{"doc.txt"}, Embedder: "test"})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexing doc.txt panicked")
}

func TestMemoryBackend_HasRefreshesTTL(t *testing.T) {
	b := NewMemoryBackend(100 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "e", "x.txt", []database.Chunk{
		{Source: "x.txt", Content: "kept", Embedding: []float32{1, 0}},
	}))

	time.Sleep(60 * time.Millisecond)
	has, err := b.Has(ctx, "e", "x.txt")
	require.NoError(t, err)
	require.True(t, has)

	// Past the original expiry, but within the TTL restarted by Has.
	time.Sleep(60 * time.Millisecond)
	results, err := b.Search(ctx, "e", []string{"x.txt"}, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "kept", results[0].Content)
}

func TestReciprocalRankFusion(t *testing.T) {
	vec := []database.SearchResult{{ID: "a", Content: "A"}, {ID: "b", Content: "B"}}
	kw := []database.SearchResult{{ID: "b", Content: "B"}, {ID: "c", Content: "C"}}

	results := ReciprocalRankFusion(60, vec, kw)
	require.Len(t, results, 3)
	assert.Equal(t, "b", results[0].ID)
	assert.InDelta(t, 1.0/62+1.0/61, results[0].Score, 1e-12)
	assert.Equal(t, "a", results[1].ID)
	assert.Equal(t, "c", results[2].ID)

	assert.Len(t, HybridSearch(vec, kw, 2), 2)
}

func TestMemoryBackend(t *testing.T) {
	b := NewMemoryBackend(0)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "e1", "x.txt", []database.Chunk{
		{Source: "x.txt", Index: 0, Content: "near", Embedding: []float32{1, 0}},
		{Source: "x.txt", Index: 1, Content: "far", Embedding: []float32{0, 1}},
	}))
	require.NoError(t, b.Put(ctx, "e2", "x.txt", nil))

	has, _ := b.Has(ctx, "e1", "x.txt")
	assert.True(t, has)
	has, _ = b.Has(ctx, "e1", "y.txt")
	assert.False(t, has)

	results, err := b.Search(ctx, "e1", []string{"x.txt"}, []float32{1, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "near", results[0].Content)
	assert.Equal(t, "x.txt#0", results[0].ID)

	require.NoError(t, b.Delete(ctx, "x.txt"))
	has, _ = b.Has(ctx, "e1", "x.txt")
	assert.False(t, has)
	has, _ = b.Has(ctx, "e2", "x.txt")
	assert.False(t, has)
}

func TestOpenBackend(t *testing.T) {
	b, err := OpenBackend(context.Background(), config.RetrievalConfig{Backend: config.RetrievalMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, b)

	_, err = OpenBackend(context.Background(), config.RetrievalConfig{Backend: config.RetrievalPostgres}, nil)
	assert.Error(t, err)

	_, err = OpenBackend(context.Background(), config.RetrievalConfig{Backend: "faiss"}, nil)
	assert.Error(t, err)
}
