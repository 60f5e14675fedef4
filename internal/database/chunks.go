//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// Chunk is one embedded piece of an uploaded file.
type Chunk struct {
	Source    string
	Page      int
	Row       int
	Index     int
	Content   string
	Embedding []float32
}

// ID identifies the chunk within its embedder.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s#%d", c.Source, c.Index)
}

// SearchResult is a chunk ranked by similarity to a query.
type SearchResult struct {
	ID      string
	Content string
	Score   float64
}

const chunkSchema = `
	CREATE EXTENSION IF NOT EXISTS vector;
	CREATE TABLE IF NOT EXISTS document_chunks (
		id BIGSERIAL PRIMARY KEY,
		embedder TEXT NOT NULL,
		source TEXT NOT NULL,
		page INTEGER NOT NULL DEFAULT 0,
		row_number INTEGER NOT NULL DEFAULT 0,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding vector NOT NULL
	);
	CREATE INDEX IF NOT EXISTS document_chunks_source_idx
		ON document_chunks (embedder, source, chunk_index);`

// ChunkStore keeps chunk embeddings in the document_chunks table. The
// embedding column is untyped so embedders of any dimension share it.
type ChunkStore struct {
	pool *Pool
}

// NewChunkStore creates the pgvector extension and table if needed.
func NewChunkStore(ctx context.Context, pool *Pool) (*ChunkStore, error) {
	if _, err := pool.pool.Exec(ctx, chunkSchema); err != nil {
		return nil, fmt.Errorf("failed to create document_chunks table: %w", err)
	}
	return &ChunkStore{pool: pool}, nil
}

// Put replaces every chunk of source for the embedder.
func (s *ChunkStore) Put(ctx context.Context, embedder, source string, chunks []Chunk) error {
	return pgx.BeginFunc(ctx, s.pool.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM document_chunks WHERE embedder = $1 AND source = $2`,
			embedder, source); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}

		batch := &pgx.Batch{}
		for _, c := range chunks {
			batch.Queue(`
				INSERT INTO document_chunks
					(embedder, source, page, row_number, chunk_index, content, embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				embedder, source, c.Page, c.Row, c.Index, c.Content,
				pgvector.NewVector(c.Embedding))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		return nil
	})
}

// Has reports whether source has been indexed for the embedder.
func (s *ChunkStore) Has(ctx context.Context, embedder, source string) (bool, error) {
	var exists bool
	err := s.pool.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM document_chunks WHERE embedder = $1 AND source = $2)`,
		embedder, source).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check chunks: %w", err)
	}
	return exists, nil
}

// Search returns the topN chunks of the given sources closest to
// embedding by cosine distance, most similar first.
func (s *ChunkStore) Search(
	ctx context.Context,
	embedder string,
	sources []string,
	embedding []float32,
	topN int,
) ([]SearchResult, error) {
	rows, err := s.pool.pool.Query(ctx, `
		SELECT
			source || '#' || chunk_index AS id,
			content,
			1 - (embedding <=> $1::vector) AS score
		FROM document_chunks
		WHERE embedder = $2 AND source = ANY($3)
		ORDER BY embedding <=> $1::vector, source, chunk_index
		LIMIT $4`,
		pgvector.NewVector(embedding), embedder, sources, topN)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Content, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// Fetch returns every chunk's content for the sources, keyed by chunk
// id, for keyword ranking.
func (s *ChunkStore) Fetch(ctx context.Context, embedder string, sources []string) (map[string]string, error) {
	rows, err := s.pool.pool.Query(ctx, `
		SELECT source || '#' || chunk_index AS id, content
		FROM document_chunks
		WHERE embedder = $1 AND source = ANY($2)`,
		embedder, sources)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}
	defer rows.Close()

	docs := make(map[string]string)
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs[id] = content
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return docs, nil
}

// Delete drops source's chunks for every embedder.
func (s *ChunkStore) Delete(ctx context.Context, source string) error {
	if _, err := s.pool.pool.Exec(ctx,
		`DELETE FROM document_chunks WHERE source = $1`, source); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
