//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/pgEdge/pgedge-ask-server/internal/config"
)

func TestConnectionString(t *testing.T) {
	t.Setenv("PGUSER", "")
	t.Setenv("USER", "")

	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "url wins",
			cfg:  config.DatabaseConfig{URL: "postgres://u@db/app", Host: "ignored"},
			want: "postgres://u@db/app",
		},
		{
			name: "keyword form",
			cfg: config.DatabaseConfig{
				Host: "localhost", Port: 5432, Database: "ask",
				Username: "ask", Password: "secret", SSLMode: "prefer",
			},
			want: "host=localhost port=5432 dbname=ask user=ask password=secret sslmode=prefer",
		},
		{
			name: "quoted values",
			cfg:  config.DatabaseConfig{Host: "db", Password: `it's a\pass`},
			want: `host=db password='it\'s a\\pass'`,
		},
		{
			name: "minimal",
			cfg:  config.DatabaseConfig{Host: "db"},
			want: "host=db",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConnectionString(tt.cfg); got != tt.want {
				t.Errorf("ConnectionString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnectionString_UserFromEnvironment(t *testing.T) {
	t.Setenv("PGUSER", "")
	t.Setenv("USER", "fallback")

	got := ConnectionString(config.DatabaseConfig{Host: "db"})
	if got != "host=db user=fallback" {
		t.Errorf("unexpected connection string %q", got)
	}
}

func TestChunk_ID(t *testing.T) {
	c := Chunk{Source: "notes.txt", Index: 3}
	if c.ID() != "notes.txt#3" {
		t.Errorf("ID() = %q", c.ID())
	}
}

func TestChunkStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := NewPool(ctx, config.DatabaseConfig{URL: url})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	store, err := NewChunkStore(ctx, pool)
	if err != nil {
		t.Fatalf("NewChunkStore: %v", err)
	}

	embedder := fmt.Sprintf("test-%d", time.Now().UnixNano())
	source := "sky.txt"
	defer func() { _ = store.Delete(ctx, source) }()

	chunks := []Chunk{
		{Source: source, Index: 0, Content: "The sky is blue.", Embedding: []float32{1, 0, 0}},
		{Source: source, Index: 1, Content: "Grass is green.", Embedding: []float32{0, 1, 0}},
	}
	if err := store.Put(ctx, embedder, source, chunks); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Re-putting replaces rather than duplicates.
	if err := store.Put(ctx, embedder, source, chunks); err != nil {
		t.Fatalf("Put again: %v", err)
	}

	has, err := store.Has(ctx, embedder, source)
	if err != nil || !has {
		t.Fatalf("Has = %v, %v", has, err)
	}

	results, err := store.Search(ctx, embedder, []string{source}, []float32{0.9, 0.1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].Content != "The sky is blue." || results[0].ID != "sky.txt#0" {
		t.Errorf("unexpected results %+v", results)
	}

	docs, err := store.Fetch(ctx, embedder, []string{source})
	if err != nil || len(docs) != 2 {
		t.Errorf("Fetch = %v, %v", docs, err)
	}

	if err := store.Delete(ctx, source); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if has, _ := store.Has(ctx, embedder, source); has {
		t.Error("expected chunks to be deleted")
	}
}
