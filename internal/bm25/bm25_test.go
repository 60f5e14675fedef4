//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package bm25

import (
	"math"
	"reflect"
	"testing"
)

func TestScorer_IDF(t *testing.T) {
	s := NewScorer()
	s.DocCount = 100
	s.AvgDL = 50

	tests := []struct {
		name    string
		docFreq int
		want    float64
	}{
		{"rare term", 1, math.Log(1 + 99.5/1.5)},
		{"common term", 50, math.Log(2)},
		{"absent term", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IDF(tt.docFreq); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("IDF(%d) = %f, want %f", tt.docFreq, got, tt.want)
			}
		})
	}
}

func TestScorer_Score(t *testing.T) {
	s := NewScorer()
	s.DocCount = 10
	s.AvgDL = 100

	if s.Score(0, 5, 100) != 0 {
		t.Error("expected zero score for absent term")
	}
	// Higher term frequency saturates but still increases the score.
	low, high := s.Score(1, 5, 100), s.Score(10, 5, 100)
	if high <= low || high > low*(s.K1+1) {
		t.Errorf("unexpected saturation: tf=1 %f, tf=10 %f", low, high)
	}
	// Longer documents score lower for the same frequency.
	if s.Score(2, 5, 50) <= s.Score(2, 5, 200) {
		t.Error("expected length normalization to favor shorter documents")
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{"punctuation and case", "Hello, World!", []string{"hello", "world"}},
		{"stop words and short runs", "the version 2 is x released", []string{"version", "released"}},
		{"ideographs are single tokens", "向量数据库 pgvector", []string{"向", "量", "数", "据", "库", "pgvector"}},
		{"mixed run splits at ideographs", "abc中def", []string{"abc", "中", "def"}},
		{"empty", "", nil},
		{"only stop words", "the and or", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Tokenize(tt.input); !reflect.DeepEqual(got, tt.expect) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.input, got, tt.expect)
			}
		})
	}
}

func TestIndex_Search(t *testing.T) {
	idx := NewIndex()
	idx.Add("1", "PostgreSQL is a powerful relational database")
	idx.Add("2", "MySQL is another popular database")
	idx.Add("3", "MongoDB is a NoSQL document database")
	idx.Add("4", "Redis is an in-memory data store")

	results := idx.Search("PostgreSQL database", 10)
	if len(results) != 3 {
		t.Fatalf("expected 3 database results, got %d: %+v", len(results), results)
	}
	if results[0].ID != "1" {
		t.Errorf("expected doc 1 first, got %s", results[0].ID)
	}
	if results[0].Content != "PostgreSQL is a powerful relational database" {
		t.Errorf("unexpected content %q", results[0].Content)
	}

	if got := idx.Search("PostgreSQL database", 1); len(got) != 1 {
		t.Errorf("expected topN to limit results, got %d", len(got))
	}
	if got := idx.Search("the", 10); got != nil {
		t.Errorf("expected no results for a stop-word query, got %v", got)
	}
}

func TestIndex_AddReplaceRemove(t *testing.T) {
	idx := NewIndex()
	idx.Add("a", "alpha beta")
	idx.Add("b", "beta gamma")
	idx.Add("a", "delta")

	if idx.Len() != 2 {
		t.Fatalf("expected 2 documents, got %d", idx.Len())
	}
	if got := idx.Search("alpha", 5); len(got) != 0 {
		t.Errorf("replaced content should not match: %v", got)
	}

	idx.Remove("b")
	idx.Remove("missing")
	if idx.Len() != 1 {
		t.Errorf("expected 1 document, got %d", idx.Len())
	}
	if got := idx.Search("beta", 5); len(got) != 0 {
		t.Errorf("removed document should not match: %v", got)
	}
	if _, ok := idx.docFreqs["gamma"]; ok {
		t.Error("document frequencies should drop removed terms")
	}
}

func TestIndex_TiesOrderedByID(t *testing.T) {
	idx := NewIndex()
	idx.Add("b", "shared term")
	idx.Add("a", "shared term")
	idx.Add("c", "unrelated words")

	results := idx.Search("shared", 5)
	if len(results) != 2 || results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("unexpected order %+v", results)
	}
}
