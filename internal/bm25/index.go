//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package bm25

import (
	"sort"
	"sync"
)

type entry struct {
	content string
	length  int
	freqs   map[string]int
}

// Result is one ranked chunk.
type Result struct {
	ID      string
	Content string
	Score   float64
}

// Index is an in-memory BM25 index over identified texts. It is safe for
// concurrent use.
type Index struct {
	mu       sync.RWMutex
	docs     map[string]entry
	docFreqs map[string]int
	totalLen int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		docs:     make(map[string]entry),
		docFreqs: make(map[string]int),
	}
}

// Add indexes content under id, replacing any previous content.
func (idx *Index) Add(id, content string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.remove(id)

	freqs := Frequencies(content)
	length := 0
	for term, n := range freqs {
		length += n
		idx.docFreqs[term]++
	}
	idx.docs[id] = entry{content: content, length: length, freqs: freqs}
	idx.totalLen += length
}

// Remove drops id from the index.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.remove(id)
}

func (idx *Index) remove(id string) {
	old, ok := idx.docs[id]
	if !ok {
		return
	}
	for term := range old.freqs {
		if idx.docFreqs[term]--; idx.docFreqs[term] <= 0 {
			delete(idx.docFreqs, term)
		}
	}
	idx.totalLen -= old.length
	delete(idx.docs, id)
}

// Len returns the number of indexed texts.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Search returns up to topN texts with a positive score, best first.
// Equal scores are ordered by id.
func (idx *Index) Search(query string, topN int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.docs) == 0 || topN <= 0 {
		return nil
	}
	terms := Frequencies(query)
	if len(terms) == 0 {
		return nil
	}

	scorer := NewScorer()
	scorer.DocCount = len(idx.docs)
	scorer.AvgDL = float64(idx.totalLen) / float64(len(idx.docs))

	var results []Result
	for id, doc := range idx.docs {
		var score float64
		for term := range terms {
			score += scorer.Score(doc.freqs[term], idx.docFreqs[term], doc.length)
		}
		if score > 0 {
			results = append(results, Result{ID: id, Content: doc.content, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topN {
		results = results[:topN]
	}
	return results
}
