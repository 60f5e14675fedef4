//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package retrieval

import (
	"sort"

	"github.com/pgEdge/pgedge-ask-server/internal/database"
)

// DefaultRRFConstant is the k constant for Reciprocal Rank Fusion.
const DefaultRRFConstant = 60

// ReciprocalRankFusion merges rankings by summing 1/(k + rank) for each
// ranking a result appears in, with rank 1-indexed. Results are matched
// by ID and returned best first; ties are ordered by ID.
func ReciprocalRankFusion(k float64, rankings ...[]database.SearchResult) []database.SearchResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	fused := make(map[string]*database.SearchResult)
	for _, ranking := range rankings {
		for i, r := range ranking {
			contribution := 1.0 / (k + float64(i+1))
			if existing, ok := fused[r.ID]; ok {
				existing.Score += contribution
				continue
			}
			fused[r.ID] = &database.SearchResult{ID: r.ID, Content: r.Content, Score: contribution}
		}
	}

	results := make([]database.SearchResult, 0, len(fused))
	for _, r := range fused {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}

// HybridSearch fuses a vector and a keyword ranking and keeps the top N.
func HybridSearch(vectorResults, keywordResults []database.SearchResult, topN int) []database.SearchResult {
	results := ReciprocalRankFusion(DefaultRRFConstant, vectorResults, keywordResults)
	if len(results) > topN {
		results = results[:topN]
	}
	return results
}
