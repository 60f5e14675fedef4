//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package bm25 provides keyword ranking for document chunks, used to
// complement embedding similarity in hybrid retrieval.
package bm25

import (
	"math"
)

// Default scoring parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Scorer computes Okapi BM25 term scores for a corpus.
type Scorer struct {
	K1       float64
	B        float64
	AvgDL    float64
	DocCount int
}

// NewScorer returns a scorer with the default parameters.
func NewScorer() *Scorer {
	return &Scorer{K1: DefaultK1, B: DefaultB}
}

// IDF is the Lucene form, log(1 + (N - df + 0.5) / (df + 0.5)), which
// stays non-negative for terms present in most documents.
func (s *Scorer) IDF(docFreq int) float64 {
	if s.DocCount == 0 || docFreq == 0 {
		return 0
	}
	n := float64(s.DocCount)
	df := float64(docFreq)
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// Score returns one term's contribution for a document of docLen tokens
// containing the term tf times.
func (s *Scorer) Score(tf, docFreq, docLen int) float64 {
	if tf == 0 || docFreq == 0 || s.DocCount == 0 || s.AvgDL == 0 {
		return 0
	}
	tfF := float64(tf)
	norm := 1 - s.B + s.B*(float64(docLen)/s.AvgDL)
	return s.IDF(docFreq) * (tfF * (s.K1 + 1)) / (tfF + s.K1*norm)
}
