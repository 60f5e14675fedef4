//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package document

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultSeparator    = "\n\n"
)

// Splitter cuts text on a separator and greedily merges the pieces into
// chunks of at most ChunkSize characters. Consecutive chunks share up to
// ChunkOverlap characters of whole pieces. A single piece longer than
// ChunkSize becomes its own oversized chunk.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separator    string
}

// NewSplitter returns a splitter with the given sizes and the default
// separator. Non-positive sizes fall back to the defaults.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}
	return &Splitter{ChunkSize: size, ChunkOverlap: overlap, Separator: DefaultSeparator}
}

// SplitDocuments splits each document, copying its metadata onto every
// chunk.
func (s *Splitter) SplitDocuments(docs []Document) []Document {
	var out []Document
	for _, d := range docs {
		for _, chunk := range s.SplitText(d.Text) {
			out = append(out, Document{Text: chunk, Metadata: d.Metadata})
		}
	}
	return out
}

// SplitText returns the non-blank chunks of text.
func (s *Splitter) SplitText(text string) []string {
	var pieces []string
	if s.Separator == "" {
		pieces = strings.Split(text, "")
	} else {
		pieces = strings.Split(text, s.Separator)
	}

	nonEmpty := pieces[:0]
	for _, p := range pieces {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return s.merge(nonEmpty)
}

func (s *Splitter) merge(pieces []string) []string {
	sepLen := utf8.RuneCountInString(s.Separator)

	var (
		chunks  []string
		current []string
		total   int
	)
	// joinLen is the separator cost of adding one more piece.
	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n+joinLen() > s.ChunkSize && len(current) > 0 {
			if chunk := s.join(current); chunk != "" {
				chunks = append(chunks, chunk)
			}
			// Drop leading pieces until what remains fits the overlap and
			// leaves room for p.
			for total > s.ChunkOverlap || (total > 0 && total+n+joinLen() > s.ChunkSize) {
				drop := utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}

	if chunk := s.join(current); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (s *Splitter) join(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, s.Separator))
}
