//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline composes and runs the per-request answer pipelines:
// plain chat, retrieval-grounded chat, and two-stage reasoning with or
// without retrieval, each backed by the session's conversation history.
package pipeline

import "fmt"

// Request is one question and the options that decide how it is
// answered.
type Request struct {
	Question string
	Model    string
	UseRAG   bool
	UseCoT   bool
	// Documents are only consulted when UseRAG is set.
	Documents []string
	SessionID string
	// Anonymous sessions are kept in short-lived memory.
	Anonymous bool
}

// Shape is the composition chosen for a request.
type Shape int

const (
	ShapePlain Shape = iota
	ShapeRAG
	ShapeCoT
	ShapeRAGCoT
)

func (s Shape) String() string {
	switch s {
	case ShapePlain:
		return "plain"
	case ShapeRAG:
		return "rag"
	case ShapeCoT:
		return "cot"
	case ShapeRAGCoT:
		return "rag+cot"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// Retrieves reports whether the shape reads retrieved context.
func (s Shape) Retrieves() bool {
	return s == ShapeRAG || s == ShapeRAGCoT
}

// Reasons reports whether the shape runs the two-stage reasoner.
func (s Shape) Reasons() bool {
	return s == ShapeCoT || s == ShapeRAGCoT
}

// SelectShape maps the two request flags to exactly one shape.
func SelectShape(useRAG, useCoT bool) Shape {
	switch {
	case !useRAG && !useCoT:
		return ShapePlain
	case useRAG && !useCoT:
		return ShapeRAG
	case !useRAG && useCoT:
		return ShapeCoT
	default:
		return ShapeRAGCoT
	}
}

// Stream event types.
const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// Event is one frame of a streamed answer. Err is set on error events
// and never serialized; Content then holds the public message.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Err     error  `json:"-"`
}
