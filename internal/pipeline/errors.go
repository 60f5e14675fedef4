//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"context"
	"errors"

	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

// Failure kinds. Match them with errors.Is.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrRetrieval       = errors.New("retrieval failed")
	ErrModelInvocation = errors.New("model invocation failed")
	ErrMemory          = errors.New("session memory failed")
)

// Error is a pipeline failure of one kind. Both the kind and the cause
// are reachable through errors.Is and errors.As.
type Error struct {
	Kind    error
	Err     error
	Timeout bool
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind, err error) *Error {
	return &Error{
		Kind:    kind,
		Err:     err,
		Timeout: errors.Is(err, context.DeadlineExceeded) || llm.IsTimeout(err),
	}
}

// IsTimeout reports whether err is a pipeline failure caused by a
// deadline.
func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Timeout
}

func isKind(err, kind error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
