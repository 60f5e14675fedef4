//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package memory stores conversation history per session.
package memory

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
)

// Roles stored in a session's history.
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// MaxSessionIDLength bounds session identifiers.
const MaxSessionIDLength = 128

// ErrInvalidSession is returned for identifiers that cannot name a
// session safely.
var ErrInvalidSession = errors.New("invalid session id")

// Turn is one message in a conversation.
type Turn struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// Human returns a human turn.
func Human(content string) Turn {
	return Turn{Role: RoleHuman, Content: content, CreatedAt: time.Now()}
}

// AI returns an assistant turn.
func AI(content string) Turn {
	return Turn{Role: RoleAI, Content: content, CreatedAt: time.Now()}
}

// Store persists ordered history per session. Implementations write all
// turns passed to one Append call in a single operation.
type Store interface {
	History(ctx context.Context, sessionID string) ([]Turn, error)
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	Close() error
}

// Locker is implemented by stores that can hold a session exclusively
// for the duration of an exchange.
type Locker interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// ValidSessionID reports whether id is non-empty printable ASCII without
// path separators and within MaxSessionIDLength.
func ValidSessionID(id string) bool {
	if id == "" || len(id) > MaxSessionIDLength {
		return false
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return false
	}
	for _, r := range id {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
