//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package memory

import (
	"context"
	"sync"
)

// Locked adds per-session mutual exclusion to a store. Callers that hold
// a session through Acquire see each earlier exchange completely before
// reading history for the next one.
type Locked struct {
	Store

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocked wraps store.
func NewLocked(store Store) *Locked {
	return &Locked{Store: store, slots: make(map[string]*slot)}
}

// Acquire blocks until the session is free or ctx is done.
func (l *Locked) Acquire(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[sessionID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[sessionID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(sessionID, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(sessionID, s)
		})
	}, nil
}

func (l *Locked) unref(sessionID string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, sessionID)
	}
}

var _ Locker = (*Locked)(nil)
