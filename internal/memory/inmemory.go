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
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// InMemoryStore keeps histories in a process-local map.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]Turn)}
}

// History returns a copy of the session's turns.
func (s *InMemoryStore) History(_ context.Context, sessionID string) ([]Turn, error) {
	if !ValidSessionID(sessionID) {
		return nil, ErrInvalidSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sessions[sessionID]), nil
}

// Append adds turns under one lock.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, turns ...Turn) error {
	if !ValidSessionID(sessionID) {
		return ErrInvalidSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], turns...)
	return nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

// EphemeralStore keeps histories that expire after a period without
// activity. It backs sessions the client did not name.
type EphemeralStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewEphemeralStore creates a store whose sessions expire after ttl.
func NewEphemeralStore(ttl time.Duration) *EphemeralStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EphemeralStore{cache: cache.New(ttl, ttl/2)}
}

// History returns a copy of the session's turns.
func (s *EphemeralStore) History(_ context.Context, sessionID string) ([]Turn, error) {
	if !ValidSessionID(sessionID) {
		return nil, ErrInvalidSession
	}
	if v, ok := s.cache.Get(sessionID); ok {
		return slices.Clone(v.([]Turn)), nil
	}
	return nil, nil
}

// Append adds turns and restarts the session's expiry.
func (s *EphemeralStore) Append(_ context.Context, sessionID string, turns ...Turn) error {
	if !ValidSessionID(sessionID) {
		return ErrInvalidSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var history []Turn
	if v, ok := s.cache.Get(sessionID); ok {
		history = v.([]Turn)
	}
	next := make([]Turn, 0, len(history)+len(turns))
	next = append(next, history...)
	next = append(next, turns...)
	s.cache.Set(sessionID, next, cache.DefaultExpiration)
	return nil
}

// Close drops every session.
func (s *EphemeralStore) Close() error {
	s.cache.Flush()
	return nil
}
