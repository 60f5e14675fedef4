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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileMessage is the on-disk form of a turn, one JSON array per session.
type fileMessage struct {
	Type string `json:"type"`
	Data struct {
		Content string `json:"content"`
	} `json:"data"`
}

// FileStore keeps each session in <dir>/<session>.json.
type FileStore struct {
	dir   string
	mu    sync.Mutex
	files map[string]*sync.Mutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileStore{dir: dir, files: make(map[string]*sync.Mutex)}, nil
}

func (s *FileStore) path(sessionID string) (string, error) {
	if !ValidSessionID(sessionID) {
		return "", ErrInvalidSession
	}
	return filepath.Join(s.dir, sessionID+".json"), nil
}

func (s *FileStore) lock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.files[path]
	if !ok {
		m = &sync.Mutex{}
		s.files[path] = m
	}
	return m
}

// History returns the session's turns; an unknown session has none.
func (s *FileStore) History(_ context.Context, sessionID string) ([]Turn, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	m := s.lock(path)
	m.Lock()
	defer m.Unlock()
	return readHistory(path)
}

// Append adds turns with a single atomic file replacement.
func (s *FileStore) Append(_ context.Context, sessionID string, turns ...Turn) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	m := s.lock(path)
	m.Lock()
	defer m.Unlock()

	history, err := readHistory(path)
	if err != nil {
		return err
	}
	history = append(history, turns...)

	messages := make([]fileMessage, len(history))
	for i, t := range history {
		messages[i].Type = t.Role
		messages[i].Data.Content = t.Content
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	return writeAtomic(path, data)
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func readHistory(path string) ([]Turn, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var messages []fileMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse history %s: %w", filepath.Base(path), err)
	}
	turns := make([]Turn, len(messages))
	for i, m := range messages {
		turns[i] = Turn{Role: m.Type, Content: m.Data.Content}
	}
	return turns, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".history-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace history: %w", err)
	}
	return nil
}
