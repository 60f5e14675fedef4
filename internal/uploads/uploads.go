//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package uploads stores uploaded files in a single directory under
// collision-free names.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidName is returned for names that do not denote a plain file
// inside the upload directory.
var ErrInvalidName = errors.New("invalid file name")

// maxAttempts bounds the search for a free name.
const maxAttempts = 10000

// Store saves files under Dir.
type Store struct {
	Dir string
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Store{Dir: dir}, nil
}

// cleanName strips any directory components from a client-supplied name.
func cleanName(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrInvalidName
	}
	return name, nil
}

// candidate returns name for n == 0 and "base(n).ext" otherwise.
func candidate(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s(%d)%s", strings.TrimSuffix(name, ext), n, ext)
}

// Save writes r under the first free name among name, base(1).ext,
// base(2).ext and so on, and returns the name used. Names are claimed
// with an exclusive create so concurrent uploads never overwrite each
// other.
func (s *Store) Save(name string, r io.Reader) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}

	for n := 0; n < maxAttempts; n++ {
		stored := candidate(name, n)
		full := filepath.Join(s.Dir, stored)

		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", stored, err)
		}

		if _, err := io.Copy(f, r); err != nil {
			_ = f.Close()
			_ = os.Remove(full)
			return "", fmt.Errorf("failed to write %s: %w", stored, err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(full)
			return "", fmt.Errorf("failed to write %s: %w", stored, err)
		}
		return stored, nil
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", name, maxAttempts)
}

// List returns the stored files as "<dir>/<name>" slash paths sorted by
// name. A missing directory lists nothing.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, s.ID(e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ID returns the identifier clients use for a stored file.
func (s *Store) ID(stored string) string {
	return path.Join(filepath.ToSlash(s.Dir), stored)
}

// Resolve maps an identifier, either a listed path or a bare file name,
// to a path inside the directory. Only the base name is used.
func (s *Store) Resolve(id string) (string, error) {
	name, err := cleanName(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, name), nil
}
