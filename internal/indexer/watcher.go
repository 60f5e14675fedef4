//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pgEdge/pgedge-ask-server/internal/document"
)

// DefaultDebounce coalesces bursts of writes to one file.
const DefaultDebounce = 500 * time.Millisecond

// Watcher keeps the index in step with files added, changed or removed
// in the upload directory outside the API.
type Watcher struct {
	watcher   *fsnotify.Watcher
	indexer   Indexer
	publisher *Publisher
	logger    *slog.Logger

	// Debounce is how long a file must stay quiet before it is
	// re-indexed.
	Debounce time.Duration
}

// NewWatcher watches dir.
func NewWatcher(dir string, indexer Indexer, publisher *Publisher, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &Watcher{
		watcher:   w,
		indexer:   indexer,
		publisher: publisher,
		logger:    logger.With("component", "watcher"),
		Debounce:  DefaultDebounce,
	}, nil
}

func watched(path string) bool {
	return !strings.HasPrefix(filepath.Base(path), ".") && document.Supported(path) == nil
}

// Run handles events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	pending := make(map[string]bool)
	timer := time.NewTimer(w.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !watched(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				delete(pending, event.Name)
				w.invalidate(ctx, event.Name)
			case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
				pending[event.Name] = true
				timer.Reset(w.Debounce)
			}

		case <-timer.C:
			for path := range pending {
				w.invalidate(ctx, path)
				if err := w.publisher.Publish(ctx, path); err != nil {
					w.logger.Warn("failed to schedule indexing", "path", path, "error", err)
				}
			}
			clear(pending)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) invalidate(ctx context.Context, path string) {
	if err := w.indexer.Invalidate(ctx, path); err != nil {
		w.logger.Warn("failed to invalidate document", "path", path, "error", err)
		return
	}
	w.logger.Debug("document changed", "path", path)
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
