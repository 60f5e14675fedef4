//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package document turns uploaded files into text documents and splits
// them into chunks for embedding.
package document

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Metadata describes where a document's text came from. Page and Row are
// 1-based and zero when not applicable.
type Metadata struct {
	Source string
	Page   int
	Row    int
}

// Document is a unit of loaded text.
type Document struct {
	Text     string
	Metadata Metadata
}

// UnsupportedFileTypeError reports a file whose extension has no loader.
type UnsupportedFileTypeError struct {
	Ext string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported file type: %s", e.Ext)
}

// IsUnsupported reports whether err is an UnsupportedFileTypeError.
func IsUnsupported(err error) bool {
	var e *UnsupportedFileTypeError
	return errors.As(err, &e)
}

type loadFunc func(ctx context.Context, path string) ([]Document, error)

var loaders = map[string]loadFunc{
	".txt": loadText,
	".pdf": loadPDF,
	".csv": loadCSV,
}

// Extensions returns the supported extensions.
func Extensions() []string {
	return []string{".txt", ".pdf", ".csv"}
}

// Supported returns an UnsupportedFileTypeError when path's extension
// cannot be loaded.
func Supported(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := loaders[ext]; !ok {
		return &UnsupportedFileTypeError{Ext: ext}
	}
	return nil
}

// Load reads the file at path according to its extension.
func Load(ctx context.Context, path string) ([]Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	load, ok := loaders[ext]
	if !ok {
		return nil, &UnsupportedFileTypeError{Ext: ext}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return load(ctx, path)
}

func loadText(_ context.Context, path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return []Document{{
		Text:     string(data),
		Metadata: Metadata{Source: filepath.Base(path)},
	}}, nil
}

// loadPDF yields one document per page that has any text. The pdf
// package panics on many malformed files; those become errors.
func loadPDF(ctx context.Context, path string) (docs []Document, err error) {
	source := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", source, err)
	}
	defer func() { _ = f.Close() }()
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("failed to read pdf %s: %v", source, r)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat pdf %s: %w", source, err)
	}
	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", source, err)
	}

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d of %s: %w", i, source, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, Document{
			Text:     text,
			Metadata: Metadata{Source: source, Page: i},
		})
	}
	return docs, nil
}

// loadCSV yields one document per data row, each line "column: value".
func loadCSV(_ context.Context, path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	source := filepath.Base(path)
	var docs []Document
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", row, err)
		}

		lines := make([]string, len(header))
		for i, col := range header {
			value := ""
			if i < len(record) {
				value = record[i]
			}
			lines[i] = col + ": " + value
		}
		docs = append(docs, Document{
			Text:     strings.Join(lines, "\n"),
			Metadata: Metadata{Source: source, Row: row},
		})
	}
	return docs, nil
}
