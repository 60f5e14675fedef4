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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Text(t *testing.T) {
	path := writeFile(t, "notes.txt", "first\n\nsecond")

	docs, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "first\n\nsecond", docs[0].Text)
	assert.Equal(t, Metadata{Source: "notes.txt"}, docs[0].Metadata)
}

func TestLoad_CSV(t *testing.T) {
	path := writeFile(t, "people.CSV", "\ufeffname,age\nAda,36\n\"Lovelace, A\",\n")

	docs, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "name: Ada\nage: 36", docs[0].Text)
	assert.Equal(t, Metadata{Source: "people.CSV", Row: 1}, docs[0].Metadata)
	assert.Equal(t, "name: Lovelace, A\nage: ", docs[1].Text)
	assert.Equal(t, 2, docs[1].Metadata.Row)
}

func TestLoad_EmptyCSV(t *testing.T) {
	docs, err := Load(context.Background(), writeFile(t, "empty.csv", ""))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoad_Unsupported(t *testing.T) {
	path := writeFile(t, "report.docx", "binary")

	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
	assert.Equal(t, "unsupported file type: .docx", err.Error())

	assert.True(t, IsUnsupported(Supported("noext")))
	assert.NoError(t, Supported("a.PDF"))
	assert.NoError(t, Supported("dir/b.txt"))
}

func TestLoad_PDF(t *testing.T) {
	docs, err := Load(context.Background(), filepath.Join("testdata", "pages.pdf"))
	require.NoError(t, err)
	require.Len(t, docs, 2, "the blank second page is skipped")

	assert.Equal(t, Metadata{Source: "pages.pdf", Page: 1}, docs[0].Metadata)
	assert.Equal(t, "First page text", strings.TrimSpace(docs[0].Text))
	assert.Equal(t, Metadata{Source: "pages.pdf", Page: 3}, docs[1].Metadata)
	assert.Equal(t, "Third page text", strings.TrimSpace(docs[1].Text))
}

func TestLoad_PDFCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, filepath.Join("testdata", "pages.pdf"))
	assert.ErrorIs(t, err, context.Canceled)
}

// brokenPDF has a valid header and trailer, but its xref entry for the
// catalog points at the xref keyword instead of an object.
func brokenPDF() string {
	body := "%PDF-1.4\n%" + strings.Repeat("x", 120) + "\n"
	xref := len(body)
	return body + "xref\n0 2\n0000000000 65535 f \n" +
		fmt.Sprintf("%010d 00000 n \n", xref) +
		"trailer\n<< /Size 2 /Root 1 0 R >>\n" +
		fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xref)
}

func TestLoad_MalformedPDF(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"catalog offset points at xref", brokenPDF()},
		{"not a pdf", "plain text with a pdf extension, long enough to fill the trailer window of the reader"},
		{"missing eof marker", "%PDF-1.4\n" + strings.Repeat("x", 200) + "\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.pdf", tt.content)

			var err error
			require.NotPanics(t, func() {
				_, err = Load(context.Background(), path)
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "bad.pdf")
			assert.False(t, IsUnsupported(err))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	require.Error(t, err)
	assert.False(t, IsUnsupported(err))
}

func TestSplitter_SplitText(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		text    string
		want    []string
	}{
		{
			name:    "overlap carries the previous piece",
			size:    10,
			overlap: 4,
			text:    "aaa\n\nbbb\n\nccc\n\ndddd",
			want:    []string{"aaa\n\nbbb", "bbb\n\nccc", "ccc\n\ndddd"},
		},
		{
			name:    "oversized piece stands alone",
			size:    5,
			overlap: 0,
			text:    "abcdefgh\n\nxy",
			want:    []string{"abcdefgh", "xy"},
		},
		{
			name:    "blank pieces are dropped",
			size:    500,
			overlap: 50,
			text:    "   \n\n\n\nhello",
			want:    []string{"hello"},
		},
		{
			name:    "short text is one chunk",
			size:    500,
			overlap: 50,
			text:    "  one paragraph  ",
			want:    []string{"one paragraph"},
		},
		{
			name:    "empty text",
			size:    500,
			overlap: 50,
			text:    "\n\n\n\n",
			want:    nil,
		},
		{
			name:    "length counts characters",
			size:    6,
			overlap: 0,
			text:    "你好\n\n世界",
			want:    []string{"你好\n\n世界"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Splitter{ChunkSize: tt.size, ChunkOverlap: tt.overlap, Separator: DefaultSeparator}
			assert.Equal(t, tt.want, s.SplitText(tt.text))
		})
	}
}

func TestSplitter_ChunksRespectSize(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 40; i++ {
		paragraphs = append(paragraphs, strings.Repeat(string(rune('a'+i%26)), 20+i*3))
	}
	s := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)

	chunks := s.SplitText(strings.Join(paragraphs, "\n\n"))
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), DefaultChunkSize)
	}
	// Every paragraph lands in some chunk.
	joined := strings.Join(chunks, "\n\n")
	for _, p := range paragraphs {
		assert.Contains(t, joined, p)
	}
}

func TestSplitter_SplitDocuments(t *testing.T) {
	s := &Splitter{ChunkSize: 5, ChunkOverlap: 0, Separator: DefaultSeparator}
	docs := []Document{
		{Text: "abc\n\ndef", Metadata: Metadata{Source: "a.pdf", Page: 2}},
		{Text: "xyz", Metadata: Metadata{Source: "a.pdf", Page: 3}},
	}

	chunks := s.SplitDocuments(docs)
	require.Len(t, chunks, 3)
	assert.Equal(t, "abc", chunks[0].Text)
	assert.Equal(t, 2, chunks[1].Metadata.Page)
	assert.Equal(t, "def", chunks[1].Text)
	assert.Equal(t, 3, chunks[2].Metadata.Page)
}

func TestNewSplitter_Defaults(t *testing.T) {
	s := NewSplitter(0, -1)
	assert.Equal(t, DefaultChunkSize, s.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, s.ChunkOverlap)
	assert.Equal(t, DefaultSeparator, s.Separator)
}
