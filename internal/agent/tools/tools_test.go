//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Select(t *testing.T) {
	r := NewRegistry(NewWikipedia(), NewArxiv(), NewWebSearch("key"))

	selected := r.Select([]Plugin{
		{Name: "arxiv", Enable: true},
		{Name: "web_search", Enable: false},
		{Name: "calculator", Enable: true},
		{Name: "wikipedia", Enable: true},
		{Name: "arxiv", Enable: true},
	})
	require.Len(t, selected, 2)
	assert.Equal(t, "arxiv", selected[0].Name())
	assert.Equal(t, "wikipedia", selected[1].Name())

	assert.Empty(t, r.Select(nil))
	assert.Equal(t, []string{"arxiv", "web_search", "wikipedia"}, r.Names())

	_, ok := r.Get("code_interpreter")
	assert.False(t, ok)
}

func TestWebSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Equal(t, "postgres", r.URL.Query().Get("q"))
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		var results []map[string]string
		for i := 1; i <= 5; i++ {
			results = append(results, map[string]string{
				"title": fmt.Sprintf("T%d", i), "snippet": fmt.Sprintf("S%d", i), "link": fmt.Sprintf("L%d", i),
			})
		}
		results[1]["snippet"] = ""
		_ = json.NewEncoder(w).Encode(map[string]any{"organic_results": results})
	}))
	defer server.Close()

	out, err := NewWebSearch("secret", WithBaseURL(server.URL)).Run(context.Background(), "postgres")
	require.NoError(t, err)
	assert.Equal(t, "1. T1 - S1 (L1)\n\n2. T2 - No snippet (L2)\n\n3. T3 - S3 (L3)", out)
}

func TestWebSearch_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	out, err := NewWebSearch("k", WithBaseURL(server.URL)).Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "can't find any search results", out)
}

func TestWebSearch_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewWebSearch("k", WithBaseURL(server.URL)).Run(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestWikipedia(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("list") == "search" {
			assert.Equal(t, "3", q.Get("srlimit"))
			_, _ = w.Write([]byte(`{"query":{"search":[{"title":"PostgreSQL"},{"title":"Ingres"}]}}`))
			return
		}
		assert.Equal(t, "PostgreSQL|Ingres", q.Get("titles"))
		_, _ = w.Write([]byte(`{"query":{"pages":{
			"2":{"title":"Ingres","extract":"Ingres is a database."},
			"1":{"title":"PostgreSQL","extract":" PostgreSQL is a relational database. "}}}}`))
	}))
	defer server.Close()

	out, err := NewWikipedia(WithBaseURL(server.URL)).Run(context.Background(), "postgres")
	require.NoError(t, err)
	assert.Equal(t,
		"Page: PostgreSQL\nSummary: PostgreSQL is a relational database.\n\nPage: Ingres\nSummary: Ingres is a database.",
		out)
}

func TestWikipedia_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"query":{"search":[]}}`))
	}))
	defer server.Close()

	out, err := NewWikipedia(WithBaseURL(server.URL)).Run(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Equal(t, "No good Wikipedia Search Result was found", out)
}

const atom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <published>2017-06-12T17:57:34Z</published>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models
      are based on recurrent networks.</summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
  </entry>
</feed>`

func TestArxiv(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/query", r.URL.Path)
		assert.Equal(t, "all:transformers", r.URL.Query().Get("search_query"))
		_, _ = w.Write([]byte(atom))
	}))
	defer server.Close()

	out, err := NewArxiv(WithBaseURL(server.URL)).Run(context.Background(), "transformers")
	require.NoError(t, err)
	assert.Equal(t, "Published: 2017-06-12\nTitle: Attention Is All You Need\n"+
		"Authors: Ashish Vaswani, Noam Shazeer\n"+
		"Summary: The dominant sequence transduction models are based on recurrent networks.", out)
}

func TestCodeInterpreter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/execute", r.URL.Path)
		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "python", req["language"])
		if req["code"] == "1/0" {
			_, _ = w.Write([]byte(`{"error":"division by zero"}`))
			return
		}
		assert.Equal(t, "print(2 + 2)", req["code"])
		_, _ = w.Write([]byte(`{"output":"4\n"}`))
	}))
	defer server.Close()

	tool := NewCodeInterpreter(server.URL + "/")
	out, err := tool.Run(context.Background(), "```python\nprint(2 + 2)\n```")
	require.NoError(t, err)
	assert.Equal(t, "4", out)

	out, err = tool.Run(context.Background(), "1/0")
	require.NoError(t, err)
	assert.Equal(t, "Error: division by zero", out)
}

func TestStripFence(t *testing.T) {
	tests := map[string]string{
		"x = 1":                    "x = 1",
		"```\nx = 1\n```":          "x = 1",
		"```py\nprint(1)\n```\n  ": "print(1)",
	}
	for in, want := range tests {
		assert.Equal(t, want, stripFence(in), "%q", in)
	}
}
