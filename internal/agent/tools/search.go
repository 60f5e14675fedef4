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
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
)

// WebSearch queries Google through SerpAPI.
type WebSearch struct {
	client
	apiKey string
}

// NewWebSearch creates the web_search tool.
func NewWebSearch(apiKey string, opts ...Option) *WebSearch {
	return &WebSearch{client: newClient("https://serpapi.com", opts), apiKey: apiKey}
}

func (w *WebSearch) Name() string { return "web_search" }

func (w *WebSearch) Description() string {
	return "Searches the web and returns the top results, each with a title, snippet and link. " +
		"Input should be a search query."
}

func (w *WebSearch) Run(ctx context.Context, input string) (string, error) {
	body, err := w.get(ctx, "/search.json", url.Values{
		"engine":  {"google"},
		"q":       {input},
		"api_key": {w.apiKey},
	})
	if err != nil {
		return "", fmt.Errorf("web search failed: %w", err)
	}

	var resp struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
			Link    string `json:"link"`
		} `json:"organic_results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode search results: %w", err)
	}
	if len(resp.OrganicResults) == 0 {
		return "can't find any search results", nil
	}

	results := resp.OrganicResults[:min(w.results, len(resp.OrganicResults))]
	formatted := make([]string, len(results))
	for i, r := range results {
		formatted[i] = fmt.Sprintf("%d. %s - %s (%s)", i+1,
			orDefault(r.Title, "No title"), orDefault(r.Snippet, "No snippet"), orDefault(r.Link, "No link"))
	}
	return strings.Join(formatted, "\n\n"), nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// Wikipedia searches Wikipedia and returns page introductions.
type Wikipedia struct {
	client
}

// NewWikipedia creates the wikipedia tool.
func NewWikipedia(opts ...Option) *Wikipedia {
	return &Wikipedia{client: newClient("https://en.wikipedia.org", opts)}
}

func (w *Wikipedia) Name() string { return "wikipedia" }

func (w *Wikipedia) Description() string {
	return "Looks up Wikipedia. Useful for general questions about people, places, companies, " +
		"facts, historical events, or other subjects. Input should be a search query."
}

func (w *Wikipedia) Run(ctx context.Context, input string) (string, error) {
	body, err := w.get(ctx, "/w/api.php", url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {input},
		"srlimit":  {fmt.Sprint(w.results)},
		"format":   {"json"},
	})
	if err != nil {
		return "", fmt.Errorf("wikipedia search failed: %w", err)
	}

	var search struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &search); err != nil {
		return "", fmt.Errorf("failed to decode wikipedia search: %w", err)
	}
	if len(search.Query.Search) == 0 {
		return "No good Wikipedia Search Result was found", nil
	}

	titles := make([]string, len(search.Query.Search))
	for i, s := range search.Query.Search {
		titles[i] = s.Title
	}

	body, err = w.get(ctx, "/w/api.php", url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"redirects":   {"1"},
		"titles":      {strings.Join(titles, "|")},
		"format":      {"json"},
	})
	if err != nil {
		return "", fmt.Errorf("wikipedia extracts failed: %w", err)
	}

	var extracts struct {
		Query struct {
			Pages map[string]struct {
				Title   string `json:"title"`
				Extract string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &extracts); err != nil {
		return "", fmt.Errorf("failed to decode wikipedia extracts: %w", err)
	}
	summaries := make(map[string]string)
	for _, p := range extracts.Query.Pages {
		summaries[p.Title] = strings.TrimSpace(p.Extract)
	}

	var pages []string
	for _, title := range titles {
		if summary, ok := summaries[title]; ok && summary != "" {
			pages = append(pages, fmt.Sprintf("Page: %s\nSummary: %s", title, summary))
		}
	}
	if len(pages) == 0 {
		return "No good Wikipedia Search Result was found", nil
	}
	return strings.Join(pages, "\n\n"), nil
}

// Arxiv searches arXiv through its Atom API.
type Arxiv struct {
	client
}

// NewArxiv creates the arxiv tool.
func NewArxiv(opts ...Option) *Arxiv {
	return &Arxiv{client: newClient("https://export.arxiv.org", opts)}
}

func (a *Arxiv) Name() string { return "arxiv" }

func (a *Arxiv) Description() string {
	return "Searches scientific articles on arxiv.org. Useful for questions about physics, " +
		"mathematics, computer science, quantitative biology, quantitative finance, statistics, " +
		"electrical engineering, and economics. Input should be a search query."
}

type atomFeed struct {
	Entries []struct {
		Published string `xml:"published"`
		Title     string `xml:"title"`
		Summary   string `xml:"summary"`
		Authors   []struct {
			Name string `xml:"name"`
		} `xml:"author"`
	} `xml:"entry"`
}

func (a *Arxiv) Run(ctx context.Context, input string) (string, error) {
	body, err := a.get(ctx, "/api/query", url.Values{
		"search_query": {"all:" + input},
		"start":        {"0"},
		"max_results":  {fmt.Sprint(a.results)},
	})
	if err != nil {
		return "", fmt.Errorf("arxiv search failed: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return "", fmt.Errorf("failed to decode arxiv feed: %w", err)
	}
	if len(feed.Entries) == 0 {
		return "No good Arxiv Result was found", nil
	}

	entries := feed.Entries[:min(a.results, len(feed.Entries))]
	docs := make([]string, len(entries))
	for i, e := range entries {
		authors := make([]string, len(e.Authors))
		for j, au := range e.Authors {
			authors[j] = au.Name
		}
		published := e.Published
		if len(published) >= 10 {
			published = published[:10]
		}
		docs[i] = fmt.Sprintf("Published: %s\nTitle: %s\nAuthors: %s\nSummary: %s",
			published, collapse(e.Title), strings.Join(authors, ", "), collapse(e.Summary))
	}
	return strings.Join(docs, "\n\n"), nil
}

// collapse joins the wrapped lines of Atom text fields.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
