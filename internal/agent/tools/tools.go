//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package tools provides the capabilities the agent may call, and the
// registry requests select them from.
package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"
)

// Tool is a named capability that takes text and returns text.
type Tool interface {
	Name() string
	Description() string
	Run(ctx context.Context, input string) (string, error)
}

// Plugin is a request's choice to enable or disable one tool.
type Plugin struct {
	Name   string `json:"tool_name"`
	Enable bool   `json:"enable"`
}

// Registry holds the tools available to the agent.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the enabled, registered tools in request order. Unknown
// names and repeats are skipped.
func (r *Registry) Select(plugins []Plugin) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var selected []Tool
	for _, p := range plugins {
		if !p.Enable || seen[p.Name] {
			continue
		}
		if t, ok := r.tools[p.Name]; ok {
			seen[p.Name] = true
			selected = append(selected, t)
		}
	}
	return selected
}

const (
	defaultTimeout = 30 * time.Second
	defaultResults = 3
)

// client is the HTTP plumbing shared by the web tools.
type client struct {
	httpClient *http.Client
	baseURL    string
	results    int
}

func newClient(baseURL string, opts []Option) client {
	c := client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		results:    defaultResults,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Option configures a tool's HTTP client.
type Option func(*client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(c *client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithResults sets how many results a search returns.
func WithResults(n int) Option {
	return func(c *client) {
		if n > 0 {
			c.results = n
		}
	}
}

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

func (c *client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
