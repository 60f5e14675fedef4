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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// CodeInterpreter runs Python in an external sandbox service. Code is
// never evaluated by this process.
//
// The sandbox accepts POST /execute with {"language","code"} and answers
// {"output","error"}.
type CodeInterpreter struct {
	client
}

// NewCodeInterpreter creates the code_interpreter tool for the sandbox at
// sandboxURL.
func NewCodeInterpreter(sandboxURL string, opts ...Option) *CodeInterpreter {
	return &CodeInterpreter{client: newClient(strings.TrimRight(sandboxURL, "/"), opts)}
}

func (c *CodeInterpreter) Name() string { return "code_interpreter" }

func (c *CodeInterpreter) Description() string {
	return "Runs Python code and returns what it prints, or the value of a single expression. " +
		"Input should be the code to run."
}

func (c *CodeInterpreter) Run(ctx context.Context, input string) (string, error) {
	payload, err := json.Marshal(map[string]string{"language": "python", "code": stripFence(input)})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sandbox request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read sandbox response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sandbox error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result struct {
		Output string `json:"output"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode sandbox response: %w", err)
	}
	if result.Error != "" {
		return "Error: " + result.Error, nil
	}
	return strings.TrimSpace(result.Output), nil
}

// stripFence removes a markdown code fence the model may wrap code in.
func stripFence(code string) string {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, "```") {
		return code
	}
	code = strings.TrimPrefix(code, "```")
	if nl := strings.IndexByte(code, '\n'); nl >= 0 {
		code = code[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(code), "```"))
}
