// Package toolclient speaks the uniform JSON-RPC-like tool protocol (spec
// §6): every tool server exposes list_tools and call_tool(name, args) over
// HTTP, returning {content, is_error?}. The saga orchestrator uses this to
// invoke tools at whatever endpoint the registry resolves for a role.
package toolclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client dispatches call_tool/list_tools requests to a resolved endpoint.
type Client struct {
	http *http.Client
}

// New returns a Client with the given per-call timeout (spec §5: tool HTTP
// call timeout, default 30s).
func New(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

type callToolRequest struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type callToolResponse struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// CallTool invokes name on endpoint with the given JSON-encoded arguments,
// returning the tool's content and whether it reported an error. A non-nil
// error indicates a transport failure, not a tool-level error — tool-level
// errors are reported via the returned bool per the wire contract.
func (c *Client) CallTool(ctx context.Context, endpoint, name, argumentsJSON string) (content string, isError bool, err error) {
	body, err := json.Marshal(callToolRequest{Name: name, Arguments: argumentsJSON})
	if err != nil {
		return "", false, fmt.Errorf("encode call_tool request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/call_tool", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build call_tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("call_tool %s/%s: %w", endpoint, name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("read call_tool response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("call_tool %s/%s: unexpected status %d: %s", endpoint, name, resp.StatusCode, raw)
	}

	var out callToolResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", false, fmt.Errorf("decode call_tool response: %w", err)
	}
	return out.Content, out.IsError, nil
}

// ListToolsEntry describes one tool advertised by a server's list_tools.
type ListToolsEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      string `json:"schema"`
}

// ListTools queries endpoint for its advertised tool catalogue.
func (c *Client) ListTools(ctx context.Context, endpoint string) ([]ListToolsEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/list_tools", nil)
	if err != nil {
		return nil, fmt.Errorf("build list_tools request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list_tools %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	var out []ListToolsEntry
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode list_tools response: %w", err)
	}
	return out, nil
}
