// Package toolclient implements the Remote Tool Client (C1): discovery
// and invocation of tools hosted behind a remote capability server
// (price/news/fundamentals lookups), grounded on
// original_source/.../app/mcp/sdk_client.py's MCPSDKClient —
// list_tools/call_tool over plain HTTP, including the dual response
// shape ({success, data|error} vs. a bare value) FastMCP-style servers
// return.
package toolclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/stockassistant/orchestrator/internal/apperrors"
	"github.com/stockassistant/orchestrator/internal/logging"
)

// ToolDescriptor is one entry in a server's advertised tool list.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// envelope matches the {success, data|error} shape FastMCP-derived
// servers return; bare-value responses are detected by the absence of
// a "success" key.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Client talks to a single remote tool server over HTTP JSON.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	log        *logging.Logger

	mu        sync.Mutex
	toolCache []ToolDescriptor
}

// defaultDeadline is spec.md section 4.1's default per-call timeout.
const defaultDeadline = 30 * time.Second

// New builds a Client for a single named remote tool server.
func New(name, baseURL string, log *logging.Logger) *Client {
	return &Client{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultDeadline,
		},
		log: log,
	}
}

// ListTools returns the server's advertised tools, caching the result
// in-process until Disconnect is called.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	c.mu.Lock()
	if c.toolCache != nil {
		cached := c.toolCache
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/mcp/tools", nil)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.ToolUnavailable(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ToolUnavailable(err)
	}

	if resp.StatusCode == http.StatusNotFound {
		// Fallback: infer a bare tool-name list from the server's root.
		return c.listToolsFallback(ctx)
	}
	if resp.StatusCode >= 500 {
		return nil, apperrors.ToolUnavailable(fmt.Errorf("server returned %d", resp.StatusCode))
	}

	var payload struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.ToolProtocolError(err)
	}

	c.mu.Lock()
	c.toolCache = payload.Tools
	c.mu.Unlock()
	return payload.Tools, nil
}

func (c *Client) listToolsFallback(ctx context.Context) ([]ToolDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.ToolUnavailable(err)
	}
	defer resp.Body.Close()

	var payload struct {
		Tools []string `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.ToolProtocolError(err)
	}

	tools := make([]ToolDescriptor, 0, len(payload.Tools))
	for _, name := range payload.Tools {
		tools = append(tools, ToolDescriptor{
			Name:        name,
			Description: "MCP tool: " + name,
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		})
	}

	c.mu.Lock()
	c.toolCache = tools
	c.mu.Unlock()
	return tools, nil
}

// CallTool invokes a named tool with the given arguments and decodes
// its result into dest. The caller is expected to wrap this call
// through internal/resilience's circuit breaker and retry executor
// (C2/C3) — CallTool itself performs exactly one HTTP round trip.
func (c *Client) CallTool(ctx context.Context, toolName string, arguments map[string]any, dest any) error {
	body, err := json.Marshal(arguments)
	if err != nil {
		return apperrors.Internal(err)
	}

	url := fmt.Sprintf("%s/tools/%s", c.baseURL, toolName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apperrors.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.ToolTimeout(toolName)
		}
		return apperrors.ToolUnavailable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.ToolProtocolError(err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return apperrors.ToolNotFound(toolName)
	}
	if resp.StatusCode >= 500 {
		return apperrors.ToolUnavailable(fmt.Errorf("server returned %d", resp.StatusCode))
	}

	return decodeResult(toolName, raw, dest)
}

// decodeResult handles both the {success, data|error} envelope and a
// bare-value response body, per sdk_client.py's call_tool.
func decodeResult(toolName string, raw []byte, dest any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Success != nil {
		if !*env.Success {
			msg := env.Error
			if msg == "" {
				msg = "unknown error"
			}
			return apperrors.ToolExecutionFailed(toolName, msg)
		}
		if dest == nil {
			return nil
		}
		if len(env.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Data, dest); err != nil {
			return apperrors.ToolProtocolError(err)
		}
		return nil
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return apperrors.ToolProtocolError(err)
	}
	return nil
}

// Disconnect clears the cached tool list, matching sdk_client.py's
// disconnect() resetting _tools_cache.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolCache = nil
	if c.log != nil {
		c.log.WithField("server", c.name).Info("disconnected from tool server")
	}
}

// Name returns the server's logical name, used as the circuit breaker
// registry key in internal/resilience.
func (c *Client) Name() string { return c.name }
