// Package client talks to the fnhost Functions API over HTTP.
//
// Client implements submission.Persister, so a local submission controller
// can validate and gate a candidate before sending it to a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/fnhost/internal/core/function"
	"github.com/artpar/fnhost/internal/core/paging"
	"github.com/artpar/fnhost/internal/core/schema"
	"github.com/artpar/fnhost/internal/core/submission"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds configuration for the API client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 10 * time.Second,
	}
}

// =============================================================================
// Client
// =============================================================================

// Client is an HTTP client for the Functions API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ submission.Persister = (*Client)(nil)

// New creates a new API client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// FunctionList is one page of functions.
type FunctionList struct {
	Data       []function.Function `json:"data"`
	Pagination paging.Info         `json:"pagination"`
}

// ListOptions selects a page of functions.
type ListOptions struct {
	Page   int
	Limit  int
	Search string
}

// Create stores a new function with the given intent.
func (c *Client) Create(ctx context.Context, cfg function.Config, intent submission.Intent) (*function.Function, error) {
	var fn function.Function
	if err := c.do(ctx, http.MethodPost, "/api/functions?intent="+url.QueryEscape(string(intent)), cfg, &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

// Update replaces the configuration of an existing function.
func (c *Client) Update(ctx context.Context, id string, cfg function.Config, intent submission.Intent) (*function.Function, error) {
	var fn function.Function
	path := "/api/functions/" + url.PathEscape(id) + "?intent=" + url.QueryEscape(string(intent))
	if err := c.do(ctx, http.MethodPut, path, cfg, &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

// GetFunction fetches one function.
func (c *Client) GetFunction(ctx context.Context, id string) (*function.Function, error) {
	var fn function.Function
	if err := c.do(ctx, http.MethodGet, "/api/functions/"+url.PathEscape(id), nil, &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

// ListFunctions fetches a page of functions.
func (c *Client) ListFunctions(ctx context.Context, opts ListOptions) (*FunctionList, error) {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}

	path := "/api/functions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list FunctionList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// DeleteFunction removes a function.
func (c *Client) DeleteFunction(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/functions/"+url.PathEscape(id), nil, nil)
}

// TestInput checks payload against the function's input schema on the
// server.
func (c *Client) TestInput(ctx context.Context, id string, payload json.RawMessage) (*schema.Report, error) {
	var report schema.Report
	if err := c.do(ctx, http.MethodPost, "/api/functions/"+url.PathEscape(id)+"/test-input", payload, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// =============================================================================
// Transport
// =============================================================================

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
