// Package httpclient provides the scoped HTTP client the provider adapters
// share. A Client is open from construction until Close; requests issued
// after Close fail with ErrClientClosed so a released provider can never
// make a stray call.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// ErrClientClosed reports a request made outside the client's open scope.
var ErrClientClosed = errors.New("http client is closed")

// DefaultTimeout applies when no timeout option is given.
const DefaultTimeout = 120 * time.Second

// Client wraps http.Client with the open/close lifecycle and JSON helpers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	closed     atomic.Bool
}

type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// New creates an open client rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    baseURL,
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close ends the client's scope. Subsequent requests fail with
// ErrClientClosed. Close is idempotent.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.httpClient.CloseIdleConnections()
	return nil
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// PostJSON sends a JSON payload to baseURL+path and returns the response
// body. Non-2xx statuses surface as *StatusError with the body attached.
func (c *Client) PostJSON(ctx context.Context, path string, payload any, headers map[string]string) ([]byte, error) {
	resp, err := c.postJSON(ctx, path, payload, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// PostJSONStream sends a JSON payload and returns the open response body
// for streaming consumption. The caller owns closing the body.
func (c *Client) PostJSONStream(ctx context.Context, path string, payload any, headers map[string]string) (io.ReadCloser, error) {
	resp, err := c.postJSON(ctx, path, payload, headers)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	return resp.Body, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, headers map[string]string) (*http.Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	return resp, nil
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.Status, e.Body)
}
