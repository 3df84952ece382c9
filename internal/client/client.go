// Package client implements the upload, status and download collaborators
// of the core job controller over HTTP.
//
// All requests carry an optional bearer token from a [TokenSource] and an
// X-Request-ID header; every request is logged with its id, status, size and
// elapsed time.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultUploadPath is the backend endpoint that accepts CSV files.
const DefaultUploadPath = "/api/file/upload"

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 4 << 10

// Client talks to the CSV processing backend.
type Client struct {
	baseURL    string
	uploadPath string
	http       *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. Per-request timeouts are
// expected to come from the caller's context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenSource sets where bearer tokens come from. The default sends no
// Authorization header.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		if ts != nil {
			c.tokens = ts
		}
	}
}

// WithUploadPath overrides DefaultUploadPath.
func WithUploadPath(p string) Option {
	return func(c *Client) {
		if p != "" {
			c.uploadPath = p
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		uploadPath: DefaultUploadPath,
		http:       &http.Client{},
		tokens:     NoToken{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// ResolveURL returns link unchanged if it is absolute, otherwise appends it
// to the base URL.
func (c *Client) ResolveURL(link string) string {
	if u, err := url.Parse(link); err == nil && u.IsAbs() {
		return link
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return c.baseURL + link
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// StatusCode returns the HTTP status of err, or 0 if err is not an HTTPError.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// response is an open response plus the request bookkeeping needed to log
// its completion.
type response struct {
	*http.Response
	reqID string
	start time.Time
}

// do sends req with auth and request-id headers. Non-2xx responses are read,
// closed and returned as HTTPError.
func (c *Client) do(ctx context.Context, req *http.Request, level slog.Level) (*response, error) {
	reqID := uuid.New().String()
	start := time.Now()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Request-ID", reqID)

	log := c.logger.With("req_id", reqID, "method", req.Method, "url", req.URL.String())
	log.Log(ctx, level, "http request")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("http send failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		log.Warn("http response",
			"status", resp.StatusCode,
			"bytes", len(body),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return &response{Response: resp, reqID: reqID, start: start}, nil
}

// readAll reads and closes a successful response body, logging the result.
func (c *Client) readAll(ctx context.Context, resp *response, level slog.Level) ([]byte, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.logger.Log(ctx, level, "http response",
		"req_id", resp.reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(resp.start).Milliseconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return raw, nil
}
