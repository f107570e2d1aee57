// Package api is a thin REST/JSON client for the backends thunks talk to.
//
// Response bodies are decoded into ir values and handed back untouched;
// callers place them into action payloads.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/relay/internal/ir"
)

// DefaultTimeout bounds every request when no http.Client is supplied.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 512

// Client issues JSON requests against a base URL.
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = &http.Client{Timeout: d}
	}
}

// WithLogger sets the client logger (default slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for baseURL ("http://localhost:3001").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Get fetches path.
func (c *Client) Get(ctx context.Context, path string) (ir.IRValue, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post creates a resource at path.
func (c *Client) Post(ctx context.Context, path string, body ir.IRValue) (ir.IRValue, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put replaces the resource at path.
func (c *Client) Put(ctx context.Context, path string, body ir.IRValue) (ir.IRValue, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Patch updates some properties of the resource at path.
func (c *Client) Patch(ctx context.Context, path string, body ir.IRValue) (ir.IRValue, error) {
	return c.Do(ctx, http.MethodPatch, path, body)
}

// Delete removes the resource at path.
func (c *Client) Delete(ctx context.Context, path string) (ir.IRValue, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do issues a request and decodes the JSON response. A nil body sends no
// payload; an empty response decodes to ir.Null.
func (c *Client) Do(ctx context.Context, method, path string, body ir.IRValue) (ir.IRValue, error) {
	target := c.resolve(path)

	var reader io.Reader
	if body != nil {
		data, err := ir.MarshalIRValue(body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode body: %w", method, target, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("api request", "method", method, "url", target)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, target, err)
	}

	c.logger.Debug("api response",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"bytes", len(data),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(data))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       text,
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return ir.Null, nil
	}
	v, err := ir.UnmarshalIRValue(data)
	if err != nil {
		return nil, fmt.Errorf("%s %s: decode body: %w", method, target, err)
	}
	return v, nil
}

// resolve joins path onto the base URL, keeping any base path prefix.
func (c *Client) resolve(path string) string {
	u := *c.base
	path, query, _ := strings.Cut(path, "?")
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	u.RawQuery = query
	return u.String()
}
