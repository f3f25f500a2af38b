// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Patchbay Contributors

package modsdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
)

// ErrHostNotAllowed is returned when a request targets a host outside the
// module's allowed-hosts declaration.
var ErrHostNotAllowed = errors.New("host not allowed")

// defaultHTTPTimeout bounds requests that carry no context deadline.
const defaultHTTPTimeout = 30 * time.Second

// maxResponseBytes caps response bodies read into memory.
const maxResponseBytes = 4 << 20

// HTTPClient is the outbound-request capability handed to modules. It hides
// the underlying transport and enforces the manifest's allowed-hosts globs.
//
// Pattern matching uses gobwas/glob with '.' as the segment separator:
//   - "api.example.com" matches exactly
//   - "*.example.com" matches one subdomain level
//   - "**" matches any host
//
// A module that declared no allowed-hosts gets no outbound access.
type HTTPClient struct {
	name    string
	client  *http.Client
	headers map[string]string
	allowed []glob.Glob
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithDefaultHeader adds a header sent with every request.
func WithDefaultHeader(key, value string) HTTPOption {
	return func(c *HTTPClient) {
		c.headers[key] = value
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// NewHTTPClient creates a named client restricted to allowedHosts.
// Invalid glob patterns are rejected.
func NewHTTPClient(name string, allowedHosts []string, opts ...HTTPOption) (*HTTPClient, error) {
	compiled := make([]glob.Glob, len(allowedHosts))
	for i, pattern := range allowedHosts {
		if pattern == "" {
			return nil, fmt.Errorf("allowed host %d: empty pattern", i)
		}
		// Compile with '.' as separator so '*' doesn't cross label boundaries
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, fmt.Errorf("allowed host %d (%q): %w", i, pattern, err)
		}
		compiled[i] = g
	}

	c := &HTTPClient{
		name:    name,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		headers: make(map[string]string),
		allowed: compiled,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the client's registration name.
func (c *HTTPClient) Name() string { return c.name }

// Get issues a GET request and returns the response body as a string.
func (c *HTTPClient) Get(ctx context.Context, rawURL string) (string, error) {
	return c.do(ctx, http.MethodGet, rawURL, "")
}

// Post issues a POST request with a string body.
func (c *HTTPClient) Post(ctx context.Context, rawURL, body string) (string, error) {
	return c.do(ctx, http.MethodPost, rawURL, body)
}

// Put issues a PUT request with a string body.
func (c *HTTPClient) Put(ctx context.Context, rawURL, body string) (string, error) {
	return c.do(ctx, http.MethodPut, rawURL, body)
}

func (c *HTTPClient) do(ctx context.Context, method, rawURL, body string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if err := c.checkHost(u.Hostname()); err != nil {
		return "", err
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return "", fmt.Errorf("build %s %s: %w", method, rawURL, err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response from %s: %w", rawURL, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return string(data), fmt.Errorf("%s %s: unexpected status %d", method, rawURL, resp.StatusCode)
	}
	return string(data), nil
}

// checkHost matches host against the allowed-hosts globs.
func (c *HTTPClient) checkHost(host string) error {
	for _, g := range c.allowed {
		if g.Match(host) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (client %s)", ErrHostNotAllowed, host, c.name)
}

// HTTPClientFactory creates named clients sharing the module's allowed-hosts
// declaration. Creating an existing name returns the existing client.
type HTTPClientFactory struct {
	allowedHosts []string

	mu      sync.Mutex
	clients map[string]*HTTPClient
}

// NewHTTPClientFactory creates a factory bound to allowedHosts.
func NewHTTPClientFactory(allowedHosts []string) *HTTPClientFactory {
	return &HTTPClientFactory{
		allowedHosts: append([]string(nil), allowedHosts...),
		clients:      make(map[string]*HTTPClient),
	}
}

// Named returns the client registered under name, creating it on first use.
func (f *HTTPClientFactory) Named(name string, opts ...HTTPOption) (*HTTPClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[name]; ok {
		return c, nil
	}
	c, err := NewHTTPClient(name, f.allowedHosts, opts...)
	if err != nil {
		return nil, err
	}
	f.clients[name] = c
	return c, nil
}
