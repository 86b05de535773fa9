package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/devilmonastery/tessera/internal/pkg/urlutil"
)

// DefaultTimeout bounds every request that does not stream a body.
const DefaultTimeout = 60 * time.Second

// Client talks to the platform API. It groups calls the way the platform
// SDK does: Enforcer (auth and authorization), Admin (tenants, roles,
// groups) and Storage (buckets and files).
type Client struct {
	baseURL      string
	http         *http.Client
	tokenManager TokenManager
	userAgent    string
	timeout      time.Duration
	base         http.RoundTripper
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its transport becomes the
// base of the client's transport chain.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a client for the API at apiURI.
// If tokenManager is nil, requests carry no Authorization header (nonce,
// login, register and other public calls).
func NewClient(apiURI string, tokenManager TokenManager, opts ...Option) (*Client, error) {
	if _, err := urlutil.Host(apiURI); err != nil {
		return nil, fmt.Errorf("invalid API URI: %w", err)
	}

	c := &Client{
		baseURL:      apiURI,
		http:         &http.Client{},
		tokenManager: tokenManager,
		userAgent:    "tessera-cli",
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.base = c.http.Transport
	if c.base == nil {
		c.base = http.DefaultTransport
	}
	var transport http.RoundTripper = &requestIDTransport{base: c.base}
	if tokenManager != nil {
		transport = &oauth2.Transport{
			Source: tokenSource{manager: tokenManager},
			Base:   transport,
		}
	}

	// Copy so a caller-provided client is not mutated.
	hc := *c.http
	hc.Transport = transport
	hc.Timeout = 0 // per-request contexts carry the timeout
	c.http = &hc

	return c, nil
}

// Enforcer returns the auth and authorization API.
func (c *Client) Enforcer() *Enforcer {
	return &Enforcer{c: c}
}

// Admin returns the tenant administration API.
func (c *Client) Admin() *Admin {
	return &Admin{c: c}
}

// Storage returns the object storage API.
func (c *Client) Storage() *Storage {
	return &Storage{c: c}
}

// Close releases idle connections held by the underlying transport.
func (c *Client) Close() error {
	if t, ok := c.base.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// request describes one API call.
type request struct {
	method  string
	route   string
	query   url.Values
	body    any       // JSON-encoded when non-nil
	raw     io.Reader // sent verbatim when non-nil
	size    int64     // length of raw, if known
	headers http.Header
	stream  bool // response body is returned to the caller, no timeout
}

// do performs a JSON call and decodes the response into out (if non-nil).
func (c *Client) do(ctx context.Context, req request, out any) error {
	resp, cancel, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response from %s %s: %w", req.method, req.route, err)
	}
	return nil
}

// send issues the request and returns the response when the status is 2xx.
// The caller must close the body and then call cancel.
func (c *Client) send(ctx context.Context, req request) (*http.Response, context.CancelFunc, error) {
	endpoint, err := urlutil.Endpoint(c.baseURL, req.route, req.query)
	if err != nil {
		return nil, nil, err
	}

	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 && !req.stream && req.raw == nil {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	var body io.Reader
	switch {
	case req.raw != nil:
		body = req.raw
	case req.body != nil:
		data, err := encodeBody(req.body)
		if err != nil {
			cancel()
			return nil, nil, err
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.raw != nil && req.size > 0 {
		httpReq.ContentLength = req.size
	}
	if req.body != nil && req.raw == nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%s %s: %w", req.method, req.route, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		apiErr := decodeError(resp)
		slog.Debug("api error",
			slog.String("component", "client"),
			slog.String("route", req.route),
			slog.Int("status", resp.StatusCode),
			slog.String("error", apiErr.Error()))
		return nil, nil, apiErr
	}

	return resp, cancel, nil
}

// encodeBody marshals v, passing json.RawMessage through untouched.
func encodeBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}
