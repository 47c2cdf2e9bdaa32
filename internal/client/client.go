// Package client talks to the ELIDA REST backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	common "github.com/bobmcallan/elida-portal/internal/common"
)

// maxResponseSize caps response bodies read from the backend.
const maxResponseSize = 10 << 20

// TokenSource supplies the bearer token for outgoing requests. An empty
// token with a nil error means no session.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// authMode selects how a call treats the session token.
type authMode int

const (
	authNone     authMode = iota // never send a token
	authOptional                 // send when present, degrade to anonymous otherwise
	authRequired                 // fail with ErrUnauthenticated without a token
)

// Client communicates with the ELIDA REST API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	logger         *common.Logger
	tokens         TokenSource
	timeout        time.Duration
	analyzeTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the request logger.
func WithLogger(logger *common.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithTimeout sets the per-request timeout for ordinary calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithAnalyzeTimeout sets the timeout for the full analysis call.
func WithAnalyzeTimeout(d time.Duration) Option {
	return func(c *Client) { c.analyzeTimeout = d }
}

// NewElidaClient creates a client targeting the given backend URL.
func NewElidaClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		timeout:        30 * time.Second,
		analyzeTimeout: 300 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.OrSilent()
	return c
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one backend call.
type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	auth    authMode
	timeout time.Duration
}

// do executes a request and returns the raw response body of a 2xx reply.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	token := ""
	if r.auth != authNone && c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, &Error{Kind: KindAuth, Op: r.op, Message: "token unavailable", Err: err}
		}
		token = t
	}
	if r.auth == authRequired && token == "" {
		return nil, ErrUnauthenticated
	}

	timeout := r.timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Op: r.op, Message: "failed to encode request", Err: err}
		}
		bodyReader = bytes.NewReader(data)
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, bodyReader)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: r.op, Message: "invalid request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug().Str("op", r.op).Str("method", r.method).Str("path", r.path).Msg("backend request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		ce := classifyTransport(r.op, ctx, err)
		c.logger.Warn().Str("op", r.op).Str("kind", string(ce.Kind)).Int64("duration_ms", duration.Milliseconds()).Err(err).Msg("backend request failed")
		return nil, ce
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, classifyTransport(r.op, ctx, fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.Debug().Str("op", r.op).Int("status", resp.StatusCode).Int64("duration_ms", duration.Milliseconds()).Msg("backend response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(r.op, resp.StatusCode, body)
	}
	return body, nil
}

// doJSON executes a request and decodes the response into out.
func (c *Client) doJSON(ctx context.Context, r request, out any) error {
	body, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return malformed(r.op, err)
	}
	return nil
}

// doGeneric executes a request and decodes the response as untyped JSON for
// normalization.
func (c *Client) doGeneric(ctx context.Context, r request) (any, []byte, error) {
	body, err := c.do(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	var obj any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, nil, malformed(r.op, err)
	}
	return obj, body, nil
}

// Health checks whether the backend answers.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, request{op: "health", method: http.MethodGet, path: "/health", auth: authNone, timeout: 3 * time.Second})
	return err
}
