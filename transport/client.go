// Package transport provides the HTTP executor for batch runs.
//
// A Client turns work items into HTTP requests against a base URL and
// returns Response values that report protocol-level success to the default
// batch strategy. HTTP error statuses are data, not errors: a 500 comes
// back as a Response whose OK is false, so batches see logical failures
// instead of exceptions. Only transport-level problems (connection refused,
// timeouts) surface as errors, and those may be retried here with
// exponential backoff since retry policy belongs to the executor, not the
// batch core.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/nomis52/fetchkit/batch"
)

// DefaultTimeout is the default per-request HTTP timeout.
const DefaultTimeout = 30 * time.Second

// Response is the raw outcome of one HTTP work item.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports protocol-level success (a 2xx status).
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Config configures a Client.
type Config struct {
	// BaseURL is prepended to relative work item URLs.
	BaseURL string
	// Timeout is the per-request HTTP timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
	// RateLimit is the maximum request rate in requests per second.
	// Zero disables rate limiting.
	RateLimit float64
	// MaxRetries bounds retries of transport-level errors. Zero disables
	// retrying. HTTP error statuses are never retried.
	MaxRetries uint64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a custom logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With("component", "transport")
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// Client executes batch work items over HTTP. It implements batch.Executor.
type Client struct {
	base       string
	hc         *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	logger     *slog.Logger
}

// New creates a Client for the given configuration.
func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		hc:         &http.Client{Timeout: timeout},
		maxRetries: cfg.MaxRetries,
		logger:     slog.Default().With("component", "transport"),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs one work item and returns a *Response. An HTTP error status
// is a valid Response; only transport-level failures return an error.
func (c *Client) Do(ctx context.Context, item batch.Item) (any, error) {
	target, err := c.buildURL(item)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	attempt := func() (*Response, error) {
		return c.roundTrip(ctx, item, target)
	}

	if c.maxRetries == 0 {
		return attempt()
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	var resp *Response
	err = backoff.Retry(func() error {
		var attemptErr error
		resp, attemptErr = attempt()
		if attemptErr != nil {
			c.logger.Warn("request failed, will retry", "id", item.ID, "url", target, "error", attemptErr)
		}
		return attemptErr
	}, policy)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, item batch.Item, target string) (*Response, error) {
	var body io.Reader
	contentType := ""
	if item.Method == batch.MethodPost && item.Data != nil {
		payload, err := json.Marshal(item.Data)
		if err != nil {
			return nil, fmt.Errorf("encoding payload: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	method := http.MethodGet
	if item.Method == batch.MethodPost {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range item.Options.Headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("sending request", "id", item.ID, "method", method, "url", target)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}, nil
}

// buildURL resolves the item target against the base URL and appends query
// parameters from the item options.
func (c *Client) buildURL(item batch.Item) (string, error) {
	target := item.URL
	if !strings.Contains(target, "://") {
		if c.base == "" {
			return "", fmt.Errorf("relative url %q with no base url", item.URL)
		}
		if !strings.HasPrefix(target, "/") {
			target = "/" + target
		}
		target = c.base + target
	}

	if len(item.Options.Query) == 0 {
		return target, nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", target, err)
	}
	q := u.Query()
	for k, v := range item.Options.Query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
