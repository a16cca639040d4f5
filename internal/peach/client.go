// Package peach is the client for the upstream campaign and metrics API.
// Requests carry a bearer token, are retried on 429/5xx and transport
// errors, and run behind a circuit breaker so a failing API stops a sync
// quickly instead of retrying every campaign.
package peach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ignite/campaign-warehouse/internal/config"
	"github.com/ignite/campaign-warehouse/internal/pkg/httpretry"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
)

// ErrUnauthorized is returned for 401 responses.
var ErrUnauthorized = errors.New("peach: invalid or expired bearer token")

const maxResponseBytes = 32 << 20

// APIError is a non-2xx response other than 401.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("peach: API returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the status is one httpretry would retry.
func (e *APIError) Temporary() bool { return httpretry.IsRetryableStatus(e.StatusCode) }

// Client talks to the campaign API.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	doer      httpretry.HTTPDoer
	breaker   *gobreaker.CircuitBreaker
	calls     atomic.Int64
}

type clientOptions struct {
	httpClient httpretry.HTTPDoer
	retryOpts  []httpretry.Option
}

// Option customises a Client.
type Option func(*clientOptions)

// WithHTTPClient sets the transport wrapped by the retry layer.
func WithHTTPClient(c httpretry.HTTPDoer) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithRetryOptions passes options to the retry layer.
func WithRetryOptions(opts ...httpretry.Option) Option {
	return func(o *clientOptions) { o.retryOpts = append(o.retryOpts, opts...) }
}

// NewClient creates a client from the api config section.
func NewClient(cfg config.APIConfig, opts ...Option) *Client {
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.Timeout()}
	}

	failures := uint32(cfg.BreakerFailures)
	if failures == 0 {
		failures = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "peach-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, ErrUnauthorized) || errors.Is(err, context.Canceled) {
				return true
			}
			var apiErr *APIError
			return errors.As(err, &apiErr) && !apiErr.Temporary()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("peach: circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		doer:      httpretry.NewRetryClient(o.httpClient, cfg.MaxRetries, o.retryOpts...),
		breaker:   breaker,
	}
}

// Calls returns the number of HTTP requests issued, retries excluded.
func (c *Client) Calls() int64 { return c.calls.Load() }

// BreakerState exposes the circuit breaker state for status output.
func (c *Client) BreakerState() string { return c.breaker.State().String() }

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, path, params, out)
	})
	return err
}

func (c *Client) do(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("peach: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.calls.Add(1)
	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		return fmt.Errorf("peach: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("peach: read %s: %w", path, err)
	}
	logger.Debug("peach: request complete",
		"path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return &APIError{StatusCode: resp.StatusCode, Body: snippet}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("peach: decode %s: %w", path, err)
	}
	return nil
}

// Health reports whether the API answers /health with status "healthy".
func (c *Client) Health(ctx context.Context) (bool, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &out); err != nil {
		return false, err
	}
	return out.Status == "healthy", nil
}
