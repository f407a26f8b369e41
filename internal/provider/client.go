// Package provider contains the rate-limited HTTP clients for the external
// film data sources and the parsers that turn their payloads into candidates.
package provider

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

	"github.com/cenkalti/backoff/v4"
)

const maxBodyBytes = 8 << 20

// Recorder receives request timings.
type Recorder interface {
	RecordTiming(op string, d time.Duration)
}

// Client performs GET requests against one provider. Every attempt takes one
// token from the provider's shared gate. Transient failures are retried with
// exponential backoff; permanent failures return immediately.
type Client struct {
	name     string
	baseURL  string
	limits   Limits
	gate     *Gate
	http     *http.Client
	decorate func(*http.Request)
	recorder Recorder
	logger   *slog.Logger
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithDecorator sets a hook that adds authentication to each request.
func WithDecorator(fn func(*http.Request)) ClientOption {
	return func(c *Client) { c.decorate = fn }
}

// WithRecorder reports request timings to r.
func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the provider called name.
func NewClient(name, baseURL string, limits Limits, gate *Gate, opts ...ClientOption) *Client {
	if gate == nil {
		gate = NewGate(limits)
	}
	timeout := limits.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		limits:  limits,
		gate:    gate,
		http:    &http.Client{Timeout: timeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches endpoint with params and returns the body of a 2xx response.
// Errors are always *Error.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	policy := backoff.NewExponentialBackOff()
	if c.limits.InitialBackoff > 0 {
		policy.InitialInterval = c.limits.InitialBackoff
	}
	if c.limits.MaxBackoff > 0 {
		policy.MaxInterval = c.limits.MaxBackoff
	}
	policy.MaxElapsedTime = 0

	retries := c.limits.MaxRetries
	if retries < 0 {
		retries = 0
	}

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		b, err := c.once(ctx, endpoint, u)
		if err != nil {
			return err
		}
		body = b
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("provider request failed, retrying",
			"provider", c.name, "endpoint", endpoint, "attempt", attempt,
			"wait_ms", wait.Milliseconds(), "error", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx), notify)
	if err == nil {
		return body, nil
	}

	var perr *Error
	if errors.As(err, &perr) {
		return nil, perr
	}
	return nil, &Error{Provider: c.name, Op: endpoint, Transient: true, Err: err}
}

func (c *Client) once(ctx context.Context, endpoint, u string) ([]byte, error) {
	if c.gate.CoolingDown() {
		c.logger.Debug("waiting out provider cooldown", "provider", c.name, "endpoint", endpoint)
	}
	if err := c.gate.Wait(ctx); err != nil {
		return nil, backoff.Permanent(&Error{Provider: c.name, Op: endpoint, Transient: true, Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(&Error{Provider: c.name, Op: endpoint, Err: fmt.Errorf("build request: %w", err)})
	}
	if c.decorate != nil {
		c.decorate(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if c.recorder != nil {
		c.recorder.RecordTiming("provider_"+c.name, time.Since(start))
	}
	if err != nil {
		e := &Error{Provider: c.name, Op: endpoint, Transient: true, Err: err}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(e)
		}
		return nil, e
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Provider: c.name, Op: endpoint, StatusCode: resp.StatusCode, Transient: true, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	e := &Error{
		Provider:   c.name,
		Op:         endpoint,
		StatusCode: resp.StatusCode,
		Transient:  transientStatus(resp.StatusCode),
		NotFound:   resp.StatusCode == http.StatusNotFound,
		Err:        errors.New(snippet(body)),
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		c.gate.Cooldown(e.RetryAfter)
		c.logger.Warn("provider throttled, cooling down",
			"provider", c.name, "retry_after_ms", e.RetryAfter.Milliseconds())
	}
	if !e.Transient {
		return nil, backoff.Permanent(e)
	}
	return nil, e
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:197] + "..."
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
