// Package upstream talks to the external booking vendor: OAuth token issue,
// availability search, quotes and reservation creation. Every call goes
// through Client.Call, which attaches the bearer credential and retries
// rate-limited and transient failures a bounded number of times.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxRetries     = 3
	DefaultBackoffBase    = time.Second
	DefaultRetryAfter     = 2 * time.Second
	defaultRequestTimeout = 30 * time.Second
	maxResponseBody       = 4 << 20
	headerIdempotencyKey  = "Idempotency-Key"
	headerRetryAfter      = "Retry-After"
	reasonRateLimited     = "rate_limited"
	reasonServerError     = "server_error"
	reasonTransport       = "transport"
)

// TokenSource hands out a bearer token for each attempt.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type tokenInvalidator interface {
	Invalidate(token string)
}

// Request describes one logical upstream call. Endpoint is a short name used
// in logs, metrics and errors.
type Request struct {
	Endpoint       string
	Method         string
	Path           string
	Query          url.Values
	Body           interface{}
	IdempotencyKey string
}

type Client struct {
	baseURL           string
	http              *http.Client
	tokens            TokenSource
	limiter           *rate.Limiter
	maxRetries        int
	backoffBase       time.Duration
	defaultRetryAfter time.Duration
	sleep             func(ctx context.Context, d time.Duration) error
	metrics           *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoffBase = d
		}
	}
}

func WithDefaultRetryAfter(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultRetryAfter = d
		}
	}
}

// WithRateLimit paces outgoing attempts. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		http:              &http.Client{Timeout: defaultRequestTimeout},
		tokens:            tokens,
		maxRetries:        DefaultMaxRetries,
		backoffBase:       DefaultBackoffBase,
		defaultRetryAfter: DefaultRetryAfter,
		sleep:             sleepOrDone,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call performs req and decodes a 2xx JSON body into out (which may be nil).
// It makes at most maxRetries+1 attempts; the last failure is returned as is.
func (c *Client) Call(ctx context.Context, req Request, out interface{}) error {
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = json.Marshal(req.Body); err != nil {
			return fmt.Errorf("encode upstream %s request: %w", req.Endpoint, err)
		}
	}

	for attempt := 0; ; attempt++ {
		err := c.do(ctx, req, body, out)
		if err == nil {
			c.metrics.ObserveAttempt(req.Endpoint, "ok")
			return nil
		}

		delay, reason, retryable := c.retryDelay(ctx, err, attempt)
		if !retryable {
			c.metrics.ObserveAttempt(req.Endpoint, "terminal")
			return err
		}
		c.metrics.ObserveAttempt(req.Endpoint, reason)
		if attempt >= c.maxRetries {
			log.Printf("upstream %s: giving up after %d attempts: %v", req.Endpoint, attempt+1, err)
			return err
		}

		c.metrics.ObserveRetry(req.Endpoint, reason)
		log.Printf("upstream %s: attempt %d failed (%s), retrying in %s", req.Endpoint, attempt+1, reason, delay)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// retryDelay decides whether err is worth another attempt and how long to wait.
func (c *Client) retryDelay(ctx context.Context, err error, attempt int) (time.Duration, string, bool) {
	if ctx.Err() != nil {
		return 0, "", false
	}

	if ue, ok := AsError(err); ok {
		switch {
		case ue.RateLimited():
			return ue.RetryAfter, reasonRateLimited, true
		case ue.Temporary():
			return c.backoff(attempt), reasonServerError, true
		default:
			return 0, "", false
		}
	}

	var te *TransportError
	if errors.As(err, &te) {
		return c.backoff(attempt), reasonTransport, true
	}
	return 0, "", false
}

// backoff doubles from backoffBase: 1s, 2s, 4s with the defaults.
func (c *Client) backoff(attempt int) time.Duration {
	return c.backoffBase << uint(attempt)
}

func (c *Client) do(ctx context.Context, req Request, body []byte, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("upstream %s: %w", req.Endpoint, err)
	}

	httpReq, err := c.newRequest(ctx, req, body)
	if err != nil {
		return fmt.Errorf("build upstream %s request: %w", req.Endpoint, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &TransportError{Endpoint: req.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &TransportError{Endpoint: req.Endpoint, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return &DecodeError{Endpoint: req.Endpoint, StatusCode: resp.StatusCode, Err: err}
		}
		return nil
	}

	code, message := parseErrorPayload(data)
	ue := &Error{
		Endpoint:   req.Endpoint,
		StatusCode: resp.StatusCode,
		Code:       code,
		Message:    message,
		Body:       data,
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		ue.RetryAfter = parseRetryAfter(resp.Header.Get(headerRetryAfter), c.defaultRetryAfter)
	case http.StatusUnauthorized:
		if inv, ok := c.tokens.(tokenInvalidator); ok {
			inv.Invalidate(token)
		}
	}
	return ue
}

func (c *Client) newRequest(ctx context.Context, req Request, body []byte) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(headerIdempotencyKey, req.IdempotencyKey)
	}
	return httpReq, nil
}

// sleepOrDone waits for the duration or returns early on context cancellation.
func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
