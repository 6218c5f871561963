// Package client is the HTTP client the proxy uses to talk to vendors.
// It adds a default User-Agent, retries transient failures, honours the
// vendor's announced rate limit and trips a per-host circuit breaker when
// a vendor keeps failing.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/badge-proxy/pkg/cache"
	"github.com/Sternrassler/badge-proxy/pkg/circuitbreaker"
	"github.com/Sternrassler/badge-proxy/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// DefaultUserAgent is sent when the request carries no User-Agent.
const DefaultUserAgent = "badge-proxy/1.0 (+https://github.com/Sternrassler/badge-proxy)"

// DefaultMaxBodyBytes bounds how much of a vendor body is read.
const DefaultMaxBodyBytes = 2 << 20

// Response is a fully read vendor answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// FreshFor returns the freshness the vendor declared via Cache-Control
// max-age, if any.
func (r *Response) FreshFor() (time.Duration, bool) {
	return cache.ParseMaxAge(r.Header)
}

// Config holds the client configuration.
type Config struct {
	// UserAgent is set on requests that have none
	UserAgent string

	// AttemptTimeout bounds a single HTTP exchange; the caller's context
	// bounds the whole call
	AttemptTimeout time.Duration

	// MaxBodyBytes bounds the bytes read from a vendor body
	MaxBodyBytes int64

	// Retry controls retries of transient failures
	Retry RetryConfig

	// RateLimiter gates requests on vendor quotas (optional)
	RateLimiter *ratelimit.Tracker

	// Breakers holds one circuit breaker per vendor host (optional)
	Breakers *circuitbreaker.Set
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent:      DefaultUserAgent,
		AttemptTimeout: 20 * time.Second,
		MaxBodyBytes:   DefaultMaxBodyBytes,
		Retry:          DefaultRetryConfig(),
	}
}

// Client performs vendor requests.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new vendor client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.AttemptTimeout <= 0 {
		return nil, fmt.Errorf("attempt timeout must be positive (got %v)", cfg.AttemptTimeout)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.AttemptTimeout},
		config:     cfg,
		logger:     logger,
	}, nil
}

// Get fetches rawURL. Non-2xx answers are returned as *VendorError.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// Do performs req with rate limiting, retries and circuit breaking.
func (c *Client) Do(req *http.Request) (*Response, error) {
	ctx := req.Context()
	host := req.URL.Host

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(host).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check the vendor's quota
	if c.config.RateLimiter != nil {
		allowed, err := c.config.RateLimiter.ShouldAllowRequest(ctx, host)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, err
		case err != nil:
			// Quota state unavailable; the vendor still enforces its own limit.
			c.logger.Warn().Err(err).Str("host", host).Msg("Rate limit check failed")
		case !allowed:
			requestsTotal.WithLabelValues(host, "rate_limited").Inc()
			return nil, fmt.Errorf("%s: %w", host, ErrRateLimited)
		}
	}

	// Step 2: Set headers
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}

	// Step 3: Execute with retries, behind the host's breaker
	var resp *Response
	var answerErr error
	attempt := func() error {
		return retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
			r, err := c.exchange(req)
			resp = r
			return err
		}, classOf)
	}

	guarded := func() error {
		err := attempt()
		if err != nil && !countsAsFailure(classOf(err)) {
			// Client errors are the vendor working as intended.
			answerErr = err
			return nil
		}
		return err
	}

	var err error
	if c.config.Breakers != nil {
		err = c.config.Breakers.For(host).Execute(ctx, guarded)
	} else {
		err = guarded()
	}
	if err == nil {
		err = answerErr
	}
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			requestsTotal.WithLabelValues(host, "circuit_open").Inc()
		}
		return nil, err
	}
	return resp, nil
}

// exchange performs one HTTP round trip and reads the body.
func (c *Client) exchange(req *http.Request) (*Response, error) {
	ctx := req.Context()
	host := req.URL.Host

	c.logger.Debug().
		Str("url", req.URL.String()).
		Str("method", req.Method).
		Msg("Executing vendor request")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(host, "network_error").Inc()
		c.logger.Debug().Err(err).Str("host", host).Msg("Vendor request failed")
		return nil, &VendorError{
			URL:        redact(req.URL),
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer httpResp.Body.Close()

	if c.config.RateLimiter != nil {
		if err := c.config.RateLimiter.UpdateFromResponse(ctx, host, httpResp.StatusCode, httpResp.Header); err != nil {
			c.logger.Warn().Err(err).Str("host", host).Msg("Failed to update rate limit from headers")
		}
	}

	requestsTotal.WithLabelValues(host, strconv.Itoa(httpResp.StatusCode)).Inc()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		errClass := classifyStatus(httpResp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, c.config.MaxBodyBytes))
		c.logger.Debug().
			Str("host", host).
			Int("status", httpResp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Vendor request error")
		return nil, &VendorError{
			URL:        redact(req.URL),
			StatusCode: httpResp.StatusCode,
			ErrorClass: errClass,
			Message:    httpResp.Status,
		}
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, c.config.MaxBodyBytes))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &VendorError{
			URL:        redact(req.URL),
			StatusCode: httpResp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

// classifyStatus categorizes a non-2xx status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// redact drops the query string, which may carry vendor tokens.
func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.User = nil
	return c.String()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
