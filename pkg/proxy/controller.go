package proxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/badge-proxy/pkg/badge"
	"github.com/Sternrassler/badge-proxy/pkg/cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Source tells where a delivered value came from.
type Source string

const (
	// SourceCache is a cached value served without waiting for the vendor.
	SourceCache Source = "cache"

	// SourceVendor is a fresh vendor answer (possibly a degraded one).
	SourceVendor Source = "vendor"

	// SourceStale is a cached value served because the vendor timed out.
	SourceStale Source = "stale"

	// SourceUnresponsive is the synthetic badge for a timeout with no cache.
	SourceUnresponsive Source = "unresponsive"
)

// Config holds the staleness and timeout policy.
type Config struct {
	// MinAccuracy is the worst-case fraction of correct answers the policy
	// guarantees; cached data is served early while the change ratio stays
	// at or below 1 - MinAccuracy
	MinAccuracy float64

	// DefaultInterval is the refresh interval of new entries until the
	// vendor declares a freshness of its own
	DefaultInterval time.Duration

	// Timeout bounds how long a request waits for the vendor
	Timeout time.Duration

	// Coalesce shares one in-flight vendor call among concurrent requests
	// for the same key
	Coalesce bool
}

// DefaultConfig returns the reference policy.
func DefaultConfig() Config {
	return Config{
		MinAccuracy:     0.75,
		DefaultInterval: cache.DefaultRefreshInterval,
		Timeout:         25 * time.Second,
		Coalesce:        false,
	}
}

// Validate checks the policy values.
func (c Config) Validate() error {
	if c.MinAccuracy <= 0 || c.MinAccuracy > 1 {
		return fmt.Errorf("min accuracy must be in (0, 1] (got %v)", c.MinAccuracy)
	}
	if c.DefaultInterval < 0 {
		return fmt.Errorf("default interval must not be negative (got %v)", c.DefaultInterval)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive (got %v)", c.Timeout)
	}
	return nil
}

// Request describes one inbound badge request.
type Request struct {
	// Key is the cache key (see cache.Key)
	Key string

	// Label is the vendor's default label, used for degraded answers
	Label string

	// Format is the requested output format
	Format string

	// Params are the presentation parameters
	Params badge.Params
}

// Result is a vendor answer.
type Result struct {
	Value badge.Data

	// MaxAge is the vendor's freshness hint, valid when HasMaxAge is set
	MaxAge    time.Duration
	HasMaxAge bool
}

// FetchFunc asks the vendor. It should honour ctx cancellation.
type FetchFunc func(ctx context.Context) (Result, error)

// Response is what a request is answered with.
type Response struct {
	Value  badge.Data
	Source Source

	// NoCache asks the HTTP layer to forbid caching by intermediaries
	NoCache bool
}

// DeliverFunc receives the single response of a request.
type DeliverFunc func(Response)

// Controller applies the staleness policy on top of a cache.Store.
// It is safe for concurrent use.
type Controller struct {
	store        *cache.Store
	cfg          Config
	freqRatioMax float64
	logger       zerolog.Logger
	now          func() time.Time
	flights      singleflight.Group

	mu         sync.Mutex
	closed     bool
	background sync.WaitGroup
}

// New creates a controller. The store is shared with nobody else.
func New(store *cache.Store, cfg Config, logger zerolog.Logger) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		store:        store,
		cfg:          cfg,
		freqRatioMax: 1 - cfg.MinAccuracy,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Handle answers req, calling deliver exactly once before it returns.
// A background refresh started for stale-while-revalidate may outlive
// the call; Close waits for those.
func (c *Controller) Handle(ctx context.Context, req Request, fetch FetchFunc, deliver DeliverFunc) {
	start := c.now()
	r := newResponder(deliver)

	// Step 1: Consult the cache
	if prev, ok := c.store.Get(req.Key); ok {
		// Step 2a: Too soon to bother the vendor
		if prev.TooSoon(start) {
			decisionsTotal.WithLabelValues("too_soon").Inc()
			c.logger.Debug().
				Str("key", req.Key).
				Dur("age", prev.Age(start)).
				Dur("interval", prev.RefreshInterval).
				Msg("Serving cached badge, refresh interval not elapsed")
			r.send(Response{Value: prev.Value, Source: SourceCache})
			return
		}

		// Step 2b: Data changes rarely, answer now and refresh behind
		if prev.ChangeRatio() <= c.freqRatioMax {
			decisionsTotal.WithLabelValues("stale_while_revalidate").Inc()
			c.logger.Debug().
				Str("key", req.Key).
				Float64("change_ratio", prev.ChangeRatio()).
				Msg("Serving cached badge, refreshing in background")
			r.send(Response{Value: prev.Value, Source: SourceCache})

			if !c.startBackground() {
				return
			}
			go func() {
				defer c.background.Done()
				c.supervise(ctx, req, start, fetch, r)
			}()
			return
		}
	}

	// Step 3: Wait for the vendor
	decisionsTotal.WithLabelValues("vendor").Inc()
	c.logger.Debug().Str("key", req.Key).Msg("Waiting for vendor")
	c.supervise(ctx, req, start, fetch, r)
}

// Serve is Handle returning the delivered response.
func (c *Controller) Serve(ctx context.Context, req Request, fetch FetchFunc) Response {
	var resp Response
	c.Handle(ctx, req, fetch, func(r Response) { resp = r })
	return resp
}

// Lookup returns the cached entry for key, if any.
func (c *Controller) Lookup(key string) (cache.Entry, bool) {
	return c.store.Get(key)
}

// startBackground registers a background refresh. It reports false once
// the controller is closed.
func (c *Controller) startBackground() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.background.Add(1)
	return true
}

// Close stops new background refreshes and waits for running ones to
// finish. Requests handled after Close still get an answer, but stale
// entries are no longer refreshed behind it.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.background.Wait()
	return nil
}
