// Package periodic is an interval-gated memoizer for slowly changing
// scraped values: one entry per source, refreshed only once the caller's
// interval has elapsed.
package periodic

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "badge_periodic_refreshes_total",
	Help: "Periodic cache lookups by result (fresh, refreshed, error)",
}, []string{"result"})

// FetchFunc fetches and parses the value for a source.
type FetchFunc[T any] func(ctx context.Context) (T, error)

type entry[T any] struct {
	timestamp time.Time
	data      T
}

// Cache holds the last successfully parsed value per source key.
// Entries are never evicted.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	now     func() time.Time
}

// New creates an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{
		entries: make(map[string]*entry[T]),
		now:     time.Now,
	}
}

// Refresh returns the stored value for sourceKey when it is younger than
// interval. Otherwise it calls fetch; a successful result is stored with
// the time the refresh started, an error is returned and the previous
// entry is left untouched.
func (c *Cache[T]) Refresh(ctx context.Context, sourceKey string, interval time.Duration, fetch FetchFunc[T]) (T, error) {
	start := c.now()

	c.mu.Lock()
	if e, ok := c.entries[sourceKey]; ok && start.Sub(e.timestamp) < interval {
		data := e.data
		c.mu.Unlock()
		refreshesTotal.WithLabelValues("fresh").Inc()
		return data, nil
	}
	c.mu.Unlock()

	data, err := fetch(ctx)
	if err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		var zero T
		return zero, err
	}

	c.mu.Lock()
	c.entries[sourceKey] = &entry[T]{timestamp: start, data: data}
	c.mu.Unlock()

	refreshesTotal.WithLabelValues("refreshed").Inc()
	return data, nil
}

// Peek returns the stored value for sourceKey regardless of its age.
func (c *Cache[T]) Peek(sourceKey string) (T, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sourceKey]
	if !ok {
		var zero T
		return zero, time.Time{}, false
	}
	return e.data, e.timestamp, true
}
