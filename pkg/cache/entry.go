package cache

import (
	"time"

	"github.com/Sternrassler/badge-proxy/pkg/badge"
)

// Entry is the cached state for one cache key.
type Entry struct {
	// Key is the cache key string this entry is stored under
	Key string

	// LastFetch is the start time of the request whose vendor call produced Value
	LastFetch time.Time

	// RefreshInterval is how long after LastFetch the vendor must not be re-queried
	RefreshInterval time.Duration

	// RequestCount is the number of committed vendor answers for this key
	RequestCount int

	// ChangeCount is how many of those answers differed from the previous one
	ChangeCount int

	// Value is the last vendor answer, genuine or degraded
	Value badge.Data
}

// ChangeRatio returns ChangeCount / RequestCount, the observed volatility
// of the vendor data. An entry without requests counts as fully volatile.
func (e *Entry) ChangeRatio() float64 {
	if e.RequestCount <= 0 {
		return 1
	}
	return float64(e.ChangeCount) / float64(e.RequestCount)
}

// TooSoon reports whether now is still inside the refresh interval.
func (e *Entry) TooSoon(now time.Time) bool {
	return now.Sub(e.LastFetch) < e.RefreshInterval
}

// Age returns the time elapsed since the last vendor fetch.
// Returns 0 if LastFetch is in the future.
func (e *Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.LastFetch)
	if age < 0 {
		return 0
	}
	return age
}
