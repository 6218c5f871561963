package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks store lookups that found an entry
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "badge_cache_hits_total",
			Help: "Total number of badge cache hits",
		},
	)

	// CacheMisses tracks store lookups that found nothing
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "badge_cache_misses_total",
			Help: "Total number of badge cache misses",
		},
	)

	// CacheEvictions tracks LRU evictions
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "badge_cache_evictions_total",
			Help: "Total number of entries evicted from the badge cache",
		},
	)

	// CacheEntries tracks the current number of stored entries
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "badge_cache_entries",
			Help: "Current number of entries in the badge cache",
		},
	)

	// CacheCapacity is the configured store capacity
	CacheCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "badge_cache_capacity",
			Help: "Configured capacity of the badge cache",
		},
	)
)
