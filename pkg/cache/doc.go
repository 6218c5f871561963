// Package cache provides the bounded badge cache and its key derivation.
//
// The store implements the following features:
//
// - Fixed capacity with least-recently-used eviction (get and set both count as access)
// - O(1) Get, Set, Has and in-place Update under a single mutex
// - No time based expiry: staleness is decided by the caller, not by deletion
// - Per-entry request and change statistics used by the staleness policy
// - Deterministic, collision-free cache keys
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	store := cache.NewStore(cache.DefaultCapacity)
//
//	key := cache.Key{
//		Route:  "/bilibili/danmaku/av/7248433.svg",
//		Params: badge.ParamsFromQuery(r.URL.Query()),
//	}.String()
//
//	entry, ok := store.Get(key)
//	if !ok {
//		// Cache miss - ask the vendor
//	}
//
// # Committing vendor answers
//
//	store.Update(key, func(e *cache.Entry, exists bool) {
//		e.RequestCount++
//		e.LastFetch = start
//		e.Value = answer
//	})
//
// # Freshness hints
//
//	if d, ok := cache.ParseMaxAge(resp.Header); ok {
//		// vendor says the data is good for d
//	}
//
// # Metrics
//
//   - badge_cache_hits_total - Store lookups that found an entry
//   - badge_cache_misses_total - Store lookups that found nothing
//   - badge_cache_evictions_total - LRU evictions
//   - badge_cache_entries - Current number of entries
//   - badge_cache_capacity - Configured capacity
package cache
