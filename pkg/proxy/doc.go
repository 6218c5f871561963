// Package proxy decides, per badge request, whether to answer from the
// badge cache or to ask the vendor, and bounds the cost of asking.
//
// # Staleness policy
//
// Given a cached entry for the request's key:
//
//   - inside the entry's refresh interval the cached value is served and
//     the vendor is not called at all
//   - outside it, when the key's change ratio is at most 1 - MinAccuracy,
//     the cached value is served immediately and the vendor is called in
//     the background to refresh the entry (stale-while-revalidate)
//   - otherwise the request waits for the vendor
//
// Serving cached data only when changes are rare keeps the fraction of
// correct answers at or above MinAccuracy: with df data changes and rf
// requests over a window, accuracy is 1 - max(1, df)/rf.
//
// # Timeouts
//
// Every vendor call races a timer (Config.Timeout). When the timer wins,
// a request that has not been answered yet gets the cached value marked
// non-cacheable, or a degraded "unresponsive" badge when nothing is cached.
// Answers arriving after the deadline are dropped.
//
// # Delivery
//
// Each request's DeliverFunc is called exactly once. All paths go through
// a single-claim responder, so a late vendor answer can never produce a
// second response.
//
// # Metrics
//
//   - badge_decisions_total{decision} - too_soon, stale_while_revalidate, vendor
//   - badge_vendor_calls_total{result} - success, error, late
//   - badge_vendor_call_duration_seconds - vendor call latency
//   - badge_vendor_timeouts_total - requests whose vendor call missed the budget
//   - badge_vendor_panics_total - fetch functions that panicked
package proxy
