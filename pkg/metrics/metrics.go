// Package metrics exposes the Prometheus registry shared by the proxy.
// Metrics are defined with promauto in the packages that record them
// (cache, proxy, client, ratelimit, circuitbreaker, periodic, server), so
// this package only serves them and carries build information.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all proxy metrics are recorded in.
var Registry = prometheus.DefaultRegisterer

var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "badge_build_info",
	Help: "Build information of the running proxy",
}, []string{"version", "go_version"})

// SetBuildInfo records the running version.
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version, runtime.Version()).Set(1)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Badge cache (pkg/cache):
//   - badge_cache_hits_total / badge_cache_misses_total (Counter)
//   - badge_cache_evictions_total (Counter): LRU evictions
//   - badge_cache_entries / badge_cache_capacity (Gauge)
//
// Staleness controller (pkg/proxy):
//   - badge_decisions_total{decision} (Counter): too_soon, stale_while_revalidate, vendor
//   - badge_vendor_calls_total{result} (Counter): success, error, late
//   - badge_vendor_call_duration_seconds (Histogram)
//   - badge_vendor_timeouts_total (Counter)
//   - badge_vendor_panics_total (Counter)
//
// Vendor HTTP client (pkg/client):
//   - badge_vendor_requests_total{host, status} (Counter)
//   - badge_vendor_request_duration_seconds{host} (Histogram)
//   - badge_vendor_errors_total{class} (Counter)
//   - badge_vendor_retries_total{error_class} (Counter)
//   - badge_vendor_retry_backoff_seconds{error_class} (Histogram)
//   - badge_vendor_retry_exhausted_total{error_class} (Counter)
//
// Vendor quotas (pkg/ratelimit):
//   - badge_vendor_quota_remaining{host} (Gauge)
//   - badge_rate_limit_blocks_total{host} / badge_rate_limit_throttles_total{host} (Counter)
//
// Circuit breakers (pkg/circuitbreaker):
//   - badge_circuit_breaker_state{host} (Gauge): 0 closed, 1 open, 2 half-open
//   - badge_circuit_breaker_rejected_total{host} (Counter)
//
// Periodic refresh cache (pkg/periodic):
//   - badge_periodic_refreshes_total{result} (Counter): fresh, refreshed, error
//
// HTTP server (internal/server):
//   - badge_http_requests_total{route, status} (Counter)
//   - badge_http_request_duration_seconds{route} (Histogram)
//   - badge_style_requests_total{style} (Counter)
//   - badge_responses_total{source} (Counter): cache, vendor, stale, unresponsive, static
//
// Example Prometheus Queries:
//
//   # Share of requests answered without waiting for a vendor
//   sum(rate(badge_decisions_total{decision!="vendor"}[5m])) / sum(rate(badge_decisions_total[5m]))
//
//   # Vendor timeout rate
//   rate(badge_vendor_timeouts_total[5m])
//
//   # Hosts with an open breaker
//   badge_circuit_breaker_state == 1
