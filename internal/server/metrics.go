package server

import (
	"strconv"
	"time"

	"github.com/Sternrassler/badge-proxy/pkg/badge"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal tracks requests by matched route and status code.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	// httpRequestDuration tracks request latency by matched route.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "badge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 25, 30},
		},
		[]string{"route"},
	)

	// styleRequestsTotal counts badge requests per render template.
	styleRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_style_requests_total",
			Help: "Total number of badge requests per style",
		},
		[]string{"style"},
	)

	// responsesTotal counts badge responses by where the value came from.
	responsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_responses_total",
			Help: "Total number of badge responses by value source",
		},
		[]string{"source"},
	)
)

// sourceStatic labels badges that need no vendor.
const sourceStatic = "static"

// prometheusMiddleware records request count and latency per matched route.
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			// Unmatched paths would blow up label cardinality.
			route = "unmatched"
		}

		c.Next()

		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// recordStyle counts the requested template; unknown or empty styles count
// as "default".
func recordStyle(style string) {
	if !badge.ValidStyle(style) {
		style = "default"
	}
	styleRequestsTotal.WithLabelValues(style).Inc()
}
