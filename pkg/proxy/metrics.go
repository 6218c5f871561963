package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "badge_decisions_total",
		Help: "Staleness decisions by outcome",
	}, []string{"decision"})

	vendorCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "badge_vendor_calls_total",
		Help: "Vendor calls by result",
	}, []string{"result"})

	vendorCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "badge_vendor_call_duration_seconds",
		Help:    "Vendor call duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 25},
	})

	vendorTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "badge_vendor_timeouts_total",
		Help: "Requests whose vendor call exceeded the timeout budget",
	})

	vendorPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "badge_vendor_panics_total",
		Help: "Vendor fetch functions that panicked",
	})
)
