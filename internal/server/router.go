// Package server exposes badges over HTTP: one route per vendor adapter,
// static badges, probes and metrics.
package server

import (
	"errors"
	"time"

	"github.com/Sternrassler/badge-proxy/pkg/adapter"
	"github.com/Sternrassler/badge-proxy/pkg/circuitbreaker"
	"github.com/Sternrassler/badge-proxy/pkg/metrics"
	"github.com/Sternrassler/badge-proxy/pkg/proxy"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Options holds the router dependencies.
type Options struct {
	// Registry lists the vendor adapters to route
	Registry *adapter.Registry

	// Controller answers adapter requests
	Controller *proxy.Controller

	// Source reaches vendors on behalf of adapters
	Source adapter.Source

	// Checks are pinged by /readyz (optional)
	Checks map[string]Pinger

	// Breakers are reported by /readyz (optional)
	Breakers *circuitbreaker.Set

	// InfoSite is where "/" redirects to
	InfoSite string

	Logger zerolog.Logger

	// Now overrides the clock (tests)
	Now func() time.Time
}

// NewRouter builds the gin engine serving badges.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Registry == nil {
		return nil, errors.New("adapter registry is required")
	}
	if opts.Controller == nil {
		return nil, errors.New("controller is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	h := &handlers{
		ctrl:     opts.Controller,
		source:   opts.Source,
		checks:   opts.Checks,
		breakers: opts.Breakers,
		infoSite: opts.InfoSite,
		started:  opts.Now(),
		now:      opts.Now,
		logger:   opts.Logger,
	}

	router := gin.New()
	router.Use(
		requestID(),
		recovery(opts.Logger),
		prometheusMiddleware(),
		corsMiddleware(),
		compression(),
		requestLogger(opts.Logger),
	)

	// Infrastructure
	router.GET("/", h.home)
	router.GET("/healthz", h.liveness)
	router.GET("/readyz", h.readiness)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Constant badges
	router.GET("/badge/:text", func(c *gin.Context) { h.staticBadge(c, c.Param("text")) })
	router.GET("/flip.svg", h.flipBadge)

	// Vendor badges
	for _, a := range opts.Registry.All() {
		router.GET(a.Route, h.adapterBadge(a))
		opts.Logger.Debug().
			Str("vendor", a.Name).
			Str("route", a.Route).
			Msg("Adapter route registered")
	}

	router.NoRoute(h.noRoute)
	return router, nil
}
