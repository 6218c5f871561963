package server

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/badge-proxy/pkg/adapter"
	"github.com/Sternrassler/badge-proxy/pkg/badge"
	"github.com/Sternrassler/badge-proxy/pkg/cache"
	"github.com/Sternrassler/badge-proxy/pkg/circuitbreaker"
	"github.com/Sternrassler/badge-proxy/pkg/proxy"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// staticMaxAge is how long clients may keep constant badges.
	staticMaxAge = 24 * time.Hour

	// flipMaxAge is the freshness of the cache debugging badge.
	flipMaxAge = 60 * time.Second

	readinessTimeout = 2 * time.Second
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type handlers struct {
	ctrl     *proxy.Controller
	source   adapter.Source
	checks   map[string]Pinger
	breakers *circuitbreaker.Set
	infoSite string
	started  time.Time
	now      func() time.Time
	logger   zerolog.Logger

	flip atomic.Bool
}

// splitFormat splits "value.format" on the last dot.
func splitFormat(v string) (value, format string, ok bool) {
	i := strings.LastIndexByte(v, '.')
	if i <= 0 {
		return "", "", false
	}
	value, format = v[:i], v[i+1:]
	if !badge.SupportedFormat(format) {
		return "", "", false
	}
	return value, format, true
}

// writeBadge renders d with status 200.
func writeBadge(c *gin.Context, format string, d badge.Data) {
	writeBadgeStatus(c, http.StatusOK, format, d)
}

func writeBadgeStatus(c *gin.Context, status int, format string, d badge.Data) {
	var buf bytes.Buffer
	if err := badge.Render(&buf, format, d); err != nil {
		_ = c.Error(err)
		buf.Reset()
		format = badge.FormatSVG
		_ = badge.Render(&buf, format, badge.Internal())
	}
	c.Data(status, badge.ContentType(format), buf.Bytes())
}

// adapterBadge serves one vendor adapter through the staleness controller.
func (h *handlers) adapterBadge(a *adapter.Adapter) gin.HandlerFunc {
	last := a.LastParam()
	return func(c *gin.Context) {
		value, format, ok := splitFormat(c.Param(last))
		if !ok {
			h.notFound(c)
			return
		}

		pathParams := make(map[string]string, len(a.Params()))
		for _, name := range a.Params() {
			pathParams[name] = c.Param(name)
		}
		pathParams[last] = value

		params := badge.ParamsFromQuery(c.Request.URL.Query())
		recordStyle(params.Style)

		req := proxy.Request{
			Key:    cache.Key{Route: c.Request.URL.Path, Params: params}.String(),
			Label:  a.Label,
			Format: format,
			Params: params,
		}
		resp := h.ctrl.Serve(c.Request.Context(), req, a.FetchFunc(h.source, pathParams, params))
		responsesTotal.WithLabelValues(string(resp.Source)).Inc()

		h.logger.Debug().
			Str("request_id", GetRequestID(c)).
			Str("vendor", a.Name).
			Str("source", string(resp.Source)).
			Bool("degraded", resp.Value.IsDegraded()).
			Msg("Badge served")

		cache.SetResponseHeaders(c.Writer.Header(), h.now(), params.MaxAge, resp.NoCache)
		writeBadge(c, format, resp.Value)
	}
}

// staticBadge serves "label-message-color.format". The content never
// changes, so it is cacheable for a day and revalidates against the
// process start time.
func (h *handlers) staticBadge(c *gin.Context, text string) {
	body, format, ok := splitFormat(text)
	if !ok {
		h.notFound(c)
		return
	}
	label, message, color, ok := badge.ParseStatic(body)
	if !ok {
		h.notFound(c)
		return
	}

	params := badge.ParamsFromQuery(c.Request.URL.Query())
	recordStyle(params.Style)
	responsesTotal.WithLabelValues(sourceStatic).Inc()

	c.Header("Cache-Control", "max-age="+strconv.Itoa(int(staticMaxAge.Seconds())))
	if ims, err := http.ParseTime(c.GetHeader("If-Modified-Since")); err == nil && !ims.Before(h.started.Truncate(time.Second)) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Header("Last-Modified", h.started.UTC().Format(http.TimeFormat))

	d := badge.New(label, params).WithMessage(message, color, params)
	writeBadge(c, format, d)
}

// flipBadge alternates between "on" and "off" on every request so
// intermediary caching can be observed.
func (h *handlers) flipBadge(c *gin.Context) {
	params := badge.ParamsFromQuery(c.Request.URL.Query())
	on := h.toggle()

	msg, color := "off", badge.ColorRed
	if on {
		msg, color = "on", "brightgreen"
	}

	c.Header("Cache-Control", "max-age="+strconv.Itoa(int(flipMaxAge.Seconds())))
	c.Header("Expires", h.now().Add(flipMaxAge).UTC().Format(http.TimeFormat))
	writeBadge(c, badge.FormatSVG, badge.New("flip", params).WithMessage(msg, color, params))
}

func (h *handlers) toggle() bool {
	for {
		old := h.flip.Load()
		if h.flip.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// noRoute serves legacy "/:label-message-color.svg" static badges and a
// "badge not found" badge for any other badge-shaped path.
func (h *handlers) noRoute(c *gin.Context) {
	path := c.Request.URL.Path
	if strings.HasPrefix(path, "/:") && !strings.Contains(path[2:], "/") {
		h.staticBadge(c, path[2:])
		return
	}
	if _, _, ok := splitFormat(path); ok {
		h.notFound(c)
		return
	}
	c.String(http.StatusNotFound, "404 page not found")
}

func (h *handlers) notFound(c *gin.Context) {
	params := badge.ParamsFromQuery(c.Request.URL.Query())
	cache.SetResponseHeaders(c.Writer.Header(), h.now(), "", true)
	writeBadgeStatus(c, http.StatusNotFound, formatOf(c.Request.URL.Path), badge.NotFound(params))
}

func (h *handlers) home(c *gin.Context) {
	c.Redirect(http.StatusFound, h.infoSite)
}

func (h *handlers) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readiness checks the registered dependencies. Open vendor breakers are
// reported but do not fail the probe: badges still degrade gracefully.
func (h *handlers) readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	breakers := map[string]string{}
	if h.breakers != nil {
		for _, s := range h.breakers.Stats() {
			breakers[s.Name] = s.State
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": checks, "breakers": breakers})
}
