package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/badge-proxy/internal/testutil"
	"github.com/Sternrassler/badge-proxy/pkg/adapter"
	"github.com/Sternrassler/badge-proxy/pkg/badge"
	"github.com/Sternrassler/badge-proxy/pkg/cache"
	"github.com/Sternrassler/badge-proxy/pkg/client"
	"github.com/Sternrassler/badge-proxy/pkg/proxy"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdapters = `
vars:
  api: "%s"
adapters:
  - name: stars
    route: /stars/:owner/:repo
    url: "{api}/repos/{owner}/{repo}"
    field: stars
    label: stars
    color: blue
`

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testEnv struct {
	router *gin.Engine
	ctrl   *proxy.Controller
	vendor *testutil.MockVendor
}

func newTestEnv(t *testing.T, cfg proxy.Config, checks map[string]Pinger) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	vendor := testutil.NewMockVendor()
	t.Cleanup(vendor.Close)

	reg, err := adapter.Load(strings.NewReader(fmt.Sprintf(testAdapters, vendor.URL())))
	require.NoError(t, err)

	c, err := client.New(client.Config{
		UserAgent:      "badge-proxy-test",
		AttemptTimeout: 5 * time.Second,
		Retry:          client.RetryConfig{MaxAttempts: 1},
	}, zerolog.Nop())
	require.NoError(t, err)

	ctrl, err := proxy.New(cache.NewStore(100), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	router, err := NewRouter(Options{
		Registry:   reg,
		Controller: ctrl,
		Source:     adapter.Source{Fetcher: c},
		Checks:     checks,
		InfoSite:   "https://info.example",
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)

	return &testEnv{router: router, ctrl: ctrl, vendor: vendor}
}

func (e *testEnv) get(path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBadge(t *testing.T, w *httptest.ResponseRecorder) badge.Data {
	t.Helper()
	var d badge.Data
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	return d
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := NewRouter(Options{})
	assert.Error(t, err)

	reg, err := adapter.Default()
	require.NoError(t, err)
	_, err = NewRouter(Options{Registry: reg})
	assert.Error(t, err)
}

func TestAdapterBadge_JSON(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)
	env.vendor.SetResponse("/repos/acme/widget", testutil.NewJSONResponse(`{"stars": 42}`, 0))

	w := env.get("/stars/acme/widget.json", "Origin", "https://readme.example")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, cache.NoCacheDirective, w.Header().Get("Cache-Control"))
	assert.Equal(t, testNow.Format(http.TimeFormat), w.Header().Get("Date"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	d := decodeBadge(t, w)
	assert.Equal(t, "stars", d.Label)
	assert.Equal(t, "42", d.Message)
	assert.Equal(t, "blue", d.Color)
	assert.False(t, d.IsDegraded())
}

func TestAdapterBadge_SVGWithClientOverrides(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)
	env.vendor.SetResponse("/repos/acme/widget", testutil.NewJSONResponse(`{"stars": 7}`, 0))

	w := env.get("/stars/acme/widget.svg?label=likes&colorB=ff0000&maxAge=300")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/svg+xml;charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "max-age=300", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Body.String(), "likes")
	assert.Contains(t, w.Body.String(), `fill="#ff0000"`)
}

func TestAdapterBadge_CachedWithinInterval(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)
	env.vendor.SetResponse("/repos/acme/widget", testutil.NewJSONResponse(`{"stars": 1}`, 0))

	for i := 0; i < 3; i++ {
		w := env.get("/stars/acme/widget.json")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1", decodeBadge(t, w).Message)
	}
	assert.Equal(t, 1, env.vendor.PathCount("/repos/acme/widget"))

	// Presentation parameters are part of the cache key.
	env.get("/stars/acme/widget.json?style=flat-square")
	assert.Equal(t, 2, env.vendor.PathCount("/repos/acme/widget"))

	// maxAge only changes response headers.
	env.get("/stars/acme/widget.json?maxAge=60")
	assert.Equal(t, 2, env.vendor.PathCount("/repos/acme/widget"))
}

func TestAdapterBadge_VendorErrorIsDegraded(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)
	env.vendor.SetResponse("/repos/acme/widget", testutil.NewServerErrorResponse())

	w := env.get("/stars/acme/widget.json")

	require.Equal(t, http.StatusOK, w.Code)
	d := decodeBadge(t, w)
	assert.Equal(t, "inaccessible", d.Message)
	assert.Equal(t, badge.ColorLightgrey, d.Color)
	assert.Equal(t, badge.ReasonVendorError, d.Degraded)
}

func TestAdapterBadge_TimeoutIsUnresponsive(t *testing.T) {
	cfg := proxy.DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	env := newTestEnv(t, cfg, nil)
	slow := testutil.NewJSONResponse(`{"stars": 1}`, 0)
	slow.Delay = 2 * time.Second
	env.vendor.SetResponse("/repos/acme/widget", slow)

	start := time.Now()
	w := env.get("/stars/acme/widget.json?maxAge=300")

	assert.Less(t, time.Since(start), time.Second)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, cache.NoCacheDirective, w.Header().Get("Cache-Control"))
	d := decodeBadge(t, w)
	assert.Equal(t, "unresponsive", d.Message)
	assert.Equal(t, badge.ReasonUnresponsive, d.Degraded)
}

func TestAdapterBadge_UnsupportedFormat(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)

	w := env.get("/stars/acme/widget.png")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "badge not found")
	assert.Equal(t, 0, env.vendor.RequestCount())
}

func TestStaticBadge(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)

	tests := []struct {
		name     string
		path     string
		contains []string
	}{
		{"badge prefix", "/badge/build-passing-brightgreen.svg", []string{"build", "passing", "#4c1"}},
		{"escaped dashes and underscores", "/badge/my--lib-v1.0_beta-blue.svg", []string{"my-lib", "v1.0 beta"}},
		{"hex colour", "/badge/a-b-ff8800.svg", []string{"#ff8800"}},
		{"legacy colon prefix", "/:coverage-93%25-green.svg", []string{"coverage", "93%"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.get(tt.path)

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, "max-age=86400", w.Header().Get("Cache-Control"))
			assert.Equal(t, testNow.Format(http.TimeFormat), w.Header().Get("Last-Modified"))
			for _, s := range tt.contains {
				assert.Contains(t, w.Body.String(), s)
			}
		})
	}
}

func TestStaticBadge_NotModified(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)

	w := env.get("/badge/a-b-c.svg", "If-Modified-Since", testNow.Format(http.TimeFormat))
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())

	w = env.get("/badge/a-b-c.svg", "If-Modified-Since", testNow.Add(-time.Hour).Format(http.TimeFormat))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStaticBadge_Malformed(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)

	w := env.get("/badge/only-two.svg")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "badge not found")
}

func TestFlipBadge_Alternates(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)

	first := env.get("/flip.svg")
	second := env.get("/flip.svg")

	assert.Contains(t, first.Body.String(), ">on<")
	assert.Contains(t, second.Body.String(), ">off<")
	assert.Equal(t, "max-age=60", first.Header().Get("Cache-Control"))
	assert.Equal(t, testNow.Add(time.Minute).Format(http.TimeFormat), first.Header().Get("Expires"))
}

func TestNoRoute(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)

	w := env.get("/unknown/vendor.json")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	d := decodeBadge(t, w)
	assert.Equal(t, "404", d.Label)
	assert.Equal(t, "badge not found", d.Message)

	w = env.get("/unknown/page")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "404 page not found", w.Body.String())
}

func TestHome_RedirectsToInfoSite(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)

	w := env.get("/")

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://info.example", w.Header().Get("Location"))
}

func TestProbes(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
		wantBody   string
	}{
		{"no checks", nil, http.StatusOK, `"status":"ok"`},
		{"healthy redis", map[string]Pinger{"redis": pingFunc(func(context.Context) error { return nil })}, http.StatusOK, `"redis":"ok"`},
		{"redis down", map[string]Pinger{"redis": pingFunc(func(context.Context) error { return errors.New("connection refused") })}, http.StatusServiceUnavailable, `"redis":"connection refused"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, proxy.DefaultConfig(), tt.checks)

			live := env.get("/healthz")
			assert.Equal(t, http.StatusOK, live.Code)

			ready := env.get("/readyz")
			assert.Equal(t, tt.wantStatus, ready.Code)
			assert.Contains(t, ready.Body.String(), tt.wantBody)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)
	env.get("/badge/a-b-c.svg?style=plastic")

	w := env.get("/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `badge_style_requests_total{style="plastic"}`)
	assert.Contains(t, w.Body.String(), `badge_responses_total{source="static"}`)
}

func TestRecovery_RendersErrorBadge(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)
	env.router.GET("/boom/:x", func(c *gin.Context) { panic("boom") })

	w := env.get("/boom/x.json")

	assert.Equal(t, http.StatusOK, w.Code)
	d := decodeBadge(t, w)
	assert.Equal(t, "bad badge", d.Message)
	assert.Equal(t, badge.ReasonInternal, d.Degraded)
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, proxy.DefaultConfig(), nil)

	w := env.get("/healthz")
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	w = env.get("/healthz", RequestIDHeader, "custom-request-id-123")
	assert.Equal(t, "custom-request-id-123", w.Header().Get(RequestIDHeader))
}

func TestSplitFormat(t *testing.T) {
	tests := []struct {
		in         string
		value, fmt string
		ok         bool
	}{
		{"42.svg", "42", "svg", true},
		{"v1.2.3.json", "v1.2.3", "json", true},
		{"42.png", "", "", false},
		{".svg", "", "", false},
		{"noext", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			value, format, ok := splitFormat(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.value, value)
			assert.Equal(t, tt.fmt, format)
		})
	}
}
