//go:build integration

package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/badge-proxy/internal/testutil"
	"github.com/Sternrassler/badge-proxy/pkg/adapter"
	"github.com/Sternrassler/badge-proxy/pkg/cache"
	"github.com/Sternrassler/badge-proxy/pkg/circuitbreaker"
	"github.com/Sternrassler/badge-proxy/pkg/client"
	"github.com/Sternrassler/badge-proxy/pkg/proxy"
	"github.com/Sternrassler/badge-proxy/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() {
		_ = redisClient.Close()
		_ = container.Terminate(ctx)
	})
	return redisClient
}

type stack struct {
	router  *gin.Engine
	vendor  *testutil.MockVendor
	tracker *ratelimit.Tracker
	host    string
}

// newStack wires the full request path: router, controller, client,
// redis-backed quota tracking and per-host breakers.
func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	redisClient := setupRedis(t)
	logger := zerolog.Nop()

	vendor := testutil.NewMockVendor()
	t.Cleanup(vendor.Close)
	u, err := url.Parse(vendor.URL())
	require.NoError(t, err)

	tracker := ratelimit.NewTracker(redisClient, logger)
	breakers := circuitbreaker.NewSet(circuitbreaker.Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute}, logger)

	c, err := client.New(client.Config{
		UserAgent:      "badge-proxy-integration",
		AttemptTimeout: 5 * time.Second,
		Retry:          client.RetryConfig{MaxAttempts: 1},
		RateLimiter:    tracker,
		Breakers:       breakers,
	}, logger)
	require.NoError(t, err)

	reg, err := adapter.Load(strings.NewReader(fmt.Sprintf(testAdapters, vendor.URL())))
	require.NoError(t, err)

	ctrl, err := proxy.New(cache.NewStore(100), proxy.DefaultConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	router, err := NewRouter(Options{
		Registry:   reg,
		Controller: ctrl,
		Source:     adapter.Source{Fetcher: c},
		Checks:     map[string]Pinger{"redis": tracker},
		Breakers:   breakers,
		Logger:     logger,
	})
	require.NoError(t, err)

	return &stack{router: router, vendor: vendor, tracker: tracker, host: u.Host}
}

func (s *stack) get(path string) *testResponse {
	env := &testEnv{router: s.router}
	w := env.get(path)
	return &testResponse{code: w.Code, body: w.Body.String()}
}

type testResponse struct {
	code int
	body string
}

// TestFullRequestFlow covers router → controller → client → vendor →
// quota state in redis → cache.
func TestFullRequestFlow(t *testing.T) {
	s := newStack(t)
	resp := testutil.NewJSONResponse(`{"stars": 99}`, 0)
	resp.Headers["X-RateLimit-Remaining"] = "50"
	resp.Headers["X-RateLimit-Reset"] = "60"
	s.vendor.SetResponse("/repos/acme/widget", resp)

	first := s.get("/stars/acme/widget.json")
	require.Equal(t, http.StatusOK, first.code)
	assert.Contains(t, first.body, `"value":"99"`)

	state, ok, err := s.tracker.GetState(context.Background(), s.host)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 50, state.Remaining)

	second := s.get("/stars/acme/widget.json")
	assert.Equal(t, first.body, second.body)
	assert.Equal(t, 1, s.vendor.PathCount("/repos/acme/widget"))
}

// TestRateLimitBlock verifies an exhausted quota stops vendor calls and
// the badge degrades instead.
func TestRateLimitBlock(t *testing.T) {
	s := newStack(t)
	resp := testutil.NewJSONResponse(`{"stars": 1}`, 0)
	resp.Headers["X-RateLimit-Remaining"] = "0"
	resp.Headers["X-RateLimit-Reset"] = "60"
	s.vendor.SetResponse("/repos/acme/widget", resp)
	s.vendor.SetResponse("/repos/acme/other", resp)

	first := s.get("/stars/acme/widget.json")
	assert.Contains(t, first.body, `"value":"1"`)

	blocked := s.get("/stars/acme/other.json")
	assert.Equal(t, http.StatusOK, blocked.code)
	assert.Contains(t, blocked.body, `"value":"inaccessible"`)
	assert.Equal(t, 0, s.vendor.PathCount("/repos/acme/other"))
}

// TestBreakerOpensOnFailingVendor verifies repeated server errors stop
// reaching the vendor and show up on the readiness probe.
func TestBreakerOpensOnFailingVendor(t *testing.T) {
	s := newStack(t)
	s.vendor.SetResponse("/repos/acme/a", testutil.NewServerErrorResponse())
	s.vendor.SetResponse("/repos/acme/b", testutil.NewServerErrorResponse())
	s.vendor.SetResponse("/repos/acme/c", testutil.NewServerErrorResponse())

	s.get("/stars/acme/a.json")
	s.get("/stars/acme/b.json")
	third := s.get("/stars/acme/c.json")

	assert.Contains(t, third.body, `"value":"inaccessible"`)
	assert.Equal(t, 0, s.vendor.PathCount("/repos/acme/c"))

	ready := s.get("/readyz")
	assert.Equal(t, http.StatusOK, ready.code)
	assert.Contains(t, ready.body, `"redis":"ok"`)
	assert.Contains(t, ready.body, `"open"`)
}
