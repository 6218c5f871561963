package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	vendorQuotaRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "badge_vendor_quota_remaining",
		Help: "Vendor calls remaining in the current rate limit window",
	}, []string{"host"})

	rateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "badge_rate_limit_blocks_total",
		Help: "Vendor calls blocked because the quota was exhausted",
	}, []string{"host"})

	rateLimitThrottlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "badge_rate_limit_throttles_total",
		Help: "Vendor calls delayed because the quota was running low",
	}, []string{"host"})
)

// DefaultThrottleDelay is how long a throttled call waits.
const DefaultThrottleDelay = 1 * time.Second

// stateGrace keeps a state around for a while after its window reset.
const stateGrace = time.Minute

// Tracker records vendor quotas in Redis and gates requests.
type Tracker struct {
	redis         *redis.Client
	logger        zerolog.Logger
	now           func() time.Time
	throttleDelay time.Duration
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		logger:        logger,
		now:           time.Now,
		throttleDelay: DefaultThrottleDelay,
	}
}

func redisKey(host string) string {
	return RedisKeyPrefix + host
}

// GetState retrieves the quota of host from Redis.
// ok is false if nothing is known about host.
func (t *Tracker) GetState(ctx context.Context, host string) (State, bool, error) {
	fields, err := t.redis.HGetAll(ctx, redisKey(host)).Result()
	if err != nil {
		return State{}, false, fmt.Errorf("get rate limit state: %w", err)
	}
	if len(fields) == 0 {
		return State{}, false, nil
	}

	remaining, err := strconv.Atoi(fields["remaining"])
	if err != nil {
		return State{}, false, fmt.Errorf("parse remaining: %w", err)
	}
	resetAt, err := strconv.ParseInt(fields["reset_at"], 10, 64)
	if err != nil {
		return State{}, false, fmt.Errorf("parse reset timestamp: %w", err)
	}
	lastUpdate, err := strconv.ParseInt(fields["last_update"], 10, 64)
	if err != nil {
		return State{}, false, fmt.Errorf("parse last update: %w", err)
	}

	return State{
		Host:       host,
		Remaining:  remaining,
		ResetAt:    time.Unix(resetAt, 0),
		LastUpdate: time.Unix(0, lastUpdate),
	}, true, nil
}

// UpdateFromResponse records the quota announced by a vendor response.
// Responses without quota headers leave the state untouched.
func (t *Tracker) UpdateFromResponse(ctx context.Context, host string, status int, headers http.Header) error {
	now := t.now()
	state, ok, err := ParseHeaders(host, status, headers, now)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	key := redisKey(host)
	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, key,
		"remaining", state.Remaining,
		"reset_at", state.ResetAt.Unix(),
		"last_update", state.LastUpdate.UnixNano(),
	)
	pipe.Expire(ctx, key, state.TimeUntilReset(now)+stateGrace)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	vendorQuotaRemaining.WithLabelValues(host).Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock(now):
		t.logger.Error().
			Str("host", host).
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Vendor quota exhausted - requests will be blocked")
	case state.NeedsThrottling(now):
		t.logger.Warn().
			Str("host", host).
			Int("remaining", state.Remaining).
			Msg("Vendor quota low - requests will be throttled")
	default:
		t.logger.Debug().
			Str("host", host).
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Vendor quota updated")
	}
	return nil
}

// ShouldAllowRequest reports whether a call to host may proceed.
// It returns false while the host's quota is exhausted, and delays the
// caller (respecting ctx) while the quota is low.
func (t *Tracker) ShouldAllowRequest(ctx context.Context, host string) (bool, error) {
	state, ok, err := t.GetState(ctx, host)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	now := t.now()
	if state.NeedsCriticalBlock(now) {
		t.logger.Warn().
			Str("host", host).
			Dur("wait_duration", state.TimeUntilReset(now)).
			Msg("Vendor quota exhausted - blocking request")
		rateLimitBlocksTotal.WithLabelValues(host).Inc()
		return false, nil
	}

	if state.NeedsThrottling(now) {
		t.logger.Debug().
			Str("host", host).
			Int("remaining", state.Remaining).
			Msg("Vendor quota low - throttling request")
		rateLimitThrottlesTotal.WithLabelValues(host).Inc()

		timer := time.NewTimer(t.throttleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}

// Ping checks the Redis connection.
func (t *Tracker) Ping(ctx context.Context) error {
	if t.redis == nil {
		return errors.New("rate limit tracker has no redis client")
	}
	return t.redis.Ping(ctx).Err()
}
