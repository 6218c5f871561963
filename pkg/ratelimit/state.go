// Package ratelimit tracks the request quota vendors announce in their
// response headers and gates outgoing vendor calls on it. The state lives
// in Redis so every proxy instance sharing an egress address sees the same
// quota.
package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Response headers carrying the vendor quota.
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// RedisKeyPrefix prefixes the per-host state hash.
const RedisKeyPrefix = "badge:rate_limit:"

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks requests to a host while fewer
	// calls than this remain before its reset.
	RemainingThresholdCritical = 1

	// RemainingThresholdWarning throttles requests to a host while fewer
	// calls than this remain.
	RemainingThresholdWarning = 10
)

// resetEpochCutoff separates X-RateLimit-Reset values given as seconds
// until reset from those given as a unix timestamp.
const resetEpochCutoff = 1_000_000_000

// State is the last known quota of one vendor host.
type State struct {
	// Host is the vendor host name
	Host string `json:"host"`

	// Remaining is the number of calls left in the current window
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state is older than maxAge at now.
func (s *State) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if calls must wait for the reset.
// A window that has already reset never blocks.
func (s *State) NeedsCriticalBlock(now time.Time) bool {
	return s.Remaining < RemainingThresholdCritical && s.TimeUntilReset(now) > 0
}

// NeedsThrottling returns true if calls should be slowed down.
func (s *State) NeedsThrottling(now time.Time) bool {
	return s.Remaining < RemainingThresholdWarning &&
		s.TimeUntilReset(now) > 0 &&
		!s.NeedsCriticalBlock(now)
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ParseHeaders extracts the quota of host from a vendor response.
// ok is false when the response carries no quota information.
// A 429 answer with Retry-After empties the quota until the given delay.
func ParseHeaders(host string, status int, h http.Header, now time.Time) (State, bool, error) {
	state := State{Host: host, LastUpdate: now}

	if status == http.StatusTooManyRequests {
		if ra := h.Get(HeaderRetryAfter); ra != "" {
			wait, err := parseRetryAfter(ra, now)
			if err != nil {
				return State{}, false, err
			}
			state.Remaining = 0
			state.ResetAt = now.Add(wait)
			return state, true, nil
		}
	}

	remainStr := h.Get(HeaderRemaining)
	if remainStr == "" {
		return State{}, false, nil
	}
	remain, err := strconv.Atoi(strings.TrimSpace(remainStr))
	if err != nil {
		return State{}, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}
	state.Remaining = remain

	resetStr := h.Get(HeaderReset)
	if resetStr == "" {
		return State{}, false, fmt.Errorf("%s header missing", HeaderReset)
	}
	reset, err := strconv.ParseInt(strings.TrimSpace(resetStr), 10, 64)
	if err != nil {
		return State{}, false, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}
	if reset >= resetEpochCutoff {
		state.ResetAt = time.Unix(reset, 0)
	} else {
		state.ResetAt = now.Add(time.Duration(reset) * time.Second)
	}
	return state, true, nil
}

func parseRetryAfter(v string, now time.Time) (time.Duration, error) {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		if secs < 0 {
			secs = 0
		}
		if int64(secs) > math.MaxInt64/int64(time.Second) {
			return time.Duration(math.MaxInt64), nil
		}
		return time.Duration(secs) * time.Second, nil
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s header: %w", HeaderRetryAfter, err)
	}
	if d := at.Sub(now); d > 0 {
		return d, nil
	}
	return 0, nil
}
