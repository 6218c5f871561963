package cache

import (
	"errors"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

const (
	// DefaultRefreshInterval is used until a vendor declares its own freshness
	DefaultRefreshInterval = 5 * time.Second

	// NoCacheDirective forbids intermediaries from storing a response
	NoCacheDirective = "no-cache, no-store, must-revalidate"
)

const maxAgeSeconds = math.MaxInt64 / int64(time.Second)

var (
	maxAgeDirective = regexp.MustCompile(`max-age=([0-9]+)`)
	digitsOnly      = regexp.MustCompile(`^[0-9]+$`)
)

// ParseMaxAge extracts the max-age directive from a vendor response's
// Cache-Control header. The boolean is false when no numeric hint exists.
func ParseMaxAge(headers http.Header) (time.Duration, bool) {
	if headers == nil {
		return 0, false
	}
	cc := headers.Get("Cache-Control")
	if cc == "" {
		return 0, false
	}
	m := maxAgeDirective.FindStringSubmatch(cc)
	if m == nil {
		return 0, false
	}
	secs, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	// Hints beyond what a Duration holds mean "practically forever".
	if err != nil || secs > maxAgeSeconds {
		return time.Duration(math.MaxInt64), true
	}
	return time.Duration(secs) * time.Second, true
}

// SetResponseHeaders writes the caching directives for a badge response.
// A numeric client maxAge yields "max-age=N" unless noCache is set;
// everything else is marked non-cacheable. Expires and Date are both the
// request time so proxies that ignore Cache-Control still revalidate.
func SetResponseHeaders(h http.Header, now time.Time, maxAge string, noCache bool) {
	if !noCache && digitsOnly.MatchString(maxAge) {
		h.Set("Cache-Control", "max-age="+maxAge)
	} else {
		h.Set("Cache-Control", NoCacheDirective)
	}
	date := now.UTC().Format(http.TimeFormat)
	h.Set("Expires", date)
	h.Set("Date", date)
}
