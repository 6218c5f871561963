// Package warmup requests a list of badge paths through the proxy's own
// handler at startup so popular keys are cached before real traffic.
//
// Requests go through the full middleware stack and the staleness
// controller, exactly like client requests, but never touch the network
// on the inbound side.
//
// Example usage:
//
//	w := warmup.New(router, warmup.DefaultConfig(), logger)
//	report := w.Run(ctx, []string{"/bilibili/video/av/170001.svg"})
package warmup

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// UserAgent identifies warmup requests in the request log.
const UserAgent = "badge-proxy-warmup"

// Config holds warmup configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests
	MaxConcurrency int

	// Timeout per badge request
	Timeout time.Duration
}

// DefaultConfig returns a conservative configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// Report summarizes a warmup run.
type Report struct {
	Requested int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Warmer issues warmup requests against a handler.
type Warmer struct {
	handler http.Handler
	config  Config
	logger  zerolog.Logger
}

// New creates a Warmer.
func New(handler http.Handler, config Config, logger zerolog.Logger) *Warmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Warmer{handler: handler, config: config, logger: logger}
}

// Run requests every path with bounded concurrency. Failed paths are
// logged and counted; they never abort the run. Cancelling ctx stops
// issuing new requests.
func (w *Warmer) Run(ctx context.Context, paths []string) Report {
	start := time.Now()
	var succeeded, failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.MaxConcurrency)

	for _, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := w.request(gctx, path); err != nil {
				failed.Add(1)
				w.logger.Warn().Err(err).Str("path", path).Msg("Warmup request failed")
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Requested: len(paths),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Duration:  time.Since(start),
	}
	w.logger.Info().
		Int("requested", report.Requested).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("Warmup complete")
	return report
}

func (w *Warmer) request(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", UserAgent)

	rw := &discardWriter{header: http.Header{}}
	w.handler.ServeHTTP(rw, req)

	return rw.err()
}
