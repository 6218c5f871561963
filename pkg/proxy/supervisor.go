package proxy

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Sternrassler/badge-proxy/pkg/badge"
	"github.com/Sternrassler/badge-proxy/pkg/cache"
)

// outcome is the result of one vendor call. committed is false when the
// answer arrived after the deadline and was dropped.
type outcome struct {
	entry     cache.Entry
	committed bool
}

// supervise races the vendor call against the timeout budget and answers
// r unless it was already answered. The call and the timer share one
// deadline and one gate, so an answer is either committed and delivered
// or dropped once the request has been answered as timed out.
func (c *Controller) supervise(ctx context.Context, req Request, start time.Time, fetch FetchFunc, r *responder) {
	deadline := time.Now().Add(c.cfg.Timeout)
	g := &gate{}
	done := c.call(ctx, req, start, deadline, g, fetch)

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case out := <-done:
		if out.committed {
			c.deliverVendor(out, r)
			return
		}
	case <-timer.C:
		if !g.expire() {
			// Committed just before the deadline; the outcome is on its way.
			c.deliverVendor(<-done, r)
			return
		}
	}

	vendorTimeoutsTotal.Inc()
	c.logger.Warn().
		Str("key", req.Key).
		Dur("timeout", c.cfg.Timeout).
		Bool("answered", r.sent()).
		Msg("Vendor unresponsive")
	c.fallback(req, r)
}

func (c *Controller) deliverVendor(out outcome, r *responder) {
	r.send(Response{
		Value:   out.entry.Value,
		Source:  SourceVendor,
		NoCache: out.entry.Value.IsDegraded(),
	})
}

// fallback answers a request whose vendor call timed out.
func (c *Controller) fallback(req Request, r *responder) {
	if r.sent() {
		return
	}
	if e, ok := c.store.Get(req.Key); ok {
		r.send(Response{Value: e.Value, Source: SourceStale, NoCache: true})
		return
	}
	v := badge.Unresponsive(req.Params)
	v.Format = req.Format
	r.send(Response{Value: v, Source: SourceUnresponsive, NoCache: true})
}

// call starts the vendor call and returns a channel receiving its outcome.
func (c *Controller) call(ctx context.Context, req Request, start, deadline time.Time, g *gate, fetch FetchFunc) <-chan outcome {
	done := make(chan outcome, 1)

	if c.cfg.Coalesce {
		flight := c.flights.DoChan(req.Key, func() (any, error) {
			return c.fetchAndCommit(ctx, req, start, deadline, g, fetch), nil
		})
		go func() {
			res := <-flight
			done <- res.Val.(outcome)
		}()
		return done
	}

	go func() {
		done <- c.fetchAndCommit(ctx, req, start, deadline, g, fetch)
	}()
	return done
}

// fetchAndCommit runs fetch until deadline and records its answer in the
// store. Vendor errors become degraded answers; answers after the
// deadline, or after g has expired, are not recorded.
func (c *Controller) fetchAndCommit(ctx context.Context, req Request, start, deadline time.Time, g *gate, fetch FetchFunc) outcome {
	vctx, cancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	defer cancel()

	began := time.Now()
	res, err := c.safeFetch(vctx, req, fetch)
	vendorCallDuration.Observe(time.Since(began).Seconds())

	if vctx.Err() != nil || !g.commit() {
		vendorCallsTotal.WithLabelValues("late").Inc()
		return outcome{}
	}

	value := res.Value
	if err != nil {
		vendorCallsTotal.WithLabelValues("error").Inc()
		value = c.degrade(req, err)
		res.HasMaxAge = false
	} else {
		vendorCallsTotal.WithLabelValues("success").Inc()
	}
	value.Format = req.Format

	entry := c.store.Update(req.Key, func(e *cache.Entry, exists bool) {
		if !exists {
			e.RequestCount = 1
			e.ChangeCount = 1
			e.RefreshInterval = c.cfg.DefaultInterval
		} else {
			e.RequestCount++
			if !e.Value.SameMessage(value) {
				e.ChangeCount++
			}
		}
		if res.HasMaxAge {
			e.RefreshInterval = res.MaxAge
		}
		e.LastFetch = start
		e.Value = value
	})

	c.logger.Debug().
		Str("key", req.Key).
		Int("requests", entry.RequestCount).
		Int("changes", entry.ChangeCount).
		Dur("interval", entry.RefreshInterval).
		Msg("Cached vendor answer")

	return outcome{entry: entry, committed: true}
}

// safeFetch contains a panicking fetch to the request that triggered it.
func (c *Controller) safeFetch(ctx context.Context, req Request, fetch FetchFunc) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			vendorPanicsTotal.Inc()
			c.logger.Error().
				Str("key", req.Key).
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("Vendor fetch panicked")
			err = fmt.Errorf("%w: %v", ErrVendorPanic, p)
		}
	}()
	return fetch(ctx)
}

// degrade turns a vendor failure into a visible badge.
func (c *Controller) degrade(req Request, err error) badge.Data {
	if errors.Is(err, ErrVendorPanic) {
		return badge.Internal()
	}

	msg := "inaccessible"
	if errors.Is(err, ErrMalformed) {
		msg = "invalid"
	}
	label := req.Label
	if label == "" {
		label = "vendor"
	}

	c.logger.Warn().
		Err(err).
		Str("key", req.Key).
		Str("message", msg).
		Msg("Vendor call failed")

	return badge.VendorError(label, msg, req.Params)
}
