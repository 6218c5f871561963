package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/badge-proxy/pkg/badge"
	"github.com/Sternrassler/badge-proxy/pkg/client"
	"github.com/Sternrassler/badge-proxy/pkg/periodic"
	"github.com/Sternrassler/badge-proxy/pkg/proxy"
)

// MessageUnavailable is shown when the success predicate fails.
const MessageUnavailable = "unavailable"

// Fetcher performs vendor GET requests. *client.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, url string) (*client.Response, error)
}

// Sample is one parsed vendor answer.
type Sample struct {
	// Message is the rendered display text
	Message string

	// Available is false when the success predicate failed
	Available bool

	// MaxAge is the vendor's freshness hint, valid when HasMaxAge is set
	MaxAge    time.Duration
	HasMaxAge bool
}

// Source bundles what fetch functions need to reach vendors.
type Source struct {
	Fetcher Fetcher

	// Periodic memoizes samples of adapters with a refresh interval
	// (optional)
	Periodic *periodic.Cache[Sample]
}

// FetchFunc returns the controller fetch function for one request.
func (a *Adapter) FetchFunc(src Source, pathParams map[string]string, p badge.Params) proxy.FetchFunc {
	return func(ctx context.Context) (proxy.Result, error) {
		sourceURL, err := a.SourceURL(pathParams)
		if err != nil {
			return proxy.Result{}, err
		}

		fetch := func(ctx context.Context) (Sample, error) {
			return a.sample(ctx, src.Fetcher, sourceURL, pathParams)
		}

		var s Sample
		if a.Refresh > 0 && src.Periodic != nil {
			s, err = src.Periodic.Refresh(ctx, sourceURL, a.Refresh, fetch)
			s.MaxAge, s.HasMaxAge = a.Refresh, true
		} else {
			s, err = fetch(ctx)
		}
		if err != nil {
			return proxy.Result{}, err
		}

		d := badge.New(a.Label, p)
		if s.Available {
			d = d.WithMessage(s.Message, a.Color, p)
		} else {
			d = d.WithMessage(MessageUnavailable, badge.ColorLightgrey, p)
		}
		return proxy.Result{Value: d, MaxAge: s.MaxAge, HasMaxAge: s.HasMaxAge}, nil
	}
}

// sample fetches and parses one vendor answer.
func (a *Adapter) sample(ctx context.Context, f Fetcher, sourceURL string, pathParams map[string]string) (Sample, error) {
	resp, err := f.Get(ctx, sourceURL)
	if err != nil {
		return Sample{}, fmt.Errorf("adapter %s: %w", a.Name, err)
	}

	s := Sample{Available: true}
	s.MaxAge, s.HasMaxAge = resp.FreshFor()

	switch a.Kind {
	case KindSVG:
		v, err := svgValue(resp.Body)
		if err != nil {
			return Sample{}, fmt.Errorf("adapter %s: %w", a.Name, err)
		}
		s.Message = a.render(v, pathParams, nil)

	default:
		doc, err := decodeJSON(resp.Body)
		if err != nil {
			return Sample{}, fmt.Errorf("adapter %s: %w", a.Name, err)
		}
		if a.Success != nil {
			got, err := field(doc, a.Success.Field)
			if err != nil {
				return Sample{}, fmt.Errorf("adapter %s: %w", a.Name, err)
			}
			if got != a.Success.Equals {
				s.Available = false
				return s, nil
			}
		}

		var v string
		if a.Field != "" {
			if v, err = field(doc, a.Field); err != nil {
				return Sample{}, fmt.Errorf("adapter %s: %w", a.Name, err)
			}
		}

		var ferr error
		s.Message = a.render(v, pathParams, func(path string) string {
			fv, err := field(doc, path)
			if err != nil && ferr == nil {
				ferr = err
			}
			return fv
		})
		if ferr != nil {
			return Sample{}, fmt.Errorf("adapter %s: %w", a.Name, ferr)
		}
	}
	return s, nil
}

// render fills the message template.
func (a *Adapter) render(value string, pathParams map[string]string, jsonField func(string) string) string {
	return placeholder.ReplaceAllStringFunc(a.Message, func(m string) string {
		name := m[1 : len(m)-1]
		switch {
		case name == "value":
			return a.Format.apply(value)
		case strings.HasPrefix(name, "="):
			if jsonField == nil {
				return ""
			}
			return jsonField(name[1:])
		default:
			return pathParams[name]
		}
	})
}
