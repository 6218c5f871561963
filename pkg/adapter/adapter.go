// Package adapter turns declarative vendor descriptions into fetch
// functions for the staleness controller. An adapter names the route it
// serves, the vendor URL to query and where the displayed value lives in
// the vendor's answer; the core never needs vendor-specific code.
package adapter

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind is how a vendor answer is parsed.
type Kind string

const (
	// KindJSON reads a dotted path out of a JSON document.
	KindJSON Kind = "json"

	// KindSVG reads the value text of another badge.
	KindSVG Kind = "svg"
)

// Format is how an extracted value is displayed.
type Format string

const (
	// FormatRaw shows the value as extracted.
	FormatRaw Format = "raw"

	// FormatMetric abbreviates numbers with metric prefixes (1500 → 2k).
	FormatMetric Format = "metric"
)

// ErrUnknownAdapter is returned by Registry.Get for unknown names.
var ErrUnknownAdapter = errors.New("unknown adapter")

// Success is a predicate on the vendor answer. When it does not hold the
// vendor reports the resource as unavailable.
type Success struct {
	Field  string `yaml:"field"`
	Equals string `yaml:"equals"`
}

// Adapter describes one vendor badge.
type Adapter struct {
	// Name identifies the adapter in logs and metrics
	Name string `yaml:"name"`

	// Route is the gin route served; its last segment must be a
	// parameter, which carries "<value>.<format>"
	Route string `yaml:"route"`

	// URL is the vendor URL; {param} placeholders are replaced by escaped
	// route parameters and registry vars
	URL string `yaml:"url"`

	// Kind selects the parser
	Kind Kind `yaml:"kind"`

	// Field is the dotted path of the displayed value (json kind only)
	Field string `yaml:"field"`

	// Message is the displayed text; {value} is the extracted value,
	// {param} a route parameter and {=dotted.path} another JSON field
	Message string `yaml:"message"`

	// Success is an optional availability predicate (json kind only)
	Success *Success `yaml:"success"`

	// Label is the default badge label
	Label string `yaml:"label"`

	// Color is the message colour of a successful answer
	Color string `yaml:"color"`

	// Format controls value display
	Format Format `yaml:"format"`

	// Refresh, when set, memoizes the parsed value per vendor URL for
	// this long, independently of the badge cache
	Refresh time.Duration `yaml:"refresh"`

	params []string
	vars   map[string]string
}

var (
	routeParam  = regexp.MustCompile(`^:([A-Za-z_][A-Za-z0-9_]*)$`)
	placeholder = regexp.MustCompile(`\{([=A-Za-z_][A-Za-z0-9_.]*)\}`)
)

// Params returns the route parameter names in order.
func (a *Adapter) Params() []string {
	return a.params
}

// LastParam is the route parameter carrying the output format.
func (a *Adapter) LastParam() string {
	return a.params[len(a.params)-1]
}

func (a *Adapter) validate(vars map[string]string) error {
	if a.Name == "" {
		return errors.New("name is required")
	}
	if !strings.HasPrefix(a.Route, "/") {
		return fmt.Errorf("adapter %s: route must start with '/'", a.Name)
	}

	a.params = a.params[:0]
	segments := strings.Split(strings.TrimPrefix(a.Route, "/"), "/")
	for i, seg := range segments {
		if seg == "" {
			return fmt.Errorf("adapter %s: empty route segment", a.Name)
		}
		m := routeParam.FindStringSubmatch(seg)
		if m == nil {
			if strings.ContainsAny(seg, ":*") {
				return fmt.Errorf("adapter %s: invalid route segment %q", a.Name, seg)
			}
			if i == len(segments)-1 {
				return fmt.Errorf("adapter %s: last route segment must be a parameter", a.Name)
			}
			continue
		}
		if _, clash := vars[m[1]]; clash {
			return fmt.Errorf("adapter %s: route parameter %q shadows a var", a.Name, m[1])
		}
		a.params = append(a.params, m[1])
	}

	if a.URL == "" {
		return fmt.Errorf("adapter %s: url is required", a.Name)
	}
	for _, m := range placeholder.FindAllStringSubmatch(a.URL, -1) {
		if !a.hasParam(m[1]) {
			if _, ok := vars[m[1]]; !ok {
				return fmt.Errorf("adapter %s: url placeholder {%s} is not a route parameter or var", a.Name, m[1])
			}
		}
	}

	switch a.Kind {
	case KindJSON:
	case KindSVG:
		if a.Field != "" || a.Success != nil {
			return fmt.Errorf("adapter %s: field and success apply to json adapters only", a.Name)
		}
	case "":
		a.Kind = KindJSON
	default:
		return fmt.Errorf("adapter %s: unknown kind %q", a.Name, a.Kind)
	}

	switch a.Format {
	case FormatRaw, FormatMetric:
	case "":
		a.Format = FormatRaw
	default:
		return fmt.Errorf("adapter %s: unknown format %q", a.Name, a.Format)
	}

	if a.Message == "" {
		a.Message = "{value}"
	}
	for _, m := range placeholder.FindAllStringSubmatch(a.Message, -1) {
		name := m[1]
		switch {
		case name == "value":
		case strings.HasPrefix(name, "="):
			if a.Kind != KindJSON {
				return fmt.Errorf("adapter %s: {%s} needs a json adapter", a.Name, name)
			}
		case a.hasParam(name):
		default:
			return fmt.Errorf("adapter %s: unknown message placeholder {%s}", a.Name, name)
		}
	}
	if a.Kind == KindJSON && a.Field == "" && strings.Contains(a.Message, "{value}") {
		return fmt.Errorf("adapter %s: message uses {value} but no field is set", a.Name)
	}

	if a.Label == "" {
		a.Label = a.Name
	}
	if a.Refresh < 0 {
		return fmt.Errorf("adapter %s: refresh must not be negative", a.Name)
	}
	a.vars = vars
	return nil
}

func (a *Adapter) hasParam(name string) bool {
	for _, p := range a.params {
		if p == name {
			return true
		}
	}
	return false
}

// SourceURL fills the vendor URL template. Route parameters are escaped
// for the position they appear in; vars are inserted verbatim.
func (a *Adapter) SourceURL(pathParams map[string]string) (string, error) {
	queryStart := strings.IndexByte(a.URL, '?')

	var b strings.Builder
	last := 0
	for _, loc := range placeholder.FindAllStringSubmatchIndex(a.URL, -1) {
		b.WriteString(a.URL[last:loc[0]])
		last = loc[1]

		name := a.URL[loc[2]:loc[3]]
		if v, ok := a.vars[name]; ok {
			b.WriteString(v)
			continue
		}
		v, ok := pathParams[name]
		if !ok {
			return "", fmt.Errorf("adapter %s: missing route parameter %q", a.Name, name)
		}
		if queryStart >= 0 && loc[0] > queryStart {
			b.WriteString(url.QueryEscape(v))
		} else {
			b.WriteString(url.PathEscape(v))
		}
	}
	b.WriteString(a.URL[last:])

	u, err := url.Parse(b.String())
	if err != nil {
		return "", fmt.Errorf("adapter %s: bad source url: %w", a.Name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("adapter %s: source url must be http(s)", a.Name)
	}
	return u.String(), nil
}

// file is the YAML layout of an adapters file.
type file struct {
	Vars     map[string]string `yaml:"vars"`
	Adapters []*Adapter        `yaml:"adapters"`
}

// Registry holds the loaded adapters.
type Registry struct {
	adapters []*Adapter
	byName   map[string]*Adapter
}

//go:embed adapters.yaml
var defaultAdapters []byte

// Default returns the registry of the built-in adapters.
func Default() (*Registry, error) {
	return Load(strings.NewReader(string(defaultAdapters)))
}

// LoadFile reads a registry from path.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open adapters file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a registry.
func Load(r io.Reader) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode adapters: %w", err)
	}

	reg := &Registry{byName: make(map[string]*Adapter, len(f.Adapters))}
	routes := make(map[string]string, len(f.Adapters))
	for i, a := range f.Adapters {
		if err := a.validate(f.Vars); err != nil {
			return nil, fmt.Errorf("adapter #%d: %w", i, err)
		}
		if _, dup := reg.byName[a.Name]; dup {
			return nil, fmt.Errorf("duplicate adapter name %q", a.Name)
		}
		shape := routeShape(a.Route)
		if other, dup := routes[shape]; dup {
			return nil, fmt.Errorf("adapter %s: route %s conflicts with adapter %s", a.Name, a.Route, other)
		}
		routes[shape] = a.Name
		reg.byName[a.Name] = a
		reg.adapters = append(reg.adapters, a)
	}
	return reg, nil
}

// routeShape normalises parameter names so equivalent routes compare equal.
func routeShape(route string) string {
	segments := strings.Split(route, "/")
	for i, s := range segments {
		if strings.HasPrefix(s, ":") {
			segments[i] = ":"
		}
	}
	return strings.Join(segments, "/")
}

// All returns the adapters in file order.
func (r *Registry) All() []*Adapter {
	return r.adapters
}

// Get returns the adapter called name.
func (r *Registry) Get(name string) (*Adapter, error) {
	a, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, name)
	}
	return a, nil
}

// Len returns the number of adapters.
func (r *Registry) Len() int {
	return len(r.adapters)
}
