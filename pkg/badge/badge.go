// Package badge holds the badge value model shared by the cache, the
// staleness controller and the HTTP layer, plus the presentation parameters
// clients may pass on the query string.
package badge

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Colours used for synthesised badges.
const (
	ColorLightgrey = "lightgrey"
	ColorRed       = "red"
)

// DefaultStyle is used when the client asks for no style or an unknown one.
const DefaultStyle = "flat"

// Styles lists the accepted render templates.
var Styles = []string{"plastic", "flat", "flat-square", "for-the-badge", "social"}

// Reason marks a value that was synthesised because the vendor could not
// provide a real answer.
type Reason string

const (
	// ReasonNone is a genuine vendor answer.
	ReasonNone Reason = ""

	// ReasonUnresponsive is set when the vendor missed the timeout budget
	// and no cached value existed.
	ReasonUnresponsive Reason = "unresponsive"

	// ReasonVendorError is set when the vendor call failed or its payload
	// could not be interpreted.
	ReasonVendorError Reason = "vendor_error"

	// ReasonInternal is set when building the response itself failed.
	ReasonInternal Reason = "internal"
)

// Params are the presentation parameters of a badge request.
type Params struct {
	Label     string
	Style     string
	Logo      string
	LogoWidth string
	Links     []string
	ColorA    string
	ColorB    string

	// MaxAge only overrides the Cache-Control response header.
	MaxAge string
}

// Data is a badge value: what the vendor said and how to draw it.
type Data struct {
	Label      string   `json:"name"`
	Message    string   `json:"value"`
	Color      string   `json:"color,omitempty"`
	LabelColor string   `json:"labelColor,omitempty"`
	Style      string   `json:"style,omitempty"`
	Logo       string   `json:"logo,omitempty"`
	LogoWidth  int      `json:"logoWidth,omitempty"`
	Links      []string `json:"links,omitempty"`
	Format     string   `json:"-"`
	Degraded   Reason   `json:"degraded,omitempty"`
}

var sixHex = regexp.MustCompile(`^[0-9a-fA-F]{6}$`)

// ParamsFromQuery extracts and normalises presentation parameters.
// A single link becomes a one element list, a logo gains the data: prefix
// and bare six digit hex colours gain a leading '#'.
func ParamsFromQuery(q url.Values) Params {
	p := Params{
		Label:     q.Get("label"),
		Style:     q.Get("style"),
		Logo:      q.Get("logo"),
		LogoWidth: q.Get("logoWidth"),
		Links:     q["link"],
		ColorA:    colorParam(q.Get("colorA")),
		ColorB:    colorParam(q.Get("colorB")),
		MaxAge:    q.Get("maxAge"),
	}
	if p.Links == nil {
		p.Links = []string{}
	}
	if p.Logo != "" && !strings.HasPrefix(p.Logo, "data:") {
		p.Logo = "data:" + p.Logo
	}
	return p
}

func colorParam(c string) string {
	if sixHex.MatchString(c) {
		return "#" + c
	}
	return c
}

// ValidStyle reports whether s is an accepted template name.
func ValidStyle(s string) bool {
	for _, v := range Styles {
		if v == s {
			return true
		}
	}
	return false
}

// New builds the starting badge for a vendor: the label defaults to
// defaultLabel unless the client overrides it, and the message is "n/a".
func New(defaultLabel string, p Params) Data {
	label := p.Label
	if label == "" {
		label = defaultLabel
	}
	style := p.Style
	if !ValidStyle(style) {
		style = DefaultStyle
	}
	logoWidth, _ := strconv.Atoi(p.LogoWidth)
	d := Data{
		Label:      label,
		Message:    "n/a",
		Color:      ColorLightgrey,
		LabelColor: p.ColorA,
		Style:      style,
		Logo:       p.Logo,
		LogoWidth:  logoWidth,
		Links:      p.Links,
	}
	if p.ColorB != "" {
		d.Color = p.ColorB
	}
	return d
}

// WithMessage returns a copy of d showing msg in colour. A client supplied
// colorB still wins over the vendor colour.
func (d Data) WithMessage(msg, color string, p Params) Data {
	d.Message = msg
	if p.ColorB == "" && color != "" {
		d.Color = color
	}
	return d
}

// SameMessage reports whether two answers display the same value.
func (d Data) SameMessage(other Data) bool {
	return d.Message == other.Message
}

// IsDegraded reports whether d was synthesised instead of fetched.
func (d Data) IsDegraded() bool {
	return d.Degraded != ReasonNone
}

// Unresponsive is served when the vendor timed out and nothing is cached.
func Unresponsive(p Params) Data {
	d := New("vendor", p)
	d.Message = "unresponsive"
	d.Color = ColorLightgrey
	d.Degraded = ReasonUnresponsive
	return d
}

// VendorError is served when the vendor call failed.
func VendorError(defaultLabel, msg string, p Params) Data {
	d := New(defaultLabel, p)
	d.Message = msg
	d.Color = ColorLightgrey
	d.Degraded = ReasonVendorError
	return d
}

// Internal is served when the proxy itself failed to build a response.
func Internal() Data {
	return Data{
		Label:    "error",
		Message:  "bad badge",
		Color:    ColorRed,
		Style:    DefaultStyle,
		Degraded: ReasonInternal,
	}
}

// NotFound is served for badge-shaped URLs that match no route.
func NotFound(p Params) Data {
	d := New("404", p)
	d.Message = "badge not found"
	d.Color = ColorRed
	return d
}
