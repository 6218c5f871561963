package badge

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"
)

// Supported output formats.
const (
	FormatSVG  = "svg"
	FormatJSON = "json"
)

// ContentType returns the response content type for format.
func ContentType(format string) string {
	if format == FormatJSON {
		return "application/json"
	}
	return "image/svg+xml;charset=utf-8"
}

// SupportedFormat reports whether format can be rendered.
func SupportedFormat(format string) bool {
	return format == FormatSVG || format == FormatJSON
}

// Render writes d in the requested format.
func Render(w io.Writer, format string, d Data) error {
	switch format {
	case FormatJSON:
		return json.NewEncoder(w).Encode(d)
	case FormatSVG:
		_, err := io.WriteString(w, svg(d))
		return err
	default:
		return fmt.Errorf("unsupported badge format %q", format)
	}
}

var namedColors = map[string]string{
	"brightgreen": "#4c1",
	"green":       "#97ca00",
	"yellow":      "#dfb317",
	"yellowgreen": "#a4a61d",
	"orange":      "#fe7d37",
	"red":         "#e05d44",
	"blue":        "#007ec6",
	"grey":        "#555",
	"gray":        "#555",
	"lightgrey":   "#9f9f9f",
	"lightgray":   "#9f9f9f",
}

func fill(c, fallback string) string {
	if c == "" {
		return fallback
	}
	if hex, ok := namedColors[strings.ToLower(c)]; ok {
		return hex
	}
	return c
}

// textWidth approximates Verdana 11px; exact metrics are not a goal.
func textWidth(s string) int {
	return 7*len([]rune(s)) + 10
}

func svg(d Data) string {
	lw, mw := textWidth(d.Label), textWidth(d.Message)
	label, msg := html.EscapeString(d.Label), html.EscapeString(d.Message)
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="20" role="img" aria-label="%s: %s">`, lw+mw, label, msg)
	fmt.Fprintf(&b, `<title>%s: %s</title>`, label, msg)
	fmt.Fprintf(&b, `<g shape-rendering="crispEdges"><rect width="%d" height="20" fill="%s"/><rect x="%d" width="%d" height="20" fill="%s"/></g>`,
		lw, html.EscapeString(fill(d.LabelColor, "#555")), lw, mw, html.EscapeString(fill(d.Color, "#9f9f9f")))
	fmt.Fprintf(&b, `<g fill="#fff" text-anchor="middle" font-family="Verdana,Geneva,DejaVu Sans,sans-serif" font-size="11">`)
	fmt.Fprintf(&b, `<text x="%d" y="14">%s</text><text x="%d" y="14">%s</text></g></svg>`, lw/2, label, lw+mw/2, msg)
	return b.String()
}
