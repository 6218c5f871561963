package adapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Sternrassler/badge-proxy/pkg/proxy"
	"golang.org/x/net/html"
)

var errNoSVGText = errors.New("no text in svg badge")

// decodeJSON parses a vendor JSON body, keeping numbers exact.
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", proxy.ErrMalformed, err)
	}
	return doc, nil
}

// lookup walks a dotted path; numeric segments index arrays.
func lookup(doc any, path string) (any, bool) {
	cur := doc
	if path == "" {
		return cur, true
	}
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			cur = v[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// scalar renders a JSON leaf the way it would be displayed.
func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case nil:
		return "null", true
	default:
		return "", false
	}
}

// field extracts the display string at path.
func field(doc any, path string) (string, error) {
	v, ok := lookup(doc, path)
	if !ok {
		return "", fmt.Errorf("%w: field %q not found", proxy.ErrMalformed, path)
	}
	s, ok := scalar(v)
	if !ok {
		return "", fmt.Errorf("%w: field %q is not a scalar", proxy.ErrMalformed, path)
	}
	return s, nil
}

// svgValue returns the last text run of a badge SVG, which holds its
// message.
func svgValue(body []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(body))
	depth := 0
	var cur strings.Builder
	last := ""

	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				if last == "" {
					return "", fmt.Errorf("%w: %v", proxy.ErrMalformed, errNoSVGText)
				}
				return last, nil
			}
			return "", fmt.Errorf("%w: %v", proxy.ErrMalformed, z.Err())
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == "text" {
				depth++
				if depth == 1 {
					cur.Reset()
				}
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "text" && depth > 0 {
				depth--
				if depth == 0 {
					if t := strings.TrimSpace(cur.String()); t != "" {
						last = t
					}
				}
			}
		case html.TextToken:
			if depth > 0 {
				cur.Write(z.Text())
			}
		}
	}
}
