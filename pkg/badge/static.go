package badge

import (
	"regexp"
	"strings"
)

var (
	inlineUnderscore   = regexp.MustCompile(`([^_])_([^_])`)
	trailingUnderscore = regexp.MustCompile(`([^_])_$`)
	leadingUnderscore  = regexp.MustCompile(`^_([^_])`)
)

// Unescape applies the static badge escaping rules: a single underscore
// is a space, "__" is an underscore and "--" is a dash.
func Unescape(t string) string {
	// Applied twice so that overlapping matches like "a_b_c" all convert.
	t = inlineUnderscore.ReplaceAllString(t, "$1 $2")
	t = inlineUnderscore.ReplaceAllString(t, "$1 $2")
	t = trailingUnderscore.ReplaceAllString(t, "$1 ")
	t = leadingUnderscore.ReplaceAllString(t, " $1")
	t = strings.ReplaceAll(t, "__", "_")
	return strings.ReplaceAll(t, "--", "-")
}

// ParseStatic splits "label-message-color" where literal dashes inside a
// part are written as "--". It reports false when the text has no three
// parts.
func ParseStatic(text string) (label, message, color string, ok bool) {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(text); i++ {
		if text[i] == '-' {
			if i+1 < len(text) && text[i+1] == '-' {
				cur.WriteString("--")
				i++
				continue
			}
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(text[i])
	}
	parts = append(parts, cur.String())
	if len(parts) != 3 || parts[2] == "" {
		return "", "", "", false
	}
	return Unescape(parts[0]), Unescape(parts[1]), colorParam(parts[2]), true
}
