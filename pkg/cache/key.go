package cache

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Sternrassler/badge-proxy/pkg/badge"
)

// Key identifies a cached badge: the matched route plus the presentation
// parameters that change the rendered artifact.
type Key struct {
	// Route is the matched request path including the format extension
	Route string

	// Params are the request's presentation parameters; MaxAge is ignored
	Params badge.Params
}

// String generates a deterministic cache key string.
// Every scalar field is quoted so distinct tuples never collide.
//
// Example:
//
//	"/npm/v/express.svg"?label="downloads"&style=""&logo=""&logoWidth=""&link=[]&colorA=""&colorB=""
func (k Key) String() string {
	links := k.Params.Links
	if links == nil {
		links = []string{}
	}
	// Marshalling a []string cannot fail.
	linkJSON, _ := json.Marshal(links)

	var b strings.Builder
	b.WriteString(strconv.Quote(k.Route))
	b.WriteString("?label=")
	b.WriteString(strconv.Quote(k.Params.Label))
	b.WriteString("&style=")
	b.WriteString(strconv.Quote(k.Params.Style))
	b.WriteString("&logo=")
	b.WriteString(strconv.Quote(k.Params.Logo))
	b.WriteString("&logoWidth=")
	b.WriteString(strconv.Quote(k.Params.LogoWidth))
	b.WriteString("&link=")
	b.Write(linkJSON)
	b.WriteString("&colorA=")
	b.WriteString(strconv.Quote(k.Params.ColorA))
	b.WriteString("&colorB=")
	b.WriteString(strconv.Quote(k.Params.ColorB))
	return b.String()
}
