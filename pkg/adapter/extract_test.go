package adapter

import (
	"errors"
	"testing"

	"github.com/Sternrassler/badge-proxy/pkg/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField(t *testing.T) {
	doc, err := decodeJSON([]byte(`{
		"code": 0,
		"data": {"danmaku": 1234567890123, "ratio": 0.5, "ok": true, "none": null, "obj": {}},
		"songs": [{"name": "Song", "al": {"name": "Album"}}]
	}`))
	require.NoError(t, err)

	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"code", "0", false},
		{"data.danmaku", "1234567890123", false},
		{"data.ratio", "0.5", false},
		{"data.ok", "true", false},
		{"data.none", "null", false},
		{"songs.0.name", "Song", false},
		{"songs.0.al.name", "Album", false},
		{"songs.1.name", "", true},
		{"songs.x", "", true},
		{"data.missing", "", true},
		{"data.obj", "", true},
		{"code.deeper", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := field(doc, tt.path)
			if tt.wantErr {
				assert.True(t, errors.Is(err, proxy.ErrMalformed), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON_Malformed(t *testing.T) {
	_, err := decodeJSON([]byte(`{"code":`))
	assert.True(t, errors.Is(err, proxy.ErrMalformed))
}

func TestSVGValue(t *testing.T) {
	tests := []struct {
		name    string
		svg     string
		want    string
		wantErr bool
	}{
		{
			name: "shields style badge",
			svg: `<svg xmlns="http://www.w3.org/2000/svg" width="90" height="20">
  <g fill="#fff" text-anchor="middle">
    <text x="19.5" y="15" fill="#010101" fill-opacity=".3">build</text>
    <text x="19.5" y="14">build</text>
    <text x="63" y="15" fill="#010101" fill-opacity=".3">passing</text>
    <text x="63" y="14">passing</text>
  </g>
</svg>`,
			want: "passing",
		},
		{
			name: "nested tspan",
			svg:  `<svg><text>label</text><text><tspan>1.2k</tspan></text></svg>`,
			want: "1.2k",
		},
		{
			name: "entities decoded",
			svg:  `<svg><text>a &amp; b</text></svg>`,
			want: "a & b",
		},
		{
			name:    "no text",
			svg:     `<svg><rect/></svg>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svgValue([]byte(tt.svg))
			if tt.wantErr {
				assert.True(t, errors.Is(err, proxy.ErrMalformed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetric(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0", "0"},
		{"999", "999"},
		{"1000", "1k"},
		{"1499", "1k"},
		{"1500", "2k"},
		{"999499", "999k"},
		{"999500", "1M"},
		{"999999", "1M"},
		{"999999999", "1G"},
		{"2500000", "3M"},
		{"7000000000", "7G"},
		{"-5", "-5"},
		{"n/a", "n/a"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, metric(tt.in), "metric(%q)", tt.in)
	}
}
