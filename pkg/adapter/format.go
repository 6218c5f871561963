package adapter

import (
	"math"
	"strconv"
	"strings"
)

var metricPrefixes = []string{"k", "M", "G", "T", "P", "E", "Z", "Y"}

// metric abbreviates a count with a metric prefix, rounding to the nearest
// whole unit: 999 → "999", 1500 → "2k", 999500 → "1M", 2500000 → "3M".
// Values that are not numbers are returned unchanged.
func metric(v string) string {
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return v
	}
	for i := len(metricPrefixes) - 1; i >= 0; i-- {
		limit := math.Pow(1000, float64(i+1))
		if n < limit {
			continue
		}
		r := math.Round(n / limit)
		// 999500 rounds to 1000k; report it as 1M.
		if r >= 1000 && i+1 < len(metricPrefixes) {
			r = math.Round(n / (limit * 1000))
			i++
		}
		return strconv.FormatFloat(r, 'f', -1, 64) + metricPrefixes[i]
	}
	return v
}

func (f Format) apply(v string) string {
	if f == FormatMetric {
		return metric(v)
	}
	return v
}
