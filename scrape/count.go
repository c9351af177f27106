package scrape

import (
	"strconv"
	"strings"
)

// countUnits maps the suffixes the site renders on engagement counts.
var countUnits = []struct {
	suffix string
	factor float64
}{
	{"亿", 1e8},
	{"万", 1e4},
	{"w", 1e4},
	{"W", 1e4},
	{"千", 1e3},
	{"k", 1e3},
	{"K", 1e3},
}

// ParseCount converts a rendered count like "1.2万", "10w", "3k", or
// "2,345" to an integer. Unparseable input yields 0.
func ParseCount(raw string) int64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "+")

	factor := 1.0
	for _, u := range countUnits {
		if strings.HasSuffix(s, u.suffix) {
			factor = u.factor
			s = strings.TrimSuffix(s, u.suffix)
			break
		}
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(n * factor)
}
