package tabular

import (
	"math"
	"strconv"
	"strings"
)

var missingTokens = map[string]bool{
	"": true, "na": true, "nan": true, "n/a": true, "-": true, "null": true,
}

// IsMissing reports whether a raw cell denotes a missing value.
func IsMissing(s string) bool {
	return missingTokens[strings.ToLower(strings.TrimSpace(s))]
}

// ParseNumber parses a cell as float64. Missing cells yield NaN and ok=true.
// Decimal commas are accepted; when both ',' and '.' appear the last one is the
// decimal separator and the other is a thousands separator. A percent sign makes
// the cell non-numeric: marker panels are fractions and a stripped "12%" would
// be read as 12.
func ParseNumber(s string) (float64, bool) {
	if IsMissing(s) {
		return math.NaN(), true
	}
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	raw = strings.ReplaceAll(raw, " ", "")

	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	switch {
	case cpos >= 0 && dpos >= 0 && cpos > dpos:
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
	case cpos >= 0 && dpos >= 0:
		raw = strings.ReplaceAll(raw, ",", "")
	case cpos >= 0:
		raw = strings.Replace(raw, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
