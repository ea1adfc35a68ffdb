package narrative

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatValue renders a numeric value according to a format tag. Non-finite
// input yields an empty string; formatting never fails.
func FormatValue(v float64, tag FormatTag) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}

	switch tag {
	case FormatPercent:
		return fmt.Sprintf("%.1f%%", v*100)
	case FormatCurrency:
		return formatCurrency(v)
	case FormatCompact:
		return formatCompact(v)
	default:
		return formatPlain(v)
	}
}

// formatPlain renders integers without a decimal point and everything else
// with the shortest representation strconv gives.
func formatPlain(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatCurrency renders whole-dollar amounts with thousands grouping, and
// switches to compact notation for large magnitudes.
func formatCurrency(v float64) string {
	neg := v < 0
	abs := math.Abs(v)

	var s string
	if abs >= 1_000_000 {
		s = formatCompact(abs)
	} else {
		s = groupThousands(int64(math.Round(abs)))
	}

	if neg {
		return "-$" + s
	}
	return "$" + s
}

// formatCompact abbreviates magnitudes >= 1000 with a single decimal and a
// suffix. Sub-1000 integers render as-is; non-integers get 2 decimals.
func formatCompact(v float64) string {
	neg := v < 0
	abs := math.Abs(v)

	var s string
	switch {
	case abs >= 1e12:
		s = trimCompact(abs/1e12) + "T"
	case abs >= 1e9:
		s = trimCompact(abs/1e9) + "B"
	case abs >= 1e6:
		s = trimCompact(abs/1e6) + "M"
	case abs >= 1e3:
		s = trimCompact(abs/1e3) + "K"
	case abs == math.Trunc(abs):
		s = strconv.FormatInt(int64(abs), 10)
	default:
		s = strconv.FormatFloat(abs, 'f', 2, 64)
	}

	if neg {
		return "-" + s
	}
	return s
}

// trimCompact formats with one decimal and drops a trailing ".0".
func trimCompact(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0")
}

// groupThousands inserts comma separators into a non-negative integer.
func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
