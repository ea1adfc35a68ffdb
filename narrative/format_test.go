package narrative

import (
	"math"
	"testing"
)

func TestFormatValuePercent(t *testing.T) {
	testCases := []struct {
		name string
		in   float64
		want string
	}{
		{"Fraction", 0.123, "12.3%"},
		{"Whole", 1.0, "100.0%"},
		{"Zero", 0, "0.0%"},
		{"Small", 0.005, "0.5%"},
		{"Negative", -0.25, "-25.0%"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := FormatValue(tc.in, FormatPercent)
			if got != tc.want {
				t.Errorf("FormatValue(%v, percent) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFormatValueCurrency(t *testing.T) {
	testCases := []struct {
		name string
		in   float64
		want string
	}{
		{"Small", 42, "$42"},
		{"Grouped", 1234, "$1,234"},
		{"Rounded", 1234.56, "$1,235"},
		{"Large grouped", 999999, "$999,999"},
		{"Compact millions", 2500000, "$2.5M"},
		{"Negative", -1234, "-$1,234"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := FormatValue(tc.in, FormatCurrency)
			if got != tc.want {
				t.Errorf("FormatValue(%v, currency) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFormatValueCompact(t *testing.T) {
	testCases := []struct {
		name string
		in   float64
		want string
	}{
		{"Sub-thousand integer", 999, "999"},
		{"Sub-thousand decimal", 12.5, "12.50"},
		{"Thousands", 1500, "1.5K"},
		{"Exact thousand", 1000, "1K"},
		{"Millions", 3200000, "3.2M"},
		{"Billions", 1100000000, "1.1B"},
		{"Trillions", 2000000000000, "2T"},
		{"Negative thousands", -1500, "-1.5K"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := FormatValue(tc.in, FormatCompact)
			if got != tc.want {
				t.Errorf("FormatValue(%v, compact) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFormatValuePlain(t *testing.T) {
	if got := FormatValue(12, FormatPlain); got != "12" {
		t.Errorf("FormatValue(12, plain) = %q, want %q", got, "12")
	}
	if got := FormatValue(12.5, FormatPlain); got != "12.5" {
		t.Errorf("FormatValue(12.5, plain) = %q, want %q", got, "12.5")
	}
}

// Non-finite input must yield an empty string, never panic.
func TestFormatValueNonFinite(t *testing.T) {
	for _, tag := range []FormatTag{FormatPlain, FormatPercent, FormatCurrency, FormatCompact} {
		if got := FormatValue(math.NaN(), tag); got != "" {
			t.Errorf("FormatValue(NaN, %s) = %q, want empty", tag, got)
		}
		if got := FormatValue(math.Inf(1), tag); got != "" {
			t.Errorf("FormatValue(+Inf, %s) = %q, want empty", tag, got)
		}
		if got := FormatValue(math.Inf(-1), tag); got != "" {
			t.Errorf("FormatValue(-Inf, %s) = %q, want empty", tag, got)
		}
	}
}
