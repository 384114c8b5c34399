// Package core provides the value types shared by the balance and report
// engines, plus the single normalization point for free-text amounts.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts free-text currency input into a float.
//
// Every character that is not a digit, '.' or '-' is dropped and the rest is
// parsed as a float64. Anything that still fails to parse, or parses to NaN or
// an infinity, yields 0.
//
// Examples:
//
//	ParseAmount("€1,250.50") -> 1250.5
//	ParseAmount("-40")       -> -40
//	ParseAmount("abc")       -> 0
//	ParseAmount("1.2.3")     -> 0
func ParseAmount(s string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// FormatAmount renders an amount with two decimals for display.
// Calculations never go through this; it is for callers only.
func FormatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.00"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatClamped is FormatAmount with negative values shown as zero, the way
// remaining balances are displayed.
func FormatClamped(v float64) string {
	if v < 0 {
		v = 0
	}
	return FormatAmount(v)
}
