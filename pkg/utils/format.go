// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"
)

// FormatAmount formats a bankroll amount with thousands separators and 2 decimals.
func FormatAmount(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")
	result := groupThousands(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts commas every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a fraction as a percentage with sign.
func FormatPercent(fraction float64) string {
	value := fraction * 100
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatRatio formats a fraction in [0, 1] as an unsigned percentage.
func FormatRatio(fraction float64) string {
	return fmt.Sprintf("%.1f%%", fraction*100)
}

// FormatPnL formats a bankroll change with an explicit sign.
func FormatPnL(pnl float64) string {
	formatted := FormatAmount(pnl)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}

// Truncate shortens s to max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
