// Package models provides domain models for the forecasting application.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Outcome is the binary result of a round.
type Outcome string

const (
	High Outcome = "HIGH"
	Low  Outcome = "LOW"
)

const (
	// HighThreshold is the smallest dice total counted as High.
	HighThreshold = 11
	// Midpoint is the numeric center of the valid total range [3, 18].
	Midpoint = 10.5
	// MinTotal and MaxTotal bound the sum of three dice.
	MinTotal = 3
	MaxTotal = 18
)

// Opposite returns the other symbol.
func (o Outcome) Opposite() Outcome {
	if o == High {
		return Low
	}
	return High
}

// Sign returns +1 for High and -1 for Low.
func (o Outcome) Sign() float64 {
	if o == High {
		return 1
	}
	return -1
}

// Short returns the one-letter encoding used in motif keys.
func (o Outcome) Short() string {
	if o == High {
		return "H"
	}
	return "L"
}

// IsValid reports whether o is one of the two symbols.
func (o Outcome) IsValid() bool {
	return o == High || o == Low
}

// ParseOutcome canonicalizes the textual and numeric encodings seen in upstream feeds.
func ParseOutcome(s string) (Outcome, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "high", "h", "tai", "tài", "t", "big", "b", "1":
		return High, nil
	case "low", "l", "xiu", "xỉu", "x", "small", "s", "0":
		return Low, nil
	}
	if n, err := strconv.Atoi(v); err == nil && n >= MinTotal && n <= MaxTotal {
		return OutcomeFromTotal(n), nil
	}
	return "", fmt.Errorf("unrecognized outcome %q", s)
}

// OutcomeFromTotal maps a dice total to its outcome.
func OutcomeFromTotal(total int) Outcome {
	if total >= HighThreshold {
		return High
	}
	return Low
}

// FromShort decodes a single-letter symbol.
func FromShort(b byte) Outcome {
	if b == 'H' {
		return High
	}
	return Low
}
