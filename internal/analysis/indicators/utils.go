// Package indicators provides technical indicator calculations over numeric series such
// as the sequence of dice totals.
package indicators

import (
	"errors"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
)

// Indicator defines the interface for single-value indicators over a numeric series.
type Indicator interface {
	Name() string
	Calculate(values []float64) ([]float64, error)
	Period() int
}

// sum calculates the sum of a slice of float64.
func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// mean calculates the arithmetic mean of a slice of float64.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// Last returns the final value of an indicator series, or fallback when the series is empty.
func Last(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	return values[len(values)-1]
}
