// Package stats provides total, side-effect-free statistics over outcome sequences and
// numeric totals. Every function returns a neutral value for empty or short input.
package stats

import (
	"math"
	"strings"

	"hilo-forecaster/internal/models"
)

// entropyEpsilon keeps log2 finite when a symbol never occurs.
const entropyEpsilon = 1e-12

// Sum calculates the sum of a slice of float64.
func Sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// Average calculates the arithmetic mean of a slice of float64.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// Variance calculates the sample variance (denominator n-1).
func Variance(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := Average(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return ss / float64(n-1)
}

// StdDev calculates the sample standard deviation.
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// ZScoreOfLast returns how many standard deviations the last value sits from the mean.
func ZScoreOfLast(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sd := StdDev(values)
	if sd == 0 {
		return 0
	}
	return (values[len(values)-1] - Average(values)) / sd
}

// Entropy returns the Shannon entropy in bits of the High/Low distribution.
func Entropy(seq []models.Outcome) float64 {
	if len(seq) == 0 {
		return 0
	}
	p := FrequencyHigh(seq)
	q := 1 - p
	h := -(p*math.Log2(p+entropyEpsilon) + q*math.Log2(q+entropyEpsilon))
	if h < 0 {
		return 0
	}
	return h
}

// FrequencyHigh returns the share of High outcomes, 0.5 for empty input.
func FrequencyHigh(seq []models.Outcome) float64 {
	if len(seq) == 0 {
		return 0.5
	}
	var highs int
	for _, o := range seq {
		if o == models.High {
			highs++
		}
	}
	return float64(highs) / float64(len(seq))
}

// Autocorrelation returns the lag-k autocorrelation normalized by the series variance.
func Autocorrelation(values []float64, lag int) float64 {
	n := len(values)
	if lag <= 0 || n <= lag {
		return 0
	}
	m := Average(values)
	var denom float64
	for _, v := range values {
		d := v - m
		denom += d * d
	}
	if denom == 0 {
		return 0
	}
	var num float64
	for i := lag; i < n; i++ {
		num += (values[i] - m) * (values[i-lag] - m)
	}
	return num / denom
}

// SwitchRate returns the fraction of adjacent pairs that differ.
func SwitchRate[T comparable](seq []T) float64 {
	if len(seq) < 2 {
		return 0.5
	}
	var switches int
	for i := 1; i < len(seq); i++ {
		if seq[i] != seq[i-1] {
			switches++
		}
	}
	return float64(switches) / float64(len(seq)-1)
}

// TrailingStreak returns the length of the constant run ending at the last element.
func TrailingStreak[T comparable](seq []T) int {
	n := len(seq)
	if n == 0 {
		return 0
	}
	last := seq[n-1]
	streak := 1
	for i := n - 2; i >= 0 && seq[i] == last; i-- {
		streak++
	}
	return streak
}

// RunLengths splits seq into maximal constant runs and returns their lengths in order.
func RunLengths[T comparable](seq []T) []int {
	if len(seq) == 0 {
		return nil
	}
	runs := []int{1}
	for i := 1; i < len(seq); i++ {
		if seq[i] == seq[i-1] {
			runs[len(runs)-1]++
		} else {
			runs = append(runs, 1)
		}
	}
	return runs
}

// CountPattern counts (possibly overlapping) occurrences of pattern in seq.
func CountPattern[T comparable](seq, pattern []T) int {
	m := len(pattern)
	if m == 0 || len(seq) < m {
		return 0
	}
	count := 0
	for i := 0; i+m <= len(seq); i++ {
		match := true
		for j := 0; j < m; j++ {
			if seq[i+j] != pattern[j] {
				match = false
				break
			}
		}
		if match {
			count++
		}
	}
	return count
}

// Direction selects the sense of a monotonic check.
type Direction int

const (
	Rising Direction = iota
	Falling
)

// IsMonotonic reports whether the trailing window is strictly rising or falling.
func IsMonotonic(values []float64, window int, dir Direction) bool {
	if window < 2 || len(values) < window {
		return false
	}
	tail := values[len(values)-window:]
	for i := 1; i < len(tail); i++ {
		if dir == Rising && tail[i] <= tail[i-1] {
			return false
		}
		if dir == Falling && tail[i] >= tail[i-1] {
			return false
		}
	}
	return true
}

// Tail returns the last n elements of seq.
func Tail[T any](seq []T, n int) []T {
	if n <= 0 {
		return seq[:0]
	}
	if n >= len(seq) {
		return seq
	}
	return seq[len(seq)-n:]
}

// Encode renders outcomes as an "H"/"L" string for motif matching.
func Encode(seq []models.Outcome) string {
	var sb strings.Builder
	sb.Grow(len(seq))
	for _, o := range seq {
		sb.WriteString(o.Short())
	}
	return sb.String()
}

// Binary maps High to 1 and Low to 0.
func Binary(seq []models.Outcome) []float64 {
	out := make([]float64, len(seq))
	for i, o := range seq {
		if o == models.High {
			out[i] = 1
		}
	}
	return out
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
