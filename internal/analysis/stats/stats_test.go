package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hilo-forecaster/internal/models"
)

func seqOf(s string) []models.Outcome {
	out := make([]models.Outcome, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = models.FromShort(s[i])
	}
	return out
}

func TestEntropy(t *testing.T) {
	assert.Equal(t, 0.0, Entropy(nil))
	assert.InDelta(t, 0.0, Entropy(seqOf("HHHHHHHH")), 1e-9)
	assert.InDelta(t, 0.0, Entropy(seqOf("LLLL")), 1e-9)
	assert.InDelta(t, 1.0, Entropy(seqOf("HL")), 1e-9)
	assert.InDelta(t, 1.0, Entropy(seqOf("HLHLHLHLHL")), 1e-9)
	assert.Less(t, Entropy(seqOf("HHHL")), 1.0)
}

func TestVarianceAndStdDev(t *testing.T) {
	assert.Equal(t, 0.0, Variance(nil))
	assert.Equal(t, 0.0, Variance([]float64{7}))
	assert.InDelta(t, 2.5, Variance([]float64{1, 2, 3, 4, 5}), 1e-12)
	assert.InDelta(t, 1.5811388, StdDev([]float64{1, 2, 3, 4, 5}), 1e-6)
	assert.Equal(t, 3.0, Average([]float64{1, 2, 3, 4, 5}))
	assert.Equal(t, 0.0, Average(nil))
}

func TestZScoreOfLast(t *testing.T) {
	assert.Equal(t, 0.0, ZScoreOfLast([]float64{4}))
	assert.Equal(t, 0.0, ZScoreOfLast([]float64{4, 4, 4}))
	assert.Greater(t, ZScoreOfLast([]float64{1, 2, 3, 10}), 0.0)
}

func TestAutocorrelation(t *testing.T) {
	alt := []float64{1, 0, 1, 0, 1, 0, 1, 0}
	assert.Less(t, Autocorrelation(alt, 1), -0.5)
	assert.Greater(t, Autocorrelation(alt, 2), 0.5)
	assert.Equal(t, 0.0, Autocorrelation([]float64{3, 3, 3}, 1))
	assert.Equal(t, 0.0, Autocorrelation(alt, 0))
	assert.Equal(t, 0.0, Autocorrelation(alt, 8))
}

func TestSwitchRateAndStreak(t *testing.T) {
	assert.Equal(t, 0.5, SwitchRate([]models.Outcome{models.High}))
	assert.Equal(t, 1.0, SwitchRate(seqOf("HLHL")))
	assert.Equal(t, 0.0, SwitchRate(seqOf("HHH")))

	assert.Equal(t, 0, TrailingStreak([]models.Outcome{}))
	assert.Equal(t, 3, TrailingStreak(seqOf("HLLL")))
	assert.Equal(t, []int{2, 1, 3}, RunLengths(seqOf("HHLHHH")))
}

func TestCountPattern(t *testing.T) {
	assert.Equal(t, 3, CountPattern(seqOf("HLHLHLH"), seqOf("HLH")))
	assert.Equal(t, 0, CountPattern(seqOf("HH"), seqOf("HHH")))
	assert.Equal(t, 0, CountPattern(seqOf("HH"), nil))
}

func TestIsMonotonic(t *testing.T) {
	xs := []float64{9, 4, 5, 6, 7}
	assert.True(t, IsMonotonic(xs, 4, Rising))
	assert.False(t, IsMonotonic(xs, 5, Rising))
	assert.False(t, IsMonotonic(xs, 3, Falling))
	assert.False(t, IsMonotonic(xs, 1, Rising))
	assert.False(t, IsMonotonic(xs, 9, Rising))
}

func TestEncodeAndBinary(t *testing.T) {
	assert.Equal(t, "HLLH", Encode(seqOf("HLLH")))
	assert.Equal(t, []float64{1, 0, 0, 1}, Binary(seqOf("HLLH")))
	assert.Equal(t, 0.5, FrequencyHigh(nil))
	assert.Equal(t, 0.75, FrequencyHigh(seqOf("HHLH")))
}
