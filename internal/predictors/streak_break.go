package predictors

import (
	"math"

	"hilo-forecaster/internal/analysis/stats"
	"hilo-forecaster/internal/models"
)

const (
	// DefaultBreakThreshold is the break probability at which the filter predicts a flip.
	DefaultBreakThreshold = 0.65
	lowEntropyCutoff      = 0.5
	lowEntropyBoost       = 0.10
	breakPriorStrength    = 5.0
)

// breakPrior is the prior probability that a streak of length s ends at s.
var breakPrior = []float64{0.50, 0.50, 0.55, 0.60, 0.65, 0.70, 0.72, 0.75, 0.78, 0.80, 0.85}

func priorFor(s int) float64 {
	if s >= len(breakPrior) {
		return breakPrior[len(breakPrior)-1]
	}
	if s < 1 {
		return breakPrior[1]
	}
	return breakPrior[s]
}

// StreakBreakFilter estimates the probability that the current streak ends now.
type StreakBreakFilter struct {
	BasePredictor
	threshold float64
}

// NewStreakBreakFilter creates the streak break predictor.
func NewStreakBreakFilter(threshold float64) *StreakBreakFilter {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultBreakThreshold
	}
	return &StreakBreakFilter{
		BasePredictor: NewBasePredictor(NameStreakBreak, 1),
		threshold:     threshold,
	}
}

// BreakEstimate is the result of the break probability calculation.
type BreakEstimate struct {
	Streak      int
	Symbol      models.Outcome
	Samples     int
	Empirical   float64
	Prior       float64
	Probability float64
	LowEntropy  bool
}

// BreakProbability blends the empirical break rate of completed streaks with the prior.
// The in-progress final run is never counted as a sample. The result is kept in [0.01, 0.99].
func BreakProbability(h models.History) BreakEstimate {
	outcomes := h.Outcomes()
	runs := stats.RunLengths(outcomes)
	if len(runs) == 0 {
		return BreakEstimate{Symbol: models.High, Prior: priorFor(1), Probability: priorFor(1)}
	}

	s := runs[len(runs)-1]
	est := BreakEstimate{
		Streak: s,
		Symbol: h.LastOutcome(),
		Prior:  priorFor(s),
	}

	var breaks int
	for _, run := range runs[:len(runs)-1] {
		if run < s {
			continue
		}
		est.Samples++
		if run == s {
			breaks++
		}
	}

	p := est.Prior
	if est.Samples > 0 {
		est.Empirical = float64(breaks) / float64(est.Samples)
		w := float64(est.Samples) / (float64(est.Samples) + breakPriorStrength)
		p = w*est.Empirical + (1-w)*est.Prior
	}
	if stats.Entropy(stats.Tail(outcomes, 20)) < lowEntropyCutoff {
		est.LowEntropy = true
		p += lowEntropyBoost
	}
	est.Probability = stats.Clamp(p, 0.01, 0.99)
	return est
}

// Predict implements Predictor.
func (f *StreakBreakFilter) Predict(h models.History) models.Vote {
	if f.Insufficient(h) {
		return f.Fallback(h)
	}

	est := BreakProbability(h)
	var reasons []models.Reason
	if est.LowEntropy {
		reasons = append(reasons, models.NewReason(models.ReasonLowEntropy, lowEntropyBoost))
	}
	if est.Probability >= f.threshold {
		reasons = append(reasons, models.NewReason(models.ReasonStreakBreak, est.Streak, est.Symbol, est.Probability))
		return f.CreateVote(est.Symbol.Opposite(), est.Probability, reasons...)
	}
	reasons = append(reasons, models.NewReason(models.ReasonStreakHold, est.Streak, est.Symbol, est.Probability))
	return f.CreateVote(est.Symbol, math.Max(0.5, 1-est.Probability), reasons...)
}
