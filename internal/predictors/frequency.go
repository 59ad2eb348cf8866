package predictors

import (
	"math"

	"hilo-forecaster/internal/analysis/stats"
	"hilo-forecaster/internal/models"
)

var (
	frequencyWindows = []struct {
		size   int
		weight float64
	}{
		{3, 0.5},
		{5, 0.8},
		{10, 1.0},
		{20, 1.2},
	}

	alternationMotifs = [][]models.Outcome{
		{models.High, models.Low, models.High, models.Low},
		{models.Low, models.High, models.Low, models.High},
	}
	doublePairMotifs = [][]models.Outcome{
		{models.High, models.High, models.Low, models.Low},
		{models.Low, models.Low, models.High, models.High},
	}
)

// FrequencyRules scores High and Low with windowed majorities, total averages and
// streak heuristics, then picks the side with the larger score.
type FrequencyRules struct {
	BasePredictor
}

// NewFrequencyRules creates the frequency/streak heuristic predictor.
func NewFrequencyRules() *FrequencyRules {
	return &FrequencyRules{BasePredictor: NewBasePredictor(NameFrequency, 3)}
}

type scoreboard struct {
	high, low float64
	reasons   []models.Reason
}

func (s *scoreboard) add(o models.Outcome, pts float64, r models.Reason) {
	if o == models.High {
		s.high += pts
	} else {
		s.low += pts
	}
	s.reasons = append(s.reasons, r)
}

// Predict implements Predictor.
func (f *FrequencyRules) Predict(h models.History) models.Vote {
	if f.Insufficient(h) {
		return f.Fallback(h)
	}

	outcomes := h.Outcomes()
	totals := h.Totals()
	last := h.LastOutcome()
	var sb scoreboard

	for _, w := range frequencyWindows {
		if len(outcomes) < w.size {
			continue
		}
		tail := stats.Tail(outcomes, w.size)
		highs := int(math.Round(stats.FrequencyHigh(tail) * float64(w.size)))
		lows := w.size - highs
		switch {
		case highs > lows:
			sb.add(models.High, w.weight, models.NewReason(models.ReasonWindowMajority, w.size, models.High, highs))
		case lows > highs:
			sb.add(models.Low, w.weight, models.NewReason(models.ReasonWindowMajority, w.size, models.Low, lows))
		}
	}

	avg10 := stats.Average(stats.Tail(totals, 10))
	if avg10 >= 12 {
		sb.add(models.High, 1.0, models.NewReason(models.ReasonAverageTotal, avg10))
	} else if avg10 <= 9 {
		sb.add(models.Low, 1.0, models.NewReason(models.ReasonAverageTotal, avg10))
	}

	if stats.IsMonotonic(totals, 5, stats.Rising) {
		sb.add(models.High, 0.6, models.NewReason(models.ReasonTotalTrend, "rising"))
	} else if stats.IsMonotonic(totals, 5, stats.Falling) {
		sb.add(models.Low, 0.6, models.NewReason(models.ReasonTotalTrend, "falling"))
	}

	lastRound, _ := h.Last()
	if lastRound.Total%2 == 0 {
		sb.add(models.High, 0.3, models.NewReason(models.ReasonParity, "even"))
	} else {
		sb.add(models.Low, 0.3, models.NewReason(models.ReasonParity, "odd"))
	}

	streak := stats.TrailingStreak(outcomes)
	switch {
	case streak >= 9:
		sb.add(last.Opposite(), 2.5, models.NewReason(models.ReasonStreakCertainBreak, streak, last))
	case streak >= 7:
		sb.add(last, 0.6, models.NewReason(models.ReasonStreakContinuation, streak, last))
	case streak >= 4:
		sb.add(last, 1.0, models.NewReason(models.ReasonStreakContinuation, streak, last))
	case streak >= 2:
		sb.add(last.Opposite(), 1.2, models.NewReason(models.ReasonStreakReversal, streak, last))
	case streak == 1 && stats.SwitchRate(stats.Tail(outcomes, 10)) >= 0.7:
		sb.add(last.Opposite(), 0.8, models.NewReason(models.ReasonAlternationMotif, "switch_rate"))
	}

	tail20 := stats.Tail(outcomes, 20)
	var alternations, doublePairs int
	for _, m := range alternationMotifs {
		alternations += stats.CountPattern(tail20, m)
	}
	for _, m := range doublePairMotifs {
		doublePairs += stats.CountPattern(tail20, m)
	}
	if alternations >= 3 {
		sb.add(last.Opposite(), 1.5, models.NewReason(models.ReasonAlternationMotif, alternations))
	}
	if doublePairs >= 2 {
		// 2-2 rhythm: a single extends to a pair, a pair flips.
		follow := last
		if streak >= 2 {
			follow = last.Opposite()
		}
		sb.add(follow, 0.8, models.NewReason(models.ReasonDoublePairMotif, doublePairs))
	}

	margin := math.Abs(sb.high - sb.low)
	var predicted models.Outcome
	switch {
	case margin > 0.5 && sb.high > sb.low:
		predicted = models.High
	case margin > 0.5:
		predicted = models.Low
	case avg10 != models.Midpoint:
		if avg10 > models.Midpoint {
			predicted = models.High
		} else {
			predicted = models.Low
		}
		sb.reasons = append(sb.reasons, models.NewReason(models.ReasonAverageTiebreak, avg10))
	default:
		predicted = last.Opposite()
		sb.reasons = append(sb.reasons, models.NewReason(models.ReasonAlternateDefault))
	}

	confidence := math.Min(0.98, 0.55+0.08*margin)
	return f.CreateVote(predicted, confidence, sb.reasons...)
}
