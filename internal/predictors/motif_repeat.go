package predictors

import (
	"math"
	"slices"

	"hilo-forecaster/internal/analysis/stats"
	"hilo-forecaster/internal/models"
)

const (
	motifWindow      = 50
	motifFullHistory = 30
	motifMaxLen      = 10
	motifMinLen      = 3
	recencyDecay     = 0.9
)

// motifMinRepeats is the number of earlier occurrences a motif of each length needs.
var motifMinRepeats = map[int]int{3: 5, 4: 4, 5: 4, 6: 3, 7: 3, 8: 2, 9: 2, 10: 2}

// RecentMotifRepeat looks for the trailing motif earlier in the recent window and
// predicts what followed it most often.
type RecentMotifRepeat struct {
	BasePredictor
}

// NewRecentMotifRepeat creates the motif repetition predictor.
func NewRecentMotifRepeat() *RecentMotifRepeat {
	return &RecentMotifRepeat{BasePredictor: NewBasePredictor(NameMotifRepeat, 5)}
}

// Predict implements Predictor.
func (r *RecentMotifRepeat) Predict(h models.History) models.Vote {
	if r.Insufficient(h) {
		return r.Fallback(h)
	}

	window := stats.Tail(h.Outcomes(), motifWindow)
	last := h.LastOutcome()

	if len(h) >= motifFullHistory {
		for length := motifMaxLen; length >= motifMinLen; length-- {
			if len(window) <= length {
				continue
			}
			motif := window[len(window)-length:]
			var highs, lows int
			for i := 0; i+length < len(window); i++ {
				if !slices.Equal(window[i:i+length], motif) {
					continue
				}
				if window[i+length] == models.High {
					highs++
				} else {
					lows++
				}
			}
			repeats := highs + lows
			if repeats < motifMinRepeats[length] {
				continue
			}
			predicted := last.Opposite()
			if highs > lows {
				predicted = models.High
			} else if lows > highs {
				predicted = models.Low
			}
			return r.CreateVote(predicted, math.Min(0.95, 0.55+0.05*float64(repeats)),
				models.NewReason(models.ReasonMotifRepeat, stats.Encode(motif), repeats, predicted))
		}
	}

	return r.recencyVote(window, last)
}

func (r *RecentMotifRepeat) recencyVote(window []models.Outcome, last models.Outcome) models.Vote {
	var wHigh, wLow float64
	weight := 1.0
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == models.High {
			wHigh += weight
		} else {
			wLow += weight
		}
		weight *= recencyDecay
	}
	margin := 0.0
	if wHigh+wLow > 0 {
		margin = (wHigh - wLow) / (wHigh + wLow)
	}
	predicted := last.Opposite()
	if margin > 0 {
		predicted = models.High
	} else if margin < 0 {
		predicted = models.Low
	}
	return r.CreateVote(predicted, 0.5+0.3*math.Abs(margin),
		models.NewReason(models.ReasonRecencyVote, margin))
}
