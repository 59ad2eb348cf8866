package meta

import (
	"context"
	"fmt"
	"sort"

	"hilo-forecaster/internal/analysis/stats"
	"hilo-forecaster/internal/models"
	"hilo-forecaster/internal/predictors"
)

// Features is a named feature vector. Missing names read as 0.
type Features map[string]float64

// FeatureFunc computes the features visible at the end of h.
type FeatureFunc func(ctx context.Context, h models.History) (Features, error)

const totalHalfRange = 7.5

var (
	freqWindows  = []int{5, 10, 20, 50}
	avgWindows   = []int{5, 10, 20}
	autocorrLags = []int{1, 2, 3}
)

// VoteFeature is the feature name carrying a sub-predictor's signed confidence.
func VoteFeature(source string) string {
	return "vote_" + source
}

// FeatureNames lists every feature Build can emit for the given voters, sorted.
func FeatureNames(voters []string) []string {
	names := []string{
		"streak_norm", "switch_rate_10", "switch_rate_20", "even_ratio_10", "markov1_p_high",
		"entropy_10", "entropy_20", "dice_pair_ratio_10", "dice_triple_ratio_20",
		"dice_spread_norm", "last_sign",
	}
	for _, w := range freqWindows {
		names = append(names, fmt.Sprintf("freq_high_%d", w))
	}
	for _, w := range avgWindows {
		names = append(names, fmt.Sprintf("avg_total_%d", w))
	}
	for _, lag := range autocorrLags {
		names = append(names, fmt.Sprintf("autocorr_lag%d", lag))
	}
	for _, v := range voters {
		names = append(names, VoteFeature(v))
	}
	sort.Strings(names)
	return names
}

// Build derives the feature vector from the history and the sub-predictor votes on it.
func Build(h models.History, votes []models.Vote) Features {
	outcomes := h.Outcomes()
	totals := h.Totals()
	f := make(Features, 32)

	for _, w := range freqWindows {
		f[fmt.Sprintf("freq_high_%d", w)] = stats.FrequencyHigh(stats.Tail(outcomes, w))
	}
	for _, w := range avgWindows {
		tail := stats.Tail(totals, w)
		v := 0.0
		if len(tail) > 0 {
			v = stats.Clamp((stats.Average(tail)-models.Midpoint)/totalHalfRange, -1, 1)
		}
		f[fmt.Sprintf("avg_total_%d", w)] = v
	}

	streak := stats.TrailingStreak(outcomes)
	last := 0.0
	if len(h) > 0 {
		last = h.LastOutcome().Sign()
	}
	f["streak_norm"] = last * float64(min(streak, 10)) / 10
	f["last_sign"] = last

	f["switch_rate_10"] = stats.SwitchRate(stats.Tail(outcomes, 10))
	f["switch_rate_20"] = stats.SwitchRate(stats.Tail(outcomes, 20))
	f["even_ratio_10"] = evenRatio(h.Tail(10))
	f["markov1_p_high"] = predictors.Transition(h, 1).Smoothed()
	f["entropy_10"] = stats.Entropy(stats.Tail(outcomes, 10))
	f["entropy_20"] = stats.Entropy(stats.Tail(outcomes, 20))

	binary := stats.Binary(stats.Tail(outcomes, 50))
	for _, lag := range autocorrLags {
		f[fmt.Sprintf("autocorr_lag%d", lag)] = stats.Autocorrelation(binary, lag)
	}

	f["dice_pair_ratio_10"] = diceRatio(h.Tail(10), isPair)
	f["dice_triple_ratio_20"] = diceRatio(h.Tail(20), isTriple)
	f["dice_spread_norm"] = 0
	if r, ok := h.Last(); ok && r.HasDice() {
		lo, hi := r.Dice[0], r.Dice[0]
		for _, d := range r.Dice[1:] {
			lo = min(lo, d)
			hi = max(hi, d)
		}
		f["dice_spread_norm"] = float64(hi-lo) / 5
	}

	for _, v := range votes {
		f[VoteFeature(v.Source)] = v.Signed()
	}
	return f
}

func evenRatio(h models.History) float64 {
	if len(h) == 0 {
		return 0.5
	}
	var even int
	for _, r := range h {
		if r.Total%2 == 0 {
			even++
		}
	}
	return float64(even) / float64(len(h))
}

func isPair(d []int) bool {
	return !isTriple(d) && (d[0] == d[1] || d[1] == d[2] || d[0] == d[2])
}

func isTriple(d []int) bool {
	return d[0] == d[1] && d[1] == d[2]
}

// diceRatio is the share of rounds with dice that satisfy pred; 0 when none carry dice.
func diceRatio(h models.History, pred func([]int) bool) float64 {
	var n, hits int
	for _, r := range h {
		if !r.HasDice() {
			continue
		}
		n++
		if pred(r.Dice) {
			hits++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(hits) / float64(n)
}

// EngineFeatures returns a FeatureFunc that runs the engine and builds features from its votes.
func EngineFeatures(engine *predictors.Engine) FeatureFunc {
	return func(ctx context.Context, h models.History) (Features, error) {
		votes, err := engine.RunAll(ctx, h)
		if err != nil {
			return nil, err
		}
		return Build(h, votes), nil
	}
}
