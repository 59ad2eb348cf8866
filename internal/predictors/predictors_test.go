package predictors

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hilo-forecaster/internal/models"
)

func alternating(n int, lastHigh bool) models.History {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		// position n-1 must be H when lastHigh
		if ((n-1-i)%2 == 0) == lastHigh {
			sb.WriteByte('H')
		} else {
			sb.WriteByte('L')
		}
	}
	return models.HistoryFromPattern(sb.String())
}

func historyFromTotals(totals ...int) models.History {
	h := make(models.History, len(totals))
	for i, t := range totals {
		h[i] = models.Round{Index: int64(i), Total: t, Outcome: models.OutcomeFromTotal(t)}
	}
	return h
}

func allPredictors() []Predictor {
	preds, _ := NewCatalogue(DefaultConfig())
	return preds
}

func hasReason(v models.Vote, code models.ReasonCode) bool {
	for _, r := range v.Reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}

func TestFallbackOnEmptyHistory(t *testing.T) {
	for _, p := range allPredictors() {
		t.Run(p.Name(), func(t *testing.T) {
			v := p.Predict(nil)
			assert.Equal(t, p.Name(), v.Source)
			assert.Equal(t, models.High, v.Predicted)
			assert.Equal(t, 0.5, v.Confidence)
			assert.True(t, hasReason(v, models.ReasonInsufficientData))
		})
	}
}

func TestMarkovAlternationPredictsOppositeWithCertainty(t *testing.T) {
	for _, lastHigh := range []bool{true, false} {
		h := alternating(120, lastHigh)
		last := h.LastOutcome()

		for order := 1; order <= DefaultMaxMarkovOrder; order++ {
			st := Transition(h, order)
			require.Greater(t, st.Support(), minContextSupport)
			if last == models.High {
				assert.Equal(t, 0.0, st.PHigh(), "order %d", order)
			} else {
				assert.Equal(t, 1.0, st.PHigh(), "order %d", order)
			}
		}

		v := NewMarkovChain(4).Predict(h)
		assert.Equal(t, last.Opposite(), v.Predicted)
		assert.InDelta(t, 0.98, v.Confidence, 1e-9)
		assert.True(t, hasReason(v, models.ReasonMarkovTransition))
	}
}

func TestMarkovFallsBackToBaseRate(t *testing.T) {
	// HHL never repeats its order-1 context "L" three times.
	v := NewMarkovChain(2).Predict(models.HistoryFromPattern("HHL"))
	assert.True(t, hasReason(v, models.ReasonMarkovBaseRate))
	assert.Equal(t, models.High, v.Predicted)
}

func TestStreakBreakAfterTenHighs(t *testing.T) {
	h := models.HistoryFromPattern("HHHHHHHHHH")

	est := BreakProbability(h)
	assert.Equal(t, 10, est.Streak)
	assert.Equal(t, 0, est.Samples)
	assert.True(t, est.LowEntropy)
	assert.GreaterOrEqual(t, est.Probability, 0.8)

	v := NewStreakBreakFilter(DefaultBreakThreshold).Predict(h)
	assert.Equal(t, models.Low, v.Predicted)
	assert.GreaterOrEqual(t, v.Confidence, 0.8)
	assert.True(t, hasReason(v, models.ReasonStreakBreak))
}

func TestStreakBreakLearnsRunLength(t *testing.T) {
	pattern := strings.Repeat("HHHHLLLL", 10)
	f := NewStreakBreakFilter(DefaultBreakThreshold)

	for cut := 12; cut < len(pattern)-1; cut++ {
		h := models.HistoryFromPattern(pattern[:cut+1])
		next := models.FromShort(pattern[cut+1])
		v := f.Predict(h)
		assert.Equal(t, next, v.Predicted, "cutoff %d", cut)
	}
}

func TestStreakBreakExcludesInProgressRun(t *testing.T) {
	// Completed runs: 3 (H) and 3 (L); the current run of 3 must not count.
	est := BreakProbability(models.HistoryFromPattern("HHHLLLHHH"))
	assert.Equal(t, 2, est.Samples)
	assert.Equal(t, 1.0, est.Empirical)
}

func TestFrequencyRulesAlternation(t *testing.T) {
	v := NewFrequencyRules().Predict(alternating(40, true))
	assert.Equal(t, models.Low, v.Predicted)
	assert.True(t, hasReason(v, models.ReasonAlternationMotif))
	assert.LessOrEqual(t, v.Confidence, 0.98)
}

func TestFrequencyRulesCertainBreak(t *testing.T) {
	// Majorities plus even parity (2.6) against the certain break (2.5) is too close to
	// call, so the above-midpoint average decides.
	v := NewFrequencyRules().Predict(historyFromTotals(8, 11, 11, 11, 11, 11, 11, 11, 11, 12))
	assert.True(t, hasReason(v, models.ReasonStreakCertainBreak))
	assert.True(t, hasReason(v, models.ReasonAverageTiebreak))
	assert.Equal(t, models.High, v.Predicted)
	assert.InDelta(t, 0.558, v.Confidence, 1e-9)
}

func TestRecentMotifRepeat(t *testing.T) {
	v := NewRecentMotifRepeat().Predict(alternating(60, true))
	assert.Equal(t, models.Low, v.Predicted)
	assert.InDelta(t, 0.95, v.Confidence, 1e-9)
	assert.True(t, hasReason(v, models.ReasonMotifRepeat))

	short := NewRecentMotifRepeat().Predict(models.HistoryFromPattern("LLLLHHHH"))
	assert.Equal(t, models.High, short.Predicted)
	assert.True(t, hasReason(short, models.ReasonRecencyVote))
}

func TestAutoregressiveTotal(t *testing.T) {
	v := NewAutoregressiveTotal(nil).Predict(historyFromTotals(15, 15, 15, 15))
	// estimate = 10.5 + 1.1*4.5 = 15.45
	assert.Equal(t, models.High, v.Predicted)
	assert.InDelta(t, 0.9, v.Confidence, 1e-9)

	v = NewAutoregressiveTotal(nil).Predict(historyFromTotals(12, 12, 12, 5))
	assert.Equal(t, models.Low, v.Predicted)
}

func TestMovingAverageCrossover(t *testing.T) {
	h := models.HistoryFromPattern(strings.Repeat("L", 15) + strings.Repeat("H", 5))
	v := NewMovingAverageCrossover().Predict(h)
	assert.Equal(t, models.High, v.Predicted)
	assert.InDelta(t, 0.8, v.Confidence, 1e-9)
}

func TestRSIOscillator(t *testing.T) {
	up := historyFromTotals(3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18)
	v := NewRSIOscillator(14).Predict(up)
	assert.Equal(t, models.Low, v.Predicted)
	assert.InDelta(t, 0.85, v.Confidence, 1e-9)
	assert.True(t, hasReason(v, models.ReasonRSIOverbought))

	down := historyFromTotals(18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3)
	v = NewRSIOscillator(14).Predict(down)
	assert.Equal(t, models.High, v.Predicted)

	flat := historyFromTotals(10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10)
	v = NewRSIOscillator(14).Predict(flat)
	assert.Equal(t, models.Low, v.Predicted)
	assert.Equal(t, 0.5, v.Confidence)
}

func TestDetectDominantMotif(t *testing.T) {
	d := DetectDominantMotif(alternating(30, true), 12)
	assert.Equal(t, "alternation", d.MotifName)
	assert.Equal(t, models.Low, d.Predicted)
	assert.Equal(t, 12, d.Count)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)

	d = DetectDominantMotif(models.HistoryFromPattern("HHLLHHLLHHLL"), 12)
	assert.Equal(t, "two_two", d.MotifName)
	assert.Equal(t, models.High, d.Predicted)

	d = DetectDominantMotif(models.HistoryFromPattern("HHLLHHLLHHLLH"), 12)
	assert.Equal(t, "two_two", d.MotifName)
	assert.Equal(t, models.High, d.Predicted, "single of a pair extends")

	d = DetectDominantMotif(models.HistoryFromPattern("LHHHHHH"), 12)
	assert.Equal(t, "long_streak", d.MotifName)
	assert.Equal(t, models.High, d.Predicted)

	d = DetectDominantMotif(models.HistoryFromPattern("HHHHLHHLLLHL"), 12)
	assert.Empty(t, d.MotifName)
	assert.Equal(t, 0.5, d.Confidence)

	d = DetectDominantMotif(nil, 0)
	assert.Empty(t, d.MotifName)
	assert.Equal(t, models.Low, d.Predicted)
}

func TestCatalogueProfiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profile = ProfileBasic
	assert.Equal(t, []string{NameFrequency, NameMarkov, NameStreakBreak}, cfg.ActiveNames())

	preds, err := NewCatalogue(cfg)
	require.NoError(t, err)
	require.Len(t, preds, 3)
	assert.Equal(t, 2, preds[1].(*MarkovChain).MaxOrder())

	cfg.Profile = ProfileFull
	cfg.Disabled = []string{NameRSI, NameBridge}
	assert.NotContains(t, cfg.ActiveNames(), NameRSI)
	assert.Len(t, cfg.ActiveNames(), 6)

	cfg = DefaultConfig()
	cfg.Enabled = []string{NameStreakBreak}
	assert.Equal(t, []string{NameStreakBreak}, cfg.ActiveNames())

	cfg.Disabled = []string{"astrology"}
	_, err = NewCatalogue(cfg)
	assert.Error(t, err)

	_, err = ParseProfile("turbo")
	assert.Error(t, err)
	p, err := ParseProfile(" Standard ")
	require.NoError(t, err)
	assert.Equal(t, 3, p.MarkovOrder())
}

func TestEngineRunAll(t *testing.T) {
	engine, err := NewEngineFromConfig(DefaultConfig(), 3)
	require.NoError(t, err)

	h := alternating(80, false)
	votes, err := engine.RunAll(context.Background(), h)
	require.NoError(t, err)
	require.Len(t, votes, len(AllNames))
	for i, v := range votes {
		assert.Equal(t, AllNames[i], v.Source)
	}

	again, err := engine.RunAll(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, votes, again)

	v, err := engine.Run(context.Background(), NameBridge, h)
	require.NoError(t, err)
	assert.Equal(t, models.High, v.Predicted)

	_, err = engine.Run(context.Background(), "missing", h)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.RunAll(ctx, h)
	assert.ErrorIs(t, err, context.Canceled)
}
