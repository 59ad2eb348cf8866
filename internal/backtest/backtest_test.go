package backtest

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hilo-forecaster/internal/ensemble"
	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/models"
	"hilo-forecaster/internal/predictors"
)

type constantPredictor struct {
	predicted models.Outcome
}

func (c constantPredictor) Name() string    { return predictors.NameFrequency }
func (c constantPredictor) MinHistory() int { return 0 }
func (c constantPredictor) Predict(models.History) models.Vote {
	return models.Vote{Source: predictors.NameFrequency, Predicted: c.predicted, Confidence: 0.9}
}

func streakOnlyFuser(t *testing.T) *ensemble.Fuser {
	t.Helper()
	pcfg := predictors.DefaultConfig()
	pcfg.Enabled = []string{predictors.NameStreakBreak}
	engine, err := predictors.NewEngineFromConfig(pcfg, 0)
	require.NoError(t, err)
	cfg := ensemble.DefaultConfig()
	cfg.UseMeta = false
	return ensemble.New(engine, cfg)
}

func TestKellySizer(t *testing.T) {
	k := DefaultKelly()

	assert.InDelta(t, 1/1.95, k.Breakeven(), 1e-12)
	assert.Less(t, k.Fraction(0.5), 0.0)
	assert.Equal(t, k.MinBet, k.BetSize(0.5, 1000))
	assert.Equal(t, k.MinBet, k.BetSize(k.Breakeven(), 1000))

	// (0.95*0.9 - 0.1)/0.95 is far above the cap
	assert.InDelta(t, 50.0, k.BetSize(0.9, 1000), 1e-9)
	assert.InDelta(t, 0.5, k.BetSize(0.9, 0.5), 1e-12)
	assert.Equal(t, 0.0, k.BetSize(0.9, 0))

	small := KellySizer{Payout: 1, MaxFraction: 0.5, MinBet: 1}
	assert.InDelta(t, 0.2, small.Fraction(0.6), 1e-12)
	assert.InDelta(t, 2.0, small.BetSize(0.6, 10), 1e-12)
	assert.Equal(t, 1.0, small.BetSize(0.52, 10), "fraction 0.04 of 10 is below MinBet")
}

func TestRunRejectsBadInput(t *testing.T) {
	b := New(streakOnlyFuser(t), DefaultConfig())

	_, err := b.Run(context.Background(), models.HistoryFromPattern("HL"), -1)
	assert.ErrorIs(t, err, errs.ErrInvalidLookback)
	assert.True(t, errs.IsContractViolation(err))

	_, err = b.Run(context.Background(), nil, 10)
	assert.ErrorIs(t, err, errs.ErrNilHistory)
}

func TestRunShortCircuitsOnFewSamples(t *testing.T) {
	b := New(streakOnlyFuser(t), DefaultConfig())

	for _, h := range []models.History{{}, models.HistoryFromPattern(strings.Repeat("HL", 10))} {
		report, err := b.Run(context.Background(), h, 100)
		require.NoError(t, err)
		assert.Zero(t, report.SampleSize)
		assert.Zero(t, report.Accuracy)
		assert.Empty(t, report.Steps)
		assert.Equal(t, 1000.0, report.InitialBankroll)
		assert.Equal(t, 1000.0, report.FinalBankroll)
	}

	report, err := b.Run(context.Background(), models.HistoryFromPattern(strings.Repeat("HHHHLLLL", 10)), 5)
	require.NoError(t, err)
	assert.Zero(t, report.SampleSize)
}

func TestStreakBreakAloneIsPerfectOnFixedRunLength(t *testing.T) {
	h := models.HistoryFromPattern(strings.Repeat("HHHHLLLL", 25))
	b := New(streakOnlyFuser(t), DefaultConfig())

	report, err := b.Run(context.Background(), h, 150)
	require.NoError(t, err)

	assert.Equal(t, 150, report.SampleSize)
	assert.Equal(t, 150, report.Correct)
	assert.Equal(t, 1.0, report.Accuracy)
	assert.Greater(t, report.ROI, 0.0)
	assert.Equal(t, 0.0, report.MaxDrawdown)
	assert.Equal(t, h[len(h)-1].Index, report.Steps[len(report.Steps)-1].Index)
}

func TestAccuracyRoundTrip(t *testing.T) {
	h := models.HistoryFromPattern(strings.Repeat("HHLHLLLHHLHLHHHLLH", 6))
	engine, err := predictors.NewEngineFromConfig(predictors.DefaultConfig(), 0)
	require.NoError(t, err)
	b := New(ensemble.New(engine, ensemble.DefaultConfig()), DefaultConfig())

	report, err := b.Run(context.Background(), h, 40)
	require.NoError(t, err)
	require.Equal(t, 40, report.SampleSize)

	steps := make([]models.BacktestStep, len(report.Steps))
	copy(steps, report.Steps)
	assert.Equal(t, report.Accuracy, Accuracy(steps))

	correct := 0
	for _, s := range steps {
		if s.Predicted == s.Actual {
			correct++
		}
	}
	assert.Equal(t, report.Correct, correct)
}

func TestLosingStreakDrawdown(t *testing.T) {
	engine := predictors.NewEngine(0, constantPredictor{predicted: models.High})
	cfg := ensemble.DefaultConfig()
	cfg.UseMeta = false
	b := New(ensemble.New(engine, cfg), DefaultConfig())

	h := models.HistoryFromPattern(strings.Repeat("L", 40))
	report, err := b.Run(context.Background(), h, 20)
	require.NoError(t, err)

	// Unanimous 0.9 vote gives confidence 0.99, so every bet is 5% of bankroll.
	want := 1000 * math.Pow(0.95, 20)
	assert.Equal(t, 0.0, report.Accuracy)
	assert.InDelta(t, want, report.FinalBankroll, 1e-6)
	assert.InDelta(t, 1-math.Pow(0.95, 20), report.MaxDrawdown, 1e-9)
	assert.InDelta(t, want/1000-1, report.ROI, 1e-9)
	assert.Equal(t, 0.0, report.Sharpe)
}

func TestRunHonoursCancellation(t *testing.T) {
	b := New(streakOnlyFuser(t), DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Run(ctx, models.HistoryFromPattern(strings.Repeat("HHHHLLLL", 10)), 30)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBankrollCurveASCII(t *testing.T) {
	assert.Equal(t, "No data to display", BankrollCurveASCII(&models.BacktestReport{}, 40, 8))

	h := models.HistoryFromPattern(strings.Repeat("HHHHLLLL", 10))
	report, err := New(streakOnlyFuser(t), DefaultConfig()).Run(context.Background(), h, 40)
	require.NoError(t, err)
	chart := BankrollCurveASCII(report, 40, 8)
	assert.Contains(t, chart, "Bankroll")
	assert.Contains(t, chart, "█")
}
