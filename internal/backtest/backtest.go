// Package backtest provides walk-forward evaluation of the ensemble with Kelly-sized bets.
package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hilo-forecaster/internal/analysis/stats"
	"hilo-forecaster/internal/ensemble"
	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/meta"
	"hilo-forecaster/internal/models"
)

// Config holds backtest configuration.
type Config struct {
	InitialBankroll float64
	MinSamples      int
	Kelly           KellySizer
}

// DefaultConfig returns the default backtest configuration.
func DefaultConfig() Config {
	return Config{
		InitialBankroll: 1000,
		MinSamples:      10,
		Kelly:           DefaultKelly(),
	}
}

// Backtester replays history through the fuser one cutoff at a time.
type Backtester struct {
	fuser      *ensemble.Fuser
	cfg        Config
	newLearner meta.Factory
	logger     zerolog.Logger
}

// Option configures a Backtester.
type Option func(*Backtester)

// WithMetaFactory sets the factory for the learner each run trains from scratch.
func WithMetaFactory(factory meta.Factory) Option {
	return func(b *Backtester) {
		b.newLearner = factory
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Backtester) {
		b.logger = logger
	}
}

// New creates a backtester.
func New(fuser *ensemble.Fuser, cfg Config, opts ...Option) *Backtester {
	if cfg.InitialBankroll <= 0 {
		cfg.InitialBankroll = DefaultConfig().InitialBankroll
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultConfig().MinSamples
	}
	if cfg.Kelly.Payout <= 0 {
		cfg.Kelly = DefaultKelly()
	}
	b := &Backtester{
		fuser:  fuser,
		cfg:    cfg,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.newLearner == nil {
		b.newLearner = meta.NewFactory(meta.DefaultConfig(), 42, meta.FeatureNames(fuser.Engine().Names()))
	}
	return b
}

// backtestState holds the state during backtesting.
type backtestState struct {
	bankroll    float64
	peak        float64
	maxDrawdown float64
	correct     int
	returns     []float64
}

// Run evaluates the last lookback rounds of h. Each step forecasts on the prefix ending at
// the cutoff and scores against the next round. The learner is trained only on rounds
// that precede the step being scored.
func (b *Backtester) Run(ctx context.Context, h models.History, lookback int) (*models.BacktestReport, error) {
	if lookback < 0 {
		return nil, fmt.Errorf("%w: %d", errs.ErrInvalidLookback, lookback)
	}
	if h == nil {
		return nil, errs.ErrNilHistory
	}

	report := &models.BacktestReport{
		ID:              uuid.NewString(),
		Lookback:        lookback,
		InitialBankroll: b.cfg.InitialBankroll,
		FinalBankroll:   b.cfg.InitialBankroll,
		Steps:           []models.BacktestStep{},
		CreatedAt:       time.Now(),
	}

	samples := min(lookback, len(h)-1-b.fuser.MinHistory())
	if samples < b.cfg.MinSamples {
		b.logger.Debug().Int("samples", samples).Int("min_samples", b.cfg.MinSamples).Msg("Backtest skipped, not enough samples")
		return report, nil
	}

	var learner *meta.OnlineLogistic
	if b.fuser.UseMeta() {
		learner = b.newLearner()
	}

	state := &backtestState{
		bankroll: b.cfg.InitialBankroll,
		peak:     b.cfg.InitialBankroll,
		returns:  make([]float64, 0, samples),
	}
	report.Steps = make([]models.BacktestStep, 0, samples)

	for cutoff := len(h) - 1 - samples; cutoff <= len(h)-2; cutoff++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ev, err := b.fuser.Evaluate(ctx, h.Prefix(cutoff), learner)
		if err != nil {
			return nil, fmt.Errorf("forecasting at cutoff %d: %w", cutoff, err)
		}
		fc := ev.Forecast
		actual := h[cutoff+1].Outcome

		before := state.bankroll
		bet := b.cfg.Kelly.BetSize(fc.Confidence, before)
		if fc.Predicted == actual {
			state.bankroll += bet * b.cfg.Kelly.Payout
			state.correct++
		} else {
			state.bankroll -= bet
		}
		if before > 0 {
			state.returns = append(state.returns, (state.bankroll-before)/before)
		}

		if state.bankroll > state.peak {
			state.peak = state.bankroll
		}
		if state.peak > 0 {
			if dd := (state.peak - state.bankroll) / state.peak; dd > state.maxDrawdown {
				state.maxDrawdown = dd
			}
		}

		report.Steps = append(report.Steps, models.BacktestStep{
			Index:         h[cutoff+1].Index,
			Predicted:     fc.Predicted,
			Actual:        actual,
			Confidence:    fc.Confidence,
			BetSize:       bet,
			BankrollAfter: state.bankroll,
		})

		if learner != nil && ev.Features != nil {
			learner.Update(ev.Features, actual)
		}
	}

	b.calculateMetrics(report, state)

	b.logger.Debug().
		Int("samples", report.SampleSize).
		Float64("accuracy", report.Accuracy).
		Float64("roi", report.ROI).
		Float64("max_drawdown", report.MaxDrawdown).
		Msg("Backtest complete")

	return report, nil
}

func (b *Backtester) calculateMetrics(report *models.BacktestReport, state *backtestState) {
	report.SampleSize = len(report.Steps)
	report.Correct = state.correct
	if report.SampleSize > 0 {
		report.Accuracy = float64(state.correct) / float64(report.SampleSize)
	}
	report.FinalBankroll = state.bankroll
	report.ROI = (state.bankroll - b.cfg.InitialBankroll) / b.cfg.InitialBankroll
	report.MaxDrawdown = state.maxDrawdown
	report.Sharpe = calculateSharpeRatio(state.returns)
}

// sharpeMinStdDev treats rounding noise on constant returns as zero deviation.
const sharpeMinStdDev = 1e-12

// calculateSharpeRatio is the mean step return over its sample standard deviation,
// 0 when the deviation is undefined or zero.
func calculateSharpeRatio(returns []float64) float64 {
	sd := stats.StdDev(returns)
	if len(returns) < 2 || sd < sharpeMinStdDev {
		return 0
	}
	return stats.Average(returns) / sd
}

// Accuracy recomputes correct/total from a step log; 0 for an empty log.
func Accuracy(steps []models.BacktestStep) float64 {
	if len(steps) == 0 {
		return 0
	}
	var correct int
	for _, s := range steps {
		if s.Correct() {
			correct++
		}
	}
	return float64(correct) / float64(len(steps))
}

// BankrollCurveASCII renders the bankroll after each step as a small text chart.
func BankrollCurveASCII(report *models.BacktestReport, width, height int) string {
	if report == nil || len(report.Steps) == 0 || width <= 0 || height <= 1 {
		return "No data to display"
	}

	lo, hi := report.InitialBankroll, report.InitialBankroll
	for _, s := range report.Steps {
		lo = min(lo, s.BankrollAfter)
		hi = max(hi, s.BankrollAfter)
	}

	// Add padding
	span := hi - lo
	if span == 0 {
		span = 1
	}
	lo -= span * 0.05
	hi += span * 0.05
	span = hi - lo

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}

	// Sample points to fit width
	step := len(report.Steps) / width
	if step == 0 {
		step = 1
	}
	for x := 0; x < width && x*step < len(report.Steps); x++ {
		v := report.Steps[x*step].BankrollAfter
		y := int((v - lo) / span * float64(height-1))
		if y >= 0 && y < height {
			grid[height-1-y][x] = '█'
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Bankroll (%.0f - %.0f)\n", lo, hi))
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	for _, row := range grid {
		sb.WriteRune('│')
		sb.WriteString(string(row))
		sb.WriteRune('│')
		sb.WriteRune('\n')
	}
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	return sb.String()
}
