package predictors

import (
	"math"

	"hilo-forecaster/internal/analysis/indicators"
	"hilo-forecaster/internal/models"
)

// DefaultARCoefficients weight the deviations of the last four totals, most recent first.
var DefaultARCoefficients = []float64{0.6, 0.3, 0.15, 0.05}

// AutoregressiveTotal extrapolates the next total from recent deviations around the midpoint.
type AutoregressiveTotal struct {
	BasePredictor
	coefficients []float64
}

// NewAutoregressiveTotal creates the AR predictor. Empty coefficients select the defaults.
func NewAutoregressiveTotal(coefficients []float64) *AutoregressiveTotal {
	if len(coefficients) == 0 {
		coefficients = DefaultARCoefficients
	}
	return &AutoregressiveTotal{
		BasePredictor: NewBasePredictor(NameARTotal, len(coefficients)),
		coefficients:  coefficients,
	}
}

// Predict implements Predictor.
func (a *AutoregressiveTotal) Predict(h models.History) models.Vote {
	if a.Insufficient(h) {
		return a.Fallback(h)
	}

	totals := h.Totals()
	n := len(totals)
	estimate := models.Midpoint
	for i, c := range a.coefficients {
		estimate += c * (totals[n-1-i] - models.Midpoint)
	}

	dev := estimate - models.Midpoint
	predicted := models.Low
	if dev > 0 {
		predicted = models.High
	}
	return a.CreateVote(predicted, 0.5+math.Min(0.4, math.Abs(dev)/10),
		models.NewReason(models.ReasonAutoregressive, estimate))
}

// MovingAverageCrossover compares a short and a long moving average of the totals.
type MovingAverageCrossover struct {
	BasePredictor
	short *indicators.SMA
	long  *indicators.SMA
	tie   *indicators.EMA
}

// NewMovingAverageCrossover creates the SMA(5)/SMA(20) crossover predictor.
func NewMovingAverageCrossover() *MovingAverageCrossover {
	return &MovingAverageCrossover{
		BasePredictor: NewBasePredictor(NameMACross, 20),
		short:         indicators.NewSMA(5),
		long:          indicators.NewSMA(20),
		tie:           indicators.NewEMA(10),
	}
}

// Predict implements Predictor.
func (m *MovingAverageCrossover) Predict(h models.History) models.Vote {
	if m.Insufficient(h) {
		return m.Fallback(h)
	}

	totals := h.Totals()
	shortVals, err := m.short.Calculate(totals)
	if err != nil {
		return m.Fallback(h)
	}
	longVals, err := m.long.Calculate(totals)
	if err != nil {
		return m.Fallback(h)
	}
	short := indicators.Last(shortVals, models.Midpoint)
	long := indicators.Last(longVals, models.Midpoint)

	diff := short - long
	if diff == 0 {
		if emaVals, err := m.tie.Calculate(totals); err == nil {
			diff = indicators.Last(emaVals, models.Midpoint) - models.Midpoint
		}
	}

	predicted := models.Low
	if diff > 0 {
		predicted = models.High
	}
	return m.CreateVote(predicted, 0.5+math.Min(0.3, math.Abs(diff)/5),
		models.NewReason(models.ReasonMovingAverageCross, short, long))
}

// RSI band edges.
const (
	rsiOverbought = 70.0
	rsiOversold   = 30.0
)

// RSIOscillator treats an extreme RSI of the totals as a mean-reversion signal.
type RSIOscillator struct {
	BasePredictor
	rsi *indicators.RSI
}

// NewRSIOscillator creates the RSI predictor with the given period (14 when <= 0).
func NewRSIOscillator(period int) *RSIOscillator {
	if period <= 0 {
		period = 14
	}
	return &RSIOscillator{
		BasePredictor: NewBasePredictor(NameRSI, period+1),
		rsi:           indicators.NewRSI(period),
	}
}

// Predict implements Predictor.
func (r *RSIOscillator) Predict(h models.History) models.Vote {
	if r.Insufficient(h) {
		return r.Fallback(h)
	}

	values, err := r.rsi.Calculate(h.Totals())
	if err != nil {
		return r.Fallback(h)
	}
	rsi := indicators.Last(values, 50)

	switch {
	case rsi > rsiOverbought:
		return r.CreateVote(models.Low, 0.5+math.Min(0.35, (rsi-rsiOverbought)/60),
			models.NewReason(models.ReasonRSIOverbought, rsi))
	case rsi < rsiOversold:
		return r.CreateVote(models.High, 0.5+math.Min(0.35, (rsiOversold-rsi)/60),
			models.NewReason(models.ReasonRSIOversold, rsi))
	default:
		return r.CreateVote(h.LastOutcome(), 0.5, models.NewReason(models.ReasonRSINeutral, rsi))
	}
}
