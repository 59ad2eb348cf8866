// Package predictors provides the sub-predictors that vote on the next outcome and the
// engine that evaluates them in parallel.
package predictors

import (
	"hilo-forecaster/internal/models"
)

// Predictor names as they appear in votes, weights and configuration.
const (
	NameFrequency   = "frequency"
	NameMarkov      = "markov"
	NameMotifRepeat = "motif_repeat"
	NameStreakBreak = "streak_break"
	NameARTotal     = "ar_total"
	NameMACross     = "ma_cross"
	NameRSI         = "rsi"
	NameBridge      = "bridge"
)

// AllNames lists every predictor in catalogue order.
var AllNames = []string{
	NameFrequency,
	NameMarkov,
	NameMotifRepeat,
	NameStreakBreak,
	NameARTotal,
	NameMACross,
	NameRSI,
	NameBridge,
}

// Predictor defines the interface for sub-predictors.
type Predictor interface {
	// Name returns the unique name of the predictor.
	Name() string
	// MinHistory is the number of rounds below which Predict returns the fallback vote.
	MinHistory() int
	// Predict votes on the outcome following the last round of h. It must not mutate h.
	Predict(h models.History) models.Vote
}

// BasePredictor provides common functionality for all predictors.
type BasePredictor struct {
	name       string
	minHistory int
}

// NewBasePredictor creates a new base predictor.
func NewBasePredictor(name string, minHistory int) BasePredictor {
	if minHistory < 0 {
		minHistory = 0
	}
	return BasePredictor{
		name:       name,
		minHistory: minHistory,
	}
}

// Name returns the predictor's name.
func (b *BasePredictor) Name() string {
	return b.name
}

// MinHistory returns the minimum history length.
func (b *BasePredictor) MinHistory() int {
	return b.minHistory
}

// Insufficient reports whether h is too short for the full routine.
func (b *BasePredictor) Insufficient(h models.History) bool {
	return len(h) < b.minHistory || len(h) == 0
}

// Fallback returns the neutral vote: repeat the last outcome at confidence 0.5.
func (b *BasePredictor) Fallback(h models.History) models.Vote {
	return b.CreateVote(h.LastOutcome(), 0.5,
		models.NewReason(models.ReasonInsufficientData, len(h), b.minHistory))
}

// CreateVote creates a vote with the source populated.
func (b *BasePredictor) CreateVote(predicted models.Outcome, confidence float64, reasons ...models.Reason) models.Vote {
	if reasons == nil {
		reasons = []models.Reason{}
	}
	return models.Vote{
		Source:     b.name,
		Predicted:  predicted,
		Confidence: confidence,
		Reasons:    reasons,
	}
}
