// Package risk classifies how much to trust a forecast given the state of the sequence.
package risk

import (
	"math"

	"hilo-forecaster/internal/analysis/stats"
	"hilo-forecaster/internal/models"
)

// Component keys reported in RiskAssessment.Components.
const (
	ComponentConfidence = "confidence"
	ComponentSwitching  = "switching"
	ComponentStreak     = "streak"
	ComponentEntropy    = "entropy"
	ComponentVariance   = "variance"
)

// Config holds the classifier weights and cut points.
type Config struct {
	SwitchWeight   float64
	StreakWeight   float64
	EntropyWeight  float64
	VarianceWeight float64
	// Cuts are the upper bounds of VERY_LOW, LOW, MEDIUM and HIGH.
	Cuts [4]float64
}

// DefaultConfig returns the default classifier configuration.
func DefaultConfig() Config {
	return Config{
		SwitchWeight:   0.25,
		StreakWeight:   0.2,
		EntropyWeight:  0.25,
		VarianceWeight: 0.15,
		Cuts:           [4]float64{0.15, 0.30, 0.45, 0.60},
	}
}

// Classifier maps a forecast confidence and recent history to a risk label.
type Classifier struct {
	cfg Config
}

// NewClassifier creates a classifier.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify scores the risk of acting on a forecast with the given confidence.
// An empty history contributes no penalties.
func (c *Classifier) Classify(confidence float64, h models.History) models.RiskAssessment {
	conf := 1 - stats.Clamp(confidence, 0, 1)
	var switching, streak, entropy, variance float64

	if len(h) > 0 {
		outcomes := stats.Tail(h.Outcomes(), 20)
		totals := stats.Tail(h.Totals(), 20)

		if len(outcomes) >= 2 {
			sw := stats.SwitchRate(outcomes)
			switching = c.cfg.SwitchWeight * math.Max(0, sw-0.6) / 0.4
		}
		if s := stats.TrailingStreak(h.Outcomes()); s >= 5 {
			streak = c.cfg.StreakWeight * float64(min(s, 10)) / 10
		}
		entropy = c.cfg.EntropyWeight * math.Max(0, stats.Entropy(outcomes)-0.9) / 0.1
		variance = c.cfg.VarianceWeight * math.Min(1, stats.Variance(totals)/12)
	}

	// Terms are summed in a fixed order.
	score := conf + switching + streak + entropy + variance
	return models.RiskAssessment{
		Label: c.label(score),
		Score: score,
		Components: map[string]float64{
			ComponentConfidence: conf,
			ComponentSwitching:  switching,
			ComponentStreak:     streak,
			ComponentEntropy:    entropy,
			ComponentVariance:   variance,
		},
	}
}

func (c *Classifier) label(score float64) models.RiskLabel {
	switch {
	case score < c.cfg.Cuts[0]:
		return models.RiskVeryLow
	case score < c.cfg.Cuts[1]:
		return models.RiskLow
	case score < c.cfg.Cuts[2]:
		return models.RiskMedium
	case score < c.cfg.Cuts[3]:
		return models.RiskHigh
	default:
		return models.RiskVeryHigh
	}
}
