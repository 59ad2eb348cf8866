package models

import "time"

// BacktestStep records one walk-forward prediction.
type BacktestStep struct {
	Index         int64   `json:"index"`
	Predicted     Outcome `json:"predicted"`
	Actual        Outcome `json:"actual"`
	Confidence    float64 `json:"confidence"`
	BetSize       float64 `json:"bet_size"`
	BankrollAfter float64 `json:"bankroll_after"`
}

// Correct reports whether the prediction matched.
func (s BacktestStep) Correct() bool {
	return s.Predicted == s.Actual
}

// BacktestReport summarizes a walk-forward evaluation.
type BacktestReport struct {
	ID              string         `json:"id,omitempty"`
	Lookback        int            `json:"lookback"`
	SampleSize      int            `json:"sample_size"`
	Correct         int            `json:"correct"`
	Accuracy        float64        `json:"accuracy"`
	InitialBankroll float64        `json:"initial_bankroll"`
	FinalBankroll   float64        `json:"final_bankroll"`
	ROI             float64        `json:"roi"`
	MaxDrawdown     float64        `json:"max_drawdown"`
	Sharpe          float64        `json:"sharpe"`
	Steps           []BacktestStep `json:"steps"`
	CreatedAt       time.Time      `json:"created_at"`
}

// RiskLabel is a discrete risk level.
type RiskLabel string

const (
	RiskVeryLow  RiskLabel = "VERY_LOW"
	RiskLow      RiskLabel = "LOW"
	RiskMedium   RiskLabel = "MEDIUM"
	RiskHigh     RiskLabel = "HIGH"
	RiskVeryHigh RiskLabel = "VERY_HIGH"
)

// RiskAssessment is a risk label with the score and the terms that produced it.
type RiskAssessment struct {
	Label      RiskLabel          `json:"label"`
	Score      float64            `json:"score"`
	Components map[string]float64 `json:"components"`
}
