package models

// ReasonCode tags a structured rationale record. Text is produced by the rationale
// package at the presentation boundary.
type ReasonCode string

const (
	ReasonInsufficientData   ReasonCode = "insufficient_data"
	ReasonWindowMajority     ReasonCode = "window_majority"
	ReasonAverageTotal       ReasonCode = "average_total"
	ReasonTotalTrend         ReasonCode = "total_trend"
	ReasonParity             ReasonCode = "parity"
	ReasonStreakReversal     ReasonCode = "streak_reversal"
	ReasonStreakContinuation ReasonCode = "streak_continuation"
	ReasonStreakCertainBreak ReasonCode = "streak_certain_break"
	ReasonAlternationMotif   ReasonCode = "alternation_motif"
	ReasonDoublePairMotif    ReasonCode = "double_pair_motif"
	ReasonAverageTiebreak    ReasonCode = "average_tiebreak"
	ReasonAlternateDefault   ReasonCode = "alternate_default"
	ReasonMarkovTransition   ReasonCode = "markov_transition"
	ReasonMarkovBaseRate     ReasonCode = "markov_base_rate"
	ReasonMotifRepeat        ReasonCode = "motif_repeat"
	ReasonRecencyVote        ReasonCode = "recency_vote"
	ReasonStreakBreak        ReasonCode = "streak_break"
	ReasonStreakHold         ReasonCode = "streak_hold"
	ReasonLowEntropy         ReasonCode = "low_entropy"
	ReasonAutoregressive     ReasonCode = "autoregressive"
	ReasonMovingAverageCross ReasonCode = "moving_average_cross"
	ReasonRSIOverbought      ReasonCode = "rsi_overbought"
	ReasonRSIOversold        ReasonCode = "rsi_oversold"
	ReasonRSINeutral         ReasonCode = "rsi_neutral"
	ReasonBridge             ReasonCode = "bridge"
	ReasonNoBridge           ReasonCode = "no_bridge"
	ReasonMetaProbability    ReasonCode = "meta_probability"
	ReasonAgreementSummary   ReasonCode = "agreement_summary"
)

// Reason is a structured rationale record: a code plus its ordered parameters.
type Reason struct {
	Code ReasonCode `json:"code"`
	Args []any      `json:"args,omitempty"`
}

// NewReason builds a Reason.
func NewReason(code ReasonCode, args ...any) Reason {
	return Reason{Code: code, Args: args}
}

// Vote is the output of a single sub-predictor.
type Vote struct {
	Source     string   `json:"source"`
	Predicted  Outcome  `json:"predicted"`
	Confidence float64  `json:"confidence"`
	Reasons    []Reason `json:"reasons"`
}

// Signed returns the confidence signed by the predicted symbol.
func (v Vote) Signed() float64 {
	return v.Predicted.Sign() * v.Confidence
}
