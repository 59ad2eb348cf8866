package models

import "time"

// SubVote is a voter's contribution as weighed by the ensemble.
type SubVote struct {
	Source     string  `json:"source"`
	Predicted  Outcome `json:"predicted"`
	Weight     float64 `json:"weight"`
	Confidence float64 `json:"confidence"`
}

// Forecast is the ensemble's prediction of the next outcome.
type Forecast struct {
	ID           string    `json:"id"`
	Predicted    Outcome   `json:"predicted"`
	Probability  float64   `json:"probability"` // P(High)
	Confidence   float64   `json:"confidence"`
	Agreement    float64   `json:"agreement"`
	Reasons      []Reason  `json:"reasons"`
	SubVotes     []SubVote `json:"sub_votes"`
	Fallback     bool      `json:"fallback"`
	BasedOnIndex int64     `json:"based_on_index"`
	CreatedAt    time.Time `json:"created_at"`
}

// ForecastOutcome represents the resolution state of a stored forecast.
type ForecastOutcome string

const (
	ForecastPending ForecastOutcome = "PENDING"
	ForecastHit     ForecastOutcome = "HIT"
	ForecastMiss    ForecastOutcome = "MISS"
)

// ForecastRecord is a persisted forecast together with its resolution.
type ForecastRecord struct {
	Forecast
	TargetIndex int64           `json:"target_index"`
	Actual      Outcome         `json:"actual,omitempty"`
	Resolution  ForecastOutcome `json:"resolution"`
}

// ForecastStats summarizes live forecast performance.
type ForecastStats struct {
	Total         int                    `json:"total"`
	Resolved      int                    `json:"resolved"`
	Hits          int                    `json:"hits"`
	HitRate       float64                `json:"hit_rate"`
	AvgConfidence float64                `json:"avg_confidence"`
	BySource      map[string]*SourceStat `json:"by_source"`
}

// SourceStat tracks how often one voter agreed with the realized outcome.
type SourceStat struct {
	Name          string  `json:"name"`
	TotalCalls    int     `json:"total_calls"`
	CorrectCalls  int     `json:"correct_calls"`
	Accuracy      float64 `json:"accuracy"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// MetaState is a snapshot of the meta-learner's parameters.
type MetaState struct {
	Weights map[string]float64 `json:"weights"`
	Bias    float64            `json:"bias"`
	Warmed  bool               `json:"warmed"`
	Updates int                `json:"updates"`
}

// MotifDetection is the result of matching the trailing window against named bridges.
type MotifDetection struct {
	MotifName  string   `json:"motif_name"`
	Predicted  Outcome  `json:"predicted"`
	Confidence float64  `json:"confidence"`
	Count      int      `json:"count"`
	Reasons    []Reason `json:"reasons"`
}
