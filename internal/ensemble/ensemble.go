// Package ensemble fuses sub-predictor votes and the meta-learner into one forecast.
package ensemble

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hilo-forecaster/internal/analysis/stats"
	"hilo-forecaster/internal/meta"
	"hilo-forecaster/internal/models"
	"hilo-forecaster/internal/predictors"
)

// DefaultMinHistory is the shortest history the fuser forecasts on.
const DefaultMinHistory = 12

// unknownSourceWeight is used for voters missing from the weight table.
const unknownSourceWeight = 0.1

// DefaultWeights returns the relative weight of each voter.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		predictors.NameFrequency:   1.0,
		predictors.NameMarkov:      1.2,
		predictors.NameMotifRepeat: 1.1,
		predictors.NameStreakBreak: 1.0,
		predictors.NameARTotal:     0.5,
		predictors.NameMACross:     0.5,
		predictors.NameRSI:         0.5,
		predictors.NameBridge:      1.0,
		meta.Name:                  1.3,
	}
}

// Config holds fuser configuration.
type Config struct {
	MinHistory int
	Weights    map[string]float64
	UseMeta    bool
}

// DefaultConfig returns the default fuser configuration.
func DefaultConfig() Config {
	return Config{
		MinHistory: DefaultMinHistory,
		Weights:    DefaultWeights(),
		UseMeta:    true,
	}
}

func (c Config) weight(source string) float64 {
	if w, ok := c.Weights[source]; ok {
		return w
	}
	return unknownSourceWeight
}

// Evaluation is a forecast together with the meta features it was computed from, so a
// caller can train the learner once the outcome is known.
type Evaluation struct {
	Forecast *models.Forecast
	Features meta.Features
	Votes    []models.Vote
}

// Fuser combines the engine's votes and an optional meta-learner.
type Fuser struct {
	engine  *predictors.Engine
	cfg     Config
	learner func() *meta.OnlineLogistic
	logger  zerolog.Logger
	now     func() time.Time
}

// Option configures a Fuser.
type Option func(*Fuser)

// WithMeta shares one learner across every forecast made by the fuser.
func WithMeta(m *meta.OnlineLogistic) Option {
	return func(f *Fuser) {
		f.learner = func() *meta.OnlineLogistic { return m }
	}
}

// WithMetaFactory gives every forecast a fresh learner from factory.
func WithMetaFactory(factory meta.Factory) Option {
	return func(f *Fuser) {
		f.learner = factory
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Fuser) {
		f.logger = logger
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(f *Fuser) {
		f.now = now
	}
}

// New creates a fuser. Without a meta option the fuser uses a fresh default learner
// per forecast when cfg.UseMeta is set.
func New(engine *predictors.Engine, cfg Config, opts ...Option) *Fuser {
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = DefaultMinHistory
	}
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights()
	}
	f := &Fuser{
		engine: engine,
		cfg:    cfg,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.learner == nil {
		f.learner = meta.NewFactory(meta.DefaultConfig(), 42, meta.FeatureNames(engine.Names()))
	}
	return f
}

// Engine returns the underlying predictor engine.
func (f *Fuser) Engine() *predictors.Engine {
	return f.engine
}

// MinHistory returns the history length below which forecasts fall back.
func (f *Fuser) MinHistory() int {
	return f.cfg.MinHistory
}

// UseMeta reports whether forecasts include the meta-learner vote.
func (f *Fuser) UseMeta() bool {
	return f.cfg.UseMeta
}

// Learner returns the learner the next forecast would use, or nil when meta is disabled.
func (f *Fuser) Learner() *meta.OnlineLogistic {
	if !f.cfg.UseMeta {
		return nil
	}
	return f.learner()
}

// Forecast predicts the outcome following h. Short histories yield the fallback forecast.
func (f *Fuser) Forecast(ctx context.Context, h models.History) (*models.Forecast, error) {
	ev, err := f.Evaluate(ctx, h, f.Learner())
	if err != nil {
		return nil, err
	}
	return ev.Forecast, nil
}

// Evaluate forecasts with an explicit learner, which may be nil. The learner is warmed on
// h the first time it is seen.
func (f *Fuser) Evaluate(ctx context.Context, h models.History, learner *meta.OnlineLogistic) (*Evaluation, error) {
	if len(h) < f.cfg.MinHistory {
		return &Evaluation{Forecast: f.fallback(h)}, nil
	}

	votes, err := f.engine.RunAll(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("running predictors: %w", err)
	}

	var features meta.Features
	if learner != nil {
		if err := learner.WarmUp(ctx, h, meta.EngineFeatures(f.engine), f.cfg.MinHistory); err != nil {
			return nil, fmt.Errorf("warming meta-learner: %w", err)
		}
		features = meta.Build(h, votes)
		votes = append(votes, learner.Vote(features))
	}

	fc := f.fuse(h, votes)
	f.logger.Debug().
		Str("predicted", string(fc.Predicted)).
		Float64("probability", fc.Probability).
		Float64("confidence", fc.Confidence).
		Float64("agreement", fc.Agreement).
		Int("voters", len(fc.SubVotes)).
		Int64("based_on", fc.BasedOnIndex).
		Msg("Forecast fused")

	return &Evaluation{Forecast: fc, Features: features, Votes: votes}, nil
}

func (f *Fuser) fallback(h models.History) *models.Forecast {
	return &models.Forecast{
		ID:           uuid.NewString(),
		Predicted:    h.LastOutcome(),
		Probability:  0.5,
		Confidence:   0.5,
		Reasons:      []models.Reason{models.NewReason(models.ReasonInsufficientData, len(h), f.cfg.MinHistory)},
		SubVotes:     []models.SubVote{},
		Fallback:     true,
		BasedOnIndex: h.LastIndex(),
		CreatedAt:    f.now(),
	}
}

// fuse computes the weighted vote. Voters with a non-positive weight are ignored.
func (f *Fuser) fuse(h models.History, votes []models.Vote) *models.Forecast {
	var massHigh, massLow float64
	subVotes := make([]models.SubVote, 0, len(votes))
	counted := make([]models.Vote, 0, len(votes))

	for _, v := range votes {
		w := f.cfg.weight(v.Source)
		if w <= 0 {
			continue
		}
		mass := w * v.Confidence
		if v.Predicted == models.High {
			massHigh += mass
		} else {
			massLow += mass
		}
		counted = append(counted, v)
		subVotes = append(subVotes, models.SubVote{
			Source:     v.Source,
			Predicted:  v.Predicted,
			Weight:     w,
			Confidence: v.Confidence,
		})
	}

	var predicted models.Outcome
	switch {
	case massHigh > massLow:
		predicted = models.High
	case massLow > massHigh:
		predicted = models.Low
	default:
		predicted = h.LastOutcome().Opposite()
	}

	total := massHigh + massLow
	margin, probability := 0.0, 0.5
	if total > 0 {
		win, lose := massHigh, massLow
		if predicted == models.Low {
			win, lose = massLow, massHigh
		}
		margin = (win - lose) / total
		probability = massHigh / total
	}

	var reasons []models.Reason
	agreeing := 0
	for _, v := range counted {
		if v.Predicted != predicted {
			continue
		}
		agreeing++
		reasons = append(reasons, v.Reasons...)
	}
	agreement := 0.0
	if len(counted) > 0 {
		agreement = float64(agreeing) / float64(len(counted))
	}
	reasons = append(reasons, models.NewReason(models.ReasonAgreementSummary, agreeing, len(counted), predicted))

	confidence := stats.Clamp(0.5+0.6*margin+0.2*(2*agreement-1), 0.5, 0.99)

	return &models.Forecast{
		ID:           uuid.NewString(),
		Predicted:    predicted,
		Probability:  probability,
		Confidence:   confidence,
		Agreement:    agreement,
		Reasons:      reasons,
		SubVotes:     subVotes,
		BasedOnIndex: h.LastIndex(),
		CreatedAt:    f.now(),
	}
}
