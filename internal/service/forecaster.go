// Package service wires the predictor engine, fuser, backtester and risk classifier into
// one facade shared by the CLI and the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hilo-forecaster/internal/backtest"
	"hilo-forecaster/internal/cache"
	"hilo-forecaster/internal/config"
	"hilo-forecaster/internal/ensemble"
	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/logging"
	"hilo-forecaster/internal/meta"
	"hilo-forecaster/internal/metrics"
	"hilo-forecaster/internal/models"
	"hilo-forecaster/internal/predictors"
	"hilo-forecaster/internal/risk"
	"hilo-forecaster/internal/store"
)

// Forecaster is the entry point for forecasting, backtesting and risk scoring.
type Forecaster struct {
	cfg        *config.Config
	fuser      *ensemble.Fuser
	backtester *backtest.Backtester
	classifier *risk.Classifier

	store    store.DataStore
	cache    cache.Cache
	cacheTTL time.Duration
	recorder *metrics.Recorder
	logger   zerolog.Logger

	// Set only when one learner lives for the whole process.
	learner     *meta.OnlineLogistic
	features    meta.FeatureFunc
	mu          sync.Mutex
	lastTrained int64
}

// Option configures a Forecaster.
type Option func(*Forecaster)

// WithStore persists forecasts and backtest reports.
func WithStore(s store.DataStore) Option {
	return func(f *Forecaster) {
		f.store = s
	}
}

// WithCache caches forecasts by profile and last round index.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(f *Forecaster) {
		f.cache = c
		f.cacheTTL = ttl
	}
}

// WithRecorder records Prometheus metrics.
func WithRecorder(r *metrics.Recorder) Option {
	return func(f *Forecaster) {
		f.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Forecaster) {
		f.logger = logger
	}
}

// New builds a Forecaster from cfg.
func New(cfg *config.Config, opts ...Option) (*Forecaster, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	f := &Forecaster{
		cfg:         cfg,
		cache:       cache.Noop{},
		logger:      zerolog.Nop(),
		lastTrained: -1,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logging.WithComponent(f.logger, "forecaster")

	engine, err := predictors.NewEngineFromConfig(cfg.PredictorSettings(), cfg.Engine.Workers)
	if err != nil {
		return nil, fmt.Errorf("building predictor engine: %w", err)
	}

	factory := meta.NewFactory(cfg.MetaSettings(), cfg.Engine.Seed, meta.FeatureNames(engine.Names()))
	fuserOpts := []ensemble.Option{ensemble.WithLogger(f.logger)}
	if cfg.IsProcessMeta() {
		f.learner = factory()
		f.features = meta.EngineFeatures(engine)
		fuserOpts = append(fuserOpts, ensemble.WithMeta(f.learner))
	} else {
		fuserOpts = append(fuserOpts, ensemble.WithMetaFactory(factory))
	}

	f.fuser = ensemble.New(engine, cfg.EnsembleSettings(), fuserOpts...)
	f.backtester = backtest.New(f.fuser, cfg.BacktestSettings(),
		backtest.WithMetaFactory(factory),
		backtest.WithLogger(f.logger),
	)
	f.classifier = risk.NewClassifier(cfg.RiskSettings())

	return f, nil
}

// Profile returns the predictor profile name used in cache keys.
func (f *Forecaster) Profile() string {
	return string(f.cfg.PredictorSettings().Profile)
}

// Predictors returns the active voter names.
func (f *Forecaster) Predictors() []string {
	return f.fuser.Engine().Names()
}

// ForecastNext predicts the outcome of the round following h.
func (f *Forecaster) ForecastNext(ctx context.Context, h models.History) (*models.Forecast, error) {
	if h == nil {
		return nil, errs.ErrNilHistory
	}
	start := time.Now()

	if f.learner != nil {
		if err := f.learnNewRounds(ctx, h); err != nil {
			return nil, err
		}
	}

	key := cache.ForecastKey(f.Profile(), h.LastIndex())
	if len(h) > 0 {
		cached, err := cache.GetJSON[models.Forecast](ctx, f.cache, key)
		switch {
		case err == nil:
			f.recordCache(true)
			return cached, nil
		case errors.Is(err, cache.ErrCacheMiss):
			f.recordCache(false)
		default:
			f.logger.Warn().Err(err).Str("key", key).Msg("Forecast cache read failed")
		}
	}

	fc, err := f.fuser.Forecast(ctx, h)
	if err != nil {
		f.recordError("forecast")
		return nil, err
	}

	if len(h) > 0 {
		if err := cache.SetJSON(ctx, f.cache, key, fc, f.cacheTTL); err != nil {
			f.logger.Warn().Err(err).Str("key", key).Msg("Forecast cache write failed")
		}
	}
	if f.store != nil && !fc.Fallback {
		if err := f.store.SaveForecast(ctx, fc); err != nil {
			f.logger.Warn().Err(err).Str("id", fc.ID).Msg("Failed to save forecast")
		}
	}
	if f.recorder != nil {
		f.recorder.RecordForecast(fc)
		f.recorder.RecordLatency("forecast", time.Since(start).Seconds())
	}
	logging.LogForecast(f.logger, fc)

	return fc, nil
}

// learnNewRounds trains the process learner on rounds it has not seen yet. The first
// history is left to the fuser's warm-up replay.
func (f *Forecaster) learnNewRounds(ctx context.Context, h models.History) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.learner.Warmed() || f.lastTrained < 0 {
		f.lastTrained = h.LastIndex()
		return nil
	}

	minHistory := f.fuser.MinHistory()
	var trained int
	for p := 1; p < len(h); p++ {
		if h[p].Index <= f.lastTrained || p-1 < minHistory {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		feats, err := f.features(ctx, h.Prefix(p-1))
		if err != nil {
			return fmt.Errorf("extracting meta features: %w", err)
		}
		f.learner.Update(feats, h[p].Outcome)
		trained++
	}
	if last := h.LastIndex(); last > f.lastTrained {
		f.lastTrained = last
	}
	if trained > 0 {
		f.logger.Debug().Int("rounds", trained).Int64("last_index", f.lastTrained).Msg("Meta-learner updated")
	}
	return nil
}

// MetaState returns the shared learner's parameters, or nil when each request uses its
// own learner.
func (f *Forecaster) MetaState() *models.MetaState {
	if f.learner == nil {
		return nil
	}
	s := f.learner.Snapshot()
	return &s
}

// RunBacktest walks forward over the last lookback rounds of h.
func (f *Forecaster) RunBacktest(ctx context.Context, h models.History, lookback int) (*models.BacktestReport, error) {
	start := time.Now()

	report, err := f.backtester.Run(ctx, h, lookback)
	if err != nil {
		f.recordError("backtest")
		return nil, err
	}

	if f.store != nil && report.SampleSize > 0 {
		if err := f.store.SaveBacktest(ctx, report); err != nil {
			f.logger.Warn().Err(err).Str("id", report.ID).Msg("Failed to save backtest report")
		}
	}
	if f.recorder != nil {
		f.recorder.RecordBacktest(report)
		f.recorder.RecordLatency("backtest", time.Since(start).Seconds())
	}
	logging.LogBacktest(f.logger, report)

	return report, nil
}

// ClassifyRisk scores the risk of acting on a forecast with the given confidence.
func (f *Forecaster) ClassifyRisk(confidence float64, h models.History) models.RiskAssessment {
	return f.classifier.Classify(confidence, h)
}

// DetectDominantMotif finds the dominant bridge in the trailing window. A non-positive
// window uses the configured bridge window.
func (f *Forecaster) DetectDominantMotif(h models.History, window int) models.MotifDetection {
	if window <= 0 {
		window = f.cfg.Engine.BridgeWindow
	}
	return predictors.DetectDominantMotif(h, window)
}

// Stats returns the live hit rate of stored forecasts.
func (f *Forecaster) Stats(ctx context.Context, dateRange store.DateRange) (*models.ForecastStats, error) {
	if f.store == nil {
		return nil, fmt.Errorf("%w: forecast store is disabled", errs.ErrDataNotFound)
	}
	return f.store.ForecastStats(ctx, dateRange)
}

// Backtests returns the most recent stored backtest reports.
func (f *Forecaster) Backtests(ctx context.Context, limit int) ([]models.BacktestReport, error) {
	if f.store == nil {
		return nil, fmt.Errorf("%w: forecast store is disabled", errs.ErrDataNotFound)
	}
	return f.store.GetBacktests(ctx, limit)
}

func (f *Forecaster) recordCache(hit bool) {
	if f.recorder != nil {
		f.recorder.RecordCache(hit)
	}
}

func (f *Forecaster) recordError(kind string) {
	if f.recorder != nil {
		f.recorder.RecordError(kind)
	}
}
