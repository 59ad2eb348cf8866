// Package feed fetches round history from upstream sources.
package feed

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/logging"
	"hilo-forecaster/internal/metrics"
	"hilo-forecaster/internal/models"
	"hilo-forecaster/internal/store"
)

// HistoryProvider supplies an ordered, validated history.
type HistoryProvider interface {
	Fetch(ctx context.Context) (models.History, error)
	Name() string
}

// FileProvider reads upstream-format JSON from disk.
type FileProvider struct {
	path       string
	normalizer *Normalizer
	logger     zerolog.Logger
}

// NewFileProvider creates a provider reading path.
func NewFileProvider(path string, logger zerolog.Logger) *FileProvider {
	return &FileProvider{path: path, normalizer: NewNormalizer(), logger: logger}
}

// Name implements HistoryProvider.
func (p *FileProvider) Name() string { return "file" }

// Fetch implements HistoryProvider.
func (p *FileProvider) Fetch(ctx context.Context) (models.History, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := os.ReadFile(p.path)
	if err != nil {
		ferr := errs.NewFeedError(p.Name(), 0, "reading "+p.path, err)
		logging.LogFetch(p.logger, p.Name(), 0, 0, time.Since(start), ferr)
		return nil, ferr
	}

	h, report, err := p.normalizer.Parse(body)
	if err != nil {
		ferr := errs.NewFeedError(p.Name(), 0, "parsing "+p.path, err)
		logging.LogFetch(p.logger, p.Name(), 0, 0, time.Since(start), ferr)
		return nil, ferr
	}

	logging.LogFetch(p.logger, p.Name(), report.Accepted, report.Dropped, time.Since(start), nil)
	return h, nil
}

// StoreProvider reads the most recent rounds from the data store.
type StoreProvider struct {
	store store.DataStore
	limit int
}

// NewStoreProvider creates a provider returning up to limit stored rounds.
func NewStoreProvider(s store.DataStore, limit int) *StoreProvider {
	return &StoreProvider{store: s, limit: limit}
}

// Name implements HistoryProvider.
func (p *StoreProvider) Name() string { return "store" }

// Fetch implements HistoryProvider.
func (p *StoreProvider) Fetch(ctx context.Context) (models.History, error) {
	h, err := p.store.GetRounds(ctx, p.limit)
	if err != nil {
		return nil, errs.Wrap(err, "reading stored rounds")
	}
	return h, nil
}

// Instrumented records fetch outcomes of the wrapped provider.
type Instrumented struct {
	HistoryProvider
	recorder *metrics.Recorder
}

// WithMetrics wraps p so every Fetch is counted by recorder.
func WithMetrics(p HistoryProvider, recorder *metrics.Recorder) HistoryProvider {
	if recorder == nil {
		return p
	}
	return &Instrumented{HistoryProvider: p, recorder: recorder}
}

// Fetch implements HistoryProvider.
func (i *Instrumented) Fetch(ctx context.Context) (models.History, error) {
	start := time.Now()
	h, err := i.HistoryProvider.Fetch(ctx)
	i.recorder.RecordFetch(i.Name(), err)
	i.recorder.RecordLatency("fetch_"+i.Name(), time.Since(start).Seconds())
	return h, err
}
