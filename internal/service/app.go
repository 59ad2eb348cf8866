package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"hilo-forecaster/internal/cache"
	"hilo-forecaster/internal/config"
	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/feed"
	"hilo-forecaster/internal/health"
	"hilo-forecaster/internal/metrics"
	"hilo-forecaster/internal/models"
	"hilo-forecaster/internal/store"
	"hilo-forecaster/internal/stream"
)

// memoryCacheEntries bounds the in-process forecast cache.
const memoryCacheEntries = 1024

const liveForecastTimeout = 10 * time.Second

// App holds every long-lived dependency built from the configuration.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Registry   *prometheus.Registry
	Recorder   *metrics.Recorder
	Store      store.DataStore
	Cache      cache.Cache
	Provider   feed.HistoryProvider
	Sync       *store.SyncManager
	Forecaster *Forecaster
	Health     *health.Monitor
	Hub        *stream.Hub
}

// Bootstrap builds the application graph from cfg.
func Bootstrap(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Hub:      stream.NewHub(),
	}
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Recorder = metrics.New(app.Registry)

	if cfg.Store.Enabled {
		s, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, errs.Wrapf(err, "opening store %s", cfg.Store.Path)
		}
		app.Store = s
	}

	c, err := newCache(ctx, cfg.Cache)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Cache = c

	provider, err := newProvider(cfg, app.Store, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Provider = feed.WithMetrics(provider, app.Recorder)

	if app.Store != nil && cfg.Feed.Source != "store" {
		app.Sync = store.NewSyncManager(app.Store, app.Provider, store.DefaultSyncConfig(), logger)
	}

	opts := []Option{
		WithCache(app.Cache, cfg.Cache.TTL),
		WithRecorder(app.Recorder),
		WithLogger(logger),
	}
	if app.Store != nil {
		opts = append(opts, WithStore(app.Store))
	}
	app.Forecaster, err = New(cfg, opts...)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Health = app.newHealthMonitor(provider)
	return app, nil
}

func (a *App) newHealthMonitor(provider feed.HistoryProvider) *health.Monitor {
	m := health.NewMonitor(2 * time.Second)
	if a.Store != nil {
		m.Register("store", health.PingCheck(func(ctx context.Context) error {
			_, err := a.Store.LatestIndex(ctx)
			return err
		}, 500*time.Millisecond))
	}
	if _, ok := a.Cache.(cache.Noop); !ok {
		m.Register("cache", health.PingCheck(func(ctx context.Context) error {
			return a.Cache.Set(ctx, "healthz", []byte("ok"), time.Second)
		}, 200*time.Millisecond))
	}
	if hp, ok := provider.(*feed.HTTPProvider); ok {
		m.Register("feed", health.BreakerCheck(hp.BreakerState))
	}
	if a.Sync != nil {
		stale := store.DefaultSyncConfig().StaleAfter
		m.Register("rounds", health.FreshnessCheck(func() time.Time {
			return a.Store.GetLastSync(store.SyncTypeRounds)
		}, stale))
	}
	return m
}

func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case "redis":
		c, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, errs.Wrapf(err, "connecting to redis at %s", cfg.RedisAddr)
		}
		return c, nil
	case "memory":
		return cache.NewMemoryCache(memoryCacheEntries), nil
	default:
		return cache.Noop{}, nil
	}
}

func newProvider(cfg *config.Config, s store.DataStore, logger zerolog.Logger) (feed.HistoryProvider, error) {
	switch cfg.Feed.Source {
	case "http":
		return feed.NewHTTPProvider(feed.HTTPConfig{
			URL:             cfg.Feed.URL,
			Token:           cfg.Feed.Token,
			Limit:           cfg.Feed.Limit,
			Timeout:         cfg.Feed.Timeout,
			RateLimit:       cfg.Feed.RateLimit,
			Burst:           cfg.Feed.Burst,
			MaxRetries:      cfg.Feed.MaxRetries,
			BreakerFailures: cfg.Feed.BreakerFailures,
			BreakerTimeout:  cfg.Feed.BreakerTimeout,
		}, logger), nil
	case "file":
		return feed.NewFileProvider(cfg.Feed.File, logger), nil
	default:
		if s == nil {
			return nil, fmt.Errorf("%w: feed.source is store but store.enabled is false", errs.ErrConfigInvalid)
		}
		return feed.NewStoreProvider(s, cfg.Feed.Limit), nil
	}
}

// History returns the most recent rounds. With a store and an upstream feed, rounds are
// synced first and the stored copy is used when the feed is down.
func (a *App) History(ctx context.Context) (models.History, error) {
	if a.Sync != nil {
		h, stale, err := a.Sync.HistoryWithFallback(ctx, a.Config.Feed.Limit)
		if err != nil {
			return nil, err
		}
		if stale {
			a.Logger.Warn().Msg("Upstream feed unavailable, forecasting on stored rounds")
		}
		return h, nil
	}
	return a.Provider.Fetch(ctx)
}

// SyncRounds pulls upstream rounds into the store.
func (a *App) SyncRounds(ctx context.Context) (*store.SyncResult, error) {
	if a.Sync == nil {
		return nil, fmt.Errorf("%w: sync needs store.enabled and an http or file feed", errs.ErrConfigInvalid)
	}
	return a.Sync.Sync(ctx)
}

// StartLive starts the event hub and the background sync loop. Every sync publishes a
// sync event, and a sync that stored new rounds also publishes a fresh forecast.
func (a *App) StartLive(ctx context.Context) {
	a.Hub.Start(ctx)
	if a.Sync == nil {
		return
	}
	a.Sync.SetSyncCompleteCallback(func(result *store.SyncResult) {
		a.Hub.Publish(stream.EventSync, result)
		if result.New == 0 {
			return
		}
		fctx, cancel := context.WithTimeout(ctx, liveForecastTimeout)
		defer cancel()
		h, err := a.Store.GetRounds(fctx, a.Config.Feed.Limit)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to load rounds for live forecast")
			return
		}
		fc, err := a.Forecaster.ForecastNext(fctx, h)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Live forecast failed")
			return
		}
		a.Hub.Publish(stream.EventForecast, fc)
	})
	a.Sync.Start(ctx)
}

// Close releases the store and cache.
func (a *App) Close() error {
	var firstErr error
	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.Sync != nil {
		a.Sync.Stop()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
