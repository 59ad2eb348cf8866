// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"hilo-forecaster/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Rounds
	SaveRounds(ctx context.Context, rounds models.History) (int, error)
	GetRounds(ctx context.Context, limit int) (models.History, error)
	LatestIndex(ctx context.Context) (int64, error)

	// Forecasts
	SaveForecast(ctx context.Context, fc *models.Forecast) error
	GetForecasts(ctx context.Context, filter ForecastFilter) ([]models.ForecastRecord, error)
	ResolveForecasts(ctx context.Context) (int, error)
	ForecastStats(ctx context.Context, dateRange DateRange) (*models.ForecastStats, error)

	// Backtests
	SaveBacktest(ctx context.Context, report *models.BacktestReport) error
	GetBacktests(ctx context.Context, limit int) ([]models.BacktestReport, error)

	// Sync
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Close() error
}

// ForecastFilter represents filters for querying stored forecasts.
type ForecastFilter struct {
	Resolution models.ForecastOutcome
	StartDate  time.Time
	EndDate    time.Time
	Limit      int
}

// DateRange represents a date range. Zero bounds are open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// SyncTypeRounds is the sync_status key for round ingestion.
const SyncTypeRounds = "rounds"
