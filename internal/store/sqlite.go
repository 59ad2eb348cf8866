// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"slices"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/models"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	if dbPath == MemoryPath {
		dsn = dbPath
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errs.DatabaseError(err, "failed to open database")
	}

	// Configure connection pool for concurrent access. Every in-memory
	// connection is a separate database, so those get exactly one.
	if dbPath == MemoryPath {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errs.DatabaseError(err, "failed to initialize schema")
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Observed rounds, keyed by their upstream index
	CREATE TABLE IF NOT EXISTS rounds (
		idx INTEGER PRIMARY KEY,
		d1 INTEGER,
		d2 INTEGER,
		d3 INTEGER,
		total INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Forecasts and their resolution once the target round arrives
	CREATE TABLE IF NOT EXISTS forecasts (
		id TEXT PRIMARY KEY,
		based_on_index INTEGER NOT NULL,
		target_index INTEGER NOT NULL,
		predicted TEXT NOT NULL,
		probability REAL NOT NULL,
		confidence REAL NOT NULL,
		agreement REAL NOT NULL,
		fallback INTEGER DEFAULT 0,
		reasons TEXT,
		sub_votes TEXT,
		actual TEXT,
		resolution TEXT DEFAULT 'PENDING',
		created_at DATETIME NOT NULL
	);

	-- Backtest reports
	CREATE TABLE IF NOT EXISTS backtests (
		id TEXT PRIMARY KEY,
		lookback INTEGER NOT NULL,
		sample_size INTEGER NOT NULL,
		correct INTEGER NOT NULL,
		accuracy REAL NOT NULL,
		initial_bankroll REAL NOT NULL,
		final_bankroll REAL NOT NULL,
		roi REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		sharpe REAL NOT NULL,
		steps TEXT,
		created_at DATETIME NOT NULL
	);

	-- Sync status table
	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Create indexes for performance
	CREATE INDEX IF NOT EXISTS idx_forecasts_target ON forecasts(target_index);
	CREATE INDEX IF NOT EXISTS idx_forecasts_resolution ON forecasts(resolution);
	CREATE INDEX IF NOT EXISTS idx_forecasts_created ON forecasts(created_at);
	CREATE INDEX IF NOT EXISTS idx_backtests_created ON backtests(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Rounds Methods
// ============================================================================

// SaveRounds upserts rounds by index and returns how many rows were written.
func (s *SQLiteStore) SaveRounds(ctx context.Context, rounds models.History) (int, error) {
	if len(rounds) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.DatabaseError(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO rounds (idx, d1, d2, d3, total, outcome)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, errs.DatabaseError(err, "failed to prepare statement")
	}
	defer stmt.Close()

	for _, r := range rounds {
		var d1, d2, d3 sql.NullInt64
		if r.HasDice() {
			d1 = sql.NullInt64{Int64: int64(r.Dice[0]), Valid: true}
			d2 = sql.NullInt64{Int64: int64(r.Dice[1]), Valid: true}
			d3 = sql.NullInt64{Int64: int64(r.Dice[2]), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.Index, d1, d2, d3, r.Total, string(r.Outcome)); err != nil {
			return 0, errs.NewDataError("round", r.Index, "failed to insert round", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.DatabaseError(err, "failed to commit transaction")
	}

	return len(rounds), nil
}

// GetRounds returns the most recent limit rounds in ascending index order.
// A limit of zero or less returns every round.
func (s *SQLiteStore) GetRounds(ctx context.Context, limit int) (models.History, error) {
	query := "SELECT idx, d1, d2, d3, total, outcome FROM rounds ORDER BY idx DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.DatabaseError(err, "failed to query rounds")
	}
	defer rows.Close()

	history := models.History{}
	for rows.Next() {
		var r models.Round
		var d1, d2, d3 sql.NullInt64
		var outcome string
		if err := rows.Scan(&r.Index, &d1, &d2, &d3, &r.Total, &outcome); err != nil {
			return nil, errs.DatabaseError(err, "failed to scan round")
		}
		if d1.Valid && d2.Valid && d3.Valid {
			r.Dice = []int{int(d1.Int64), int(d2.Int64), int(d3.Int64)}
		}
		r.Outcome = models.Outcome(outcome)
		history = append(history, r)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.DatabaseError(err, "error iterating rounds")
	}

	slices.Reverse(history)
	return history, nil
}

// LatestIndex returns the highest stored round index, or -1 when empty.
func (s *SQLiteStore) LatestIndex(ctx context.Context) (int64, error) {
	var idx sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(idx) FROM rounds").Scan(&idx); err != nil {
		return -1, errs.DatabaseError(err, "failed to get latest index")
	}
	if !idx.Valid {
		return -1, nil
	}
	return idx.Int64, nil
}

// ============================================================================
// Forecasts Methods
// ============================================================================

// SaveForecast stores a forecast targeting the round after its BasedOnIndex.
func (s *SQLiteStore) SaveForecast(ctx context.Context, fc *models.Forecast) error {
	reasons, _ := json.Marshal(fc.Reasons)
	subVotes, _ := json.Marshal(fc.SubVotes)
	fallback := 0
	if fc.Fallback {
		fallback = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO forecasts (id, based_on_index, target_index, predicted, probability, confidence, agreement, fallback, reasons, sub_votes, resolution, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, fc.ID, fc.BasedOnIndex, fc.BasedOnIndex+1, string(fc.Predicted), fc.Probability, fc.Confidence, fc.Agreement, fallback, string(reasons), string(subVotes), string(models.ForecastPending), fc.CreatedAt)
	if err != nil {
		return errs.DatabaseError(err, "failed to save forecast")
	}
	return nil
}

// GetForecasts retrieves stored forecasts, newest first.
func (s *SQLiteStore) GetForecasts(ctx context.Context, filter ForecastFilter) ([]models.ForecastRecord, error) {
	query := "SELECT id, based_on_index, target_index, predicted, probability, confidence, agreement, fallback, COALESCE(reasons, '[]'), COALESCE(sub_votes, '[]'), COALESCE(actual, ''), resolution, created_at FROM forecasts WHERE 1=1"
	args := []interface{}{}

	if filter.Resolution != "" {
		query += " AND resolution = ?"
		args = append(args, string(filter.Resolution))
	}
	if !filter.StartDate.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.EndDate)
	}

	query += " ORDER BY created_at DESC, target_index DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.DatabaseError(err, "failed to query forecasts")
	}
	defer rows.Close()

	var records []models.ForecastRecord
	for rows.Next() {
		var rec models.ForecastRecord
		var predicted, actual, resolution, reasonsJSON, subVotesJSON string
		var fallback int

		if err := rows.Scan(&rec.ID, &rec.BasedOnIndex, &rec.TargetIndex, &predicted, &rec.Probability, &rec.Confidence, &rec.Agreement, &fallback, &reasonsJSON, &subVotesJSON, &actual, &resolution, &rec.CreatedAt); err != nil {
			return nil, errs.DatabaseError(err, "failed to scan forecast")
		}

		json.Unmarshal([]byte(reasonsJSON), &rec.Reasons)
		json.Unmarshal([]byte(subVotesJSON), &rec.SubVotes)
		rec.Predicted = models.Outcome(predicted)
		rec.Actual = models.Outcome(actual)
		rec.Resolution = models.ForecastOutcome(resolution)
		rec.Fallback = fallback == 1
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ResolveForecasts marks pending forecasts whose target round has been stored as HIT or
// MISS and returns the number resolved.
func (s *SQLiteStore) ResolveForecasts(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE forecasts
		SET actual = (SELECT outcome FROM rounds WHERE rounds.idx = forecasts.target_index),
			resolution = CASE
				WHEN predicted = (SELECT outcome FROM rounds WHERE rounds.idx = forecasts.target_index) THEN 'HIT'
				ELSE 'MISS'
			END
		WHERE resolution = 'PENDING'
			AND EXISTS (SELECT 1 FROM rounds WHERE rounds.idx = forecasts.target_index)
	`)
	if err != nil {
		return 0, errs.DatabaseError(err, "failed to resolve forecasts")
	}

	n, _ := result.RowsAffected()
	return int(n), nil
}

// ForecastStats summarizes live forecast performance overall and per voter.
func (s *SQLiteStore) ForecastStats(ctx context.Context, dateRange DateRange) (*models.ForecastStats, error) {
	stats := &models.ForecastStats{
		BySource: make(map[string]*models.SourceStat),
	}

	where := " WHERE 1=1"
	args := []interface{}{}
	if !dateRange.Start.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, dateRange.Start)
	}
	if !dateRange.End.IsZero() {
		where += " AND created_at <= ?"
		args = append(args, dateRange.End)
	}

	var resolved, hits sql.NullInt64
	var avgConfidence sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN resolution IN ('HIT', 'MISS') THEN 1 ELSE 0 END),
			SUM(CASE WHEN resolution = 'HIT' THEN 1 ELSE 0 END),
			AVG(CASE WHEN resolution IN ('HIT', 'MISS') THEN confidence END)
		FROM forecasts`+where, args...).Scan(&stats.Total, &resolved, &hits, &avgConfidence)
	if err != nil {
		return nil, errs.DatabaseError(err, "failed to get forecast stats")
	}
	stats.Resolved = int(resolved.Int64)
	stats.Hits = int(hits.Int64)
	if stats.Resolved > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Resolved)
	}
	if avgConfidence.Valid {
		stats.AvgConfidence = avgConfidence.Float64
	}

	// Per-voter accuracy comes from the stored sub-votes of resolved forecasts.
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(sub_votes, '[]'), actual
		FROM forecasts`+where+` AND resolution IN ('HIT', 'MISS')`, args...)
	if err != nil {
		return nil, errs.DatabaseError(err, "failed to get source stats")
	}
	defer rows.Close()

	calls := make(map[string]int)
	correct := make(map[string]int)
	confidenceSum := make(map[string]float64)

	for rows.Next() {
		var subVotesJSON, actual string
		if err := rows.Scan(&subVotesJSON, &actual); err != nil {
			continue
		}

		var subVotes []models.SubVote
		if err := json.Unmarshal([]byte(subVotesJSON), &subVotes); err != nil {
			continue
		}

		for _, sv := range subVotes {
			calls[sv.Source]++
			confidenceSum[sv.Source] += sv.Confidence
			if string(sv.Predicted) == actual {
				correct[sv.Source]++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.DatabaseError(err, "error iterating source stats")
	}

	for name, n := range calls {
		stats.BySource[name] = &models.SourceStat{
			Name:          name,
			TotalCalls:    n,
			CorrectCalls:  correct[name],
			Accuracy:      float64(correct[name]) / float64(n),
			AvgConfidence: confidenceSum[name] / float64(n),
		}
	}

	return stats, nil
}

// ============================================================================
// Backtest Methods
// ============================================================================

// SaveBacktest stores a backtest report including its steps.
func (s *SQLiteStore) SaveBacktest(ctx context.Context, report *models.BacktestReport) error {
	if report.ID == "" {
		return errs.NewValidationError("id", report.ID, "backtest report needs an id")
	}
	steps, _ := json.Marshal(report.Steps)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtests (id, lookback, sample_size, correct, accuracy, initial_bankroll, final_bankroll, roi, max_drawdown, sharpe, steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, report.ID, report.Lookback, report.SampleSize, report.Correct, report.Accuracy, report.InitialBankroll, report.FinalBankroll, report.ROI, report.MaxDrawdown, report.Sharpe, string(steps), report.CreatedAt)
	if err != nil {
		return errs.DatabaseError(err, "failed to save backtest")
	}
	return nil
}

// GetBacktests returns stored reports, newest first.
func (s *SQLiteStore) GetBacktests(ctx context.Context, limit int) ([]models.BacktestReport, error) {
	query := "SELECT id, lookback, sample_size, correct, accuracy, initial_bankroll, final_bankroll, roi, max_drawdown, sharpe, COALESCE(steps, '[]'), created_at FROM backtests ORDER BY created_at DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.DatabaseError(err, "failed to query backtests")
	}
	defer rows.Close()

	var reports []models.BacktestReport
	for rows.Next() {
		var r models.BacktestReport
		var stepsJSON string
		if err := rows.Scan(&r.ID, &r.Lookback, &r.SampleSize, &r.Correct, &r.Accuracy, &r.InitialBankroll, &r.FinalBankroll, &r.ROI, &r.MaxDrawdown, &r.Sharpe, &stepsJSON, &r.CreatedAt); err != nil {
			return nil, errs.DatabaseError(err, "failed to scan backtest")
		}
		json.Unmarshal([]byte(stepsJSON), &r.Steps)
		reports = append(reports, r)
	}

	return reports, rows.Err()
}

// ============================================================================
// Sync Methods
// ============================================================================

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	err := s.db.QueryRow(`
		SELECT last_sync FROM sync_status WHERE data_type = ?
	`, dataType).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[dataType] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, dataType, t, time.Now())
	if err != nil {
		return errs.DatabaseError(err, "failed to set last sync")
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()

	return nil
}
