package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveRoundsUpsertsAndLimits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	idx, err := s.LatestIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), idx)

	n, err := s.SaveRounds(ctx, models.HistoryFromPattern("HHLLH"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Re-saving index 4 with a different total replaces it.
	_, err = s.SaveRounds(ctx, models.History{{Index: 4, Dice: []int{1, 1, 2}, Total: 4, Outcome: models.Low}})
	require.NoError(t, err)

	all, err := s.GetRounds(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, models.Low, all[4].Outcome)
	assert.Equal(t, []int{1, 1, 2}, all[4].Dice)
	assert.Nil(t, all[0].Dice)

	tail, err := s.GetRounds(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(3), tail[0].Index)
	assert.Equal(t, int64(4), tail[1].Index)

	idx, err = s.LatestIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), idx)
}

func TestForecastResolutionAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := s.SaveRounds(ctx, models.HistoryFromPattern("HLH"))
	require.NoError(t, err)

	hit := &models.Forecast{
		ID: "f-hit", Predicted: models.High, Probability: 0.7, Confidence: 0.8, Agreement: 1,
		BasedOnIndex: 2, CreatedAt: now,
		Reasons: []models.Reason{models.NewReason(models.ReasonStreakBreak, 3, models.High, 0.7)},
		SubVotes: []models.SubVote{
			{Source: "markov", Predicted: models.High, Weight: 1.2, Confidence: 0.9},
			{Source: "rsi", Predicted: models.Low, Weight: 0.5, Confidence: 0.6},
		},
	}
	miss := &models.Forecast{
		ID: "f-miss", Predicted: models.High, Probability: 0.6, Confidence: 0.6,
		BasedOnIndex: 3, CreatedAt: now.Add(time.Second),
		SubVotes: []models.SubVote{{Source: "markov", Predicted: models.High, Weight: 1.2, Confidence: 0.7}},
	}
	pending := &models.Forecast{ID: "f-pending", Predicted: models.Low, Confidence: 0.5, BasedOnIndex: 9, CreatedAt: now}
	for _, fc := range []*models.Forecast{hit, miss, pending} {
		require.NoError(t, s.SaveForecast(ctx, fc))
	}

	// Round 3 (target of f-hit) and round 4 (target of f-miss) arrive.
	_, err = s.SaveRounds(ctx, models.History{
		{Index: 3, Total: 14, Outcome: models.High},
		{Index: 4, Total: 6, Outcome: models.Low},
	})
	require.NoError(t, err)

	resolved, err := s.ResolveForecasts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)

	again, err := s.ResolveForecasts(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)

	stats, err := s.ForecastStats(ctx, DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Resolved)
	assert.Equal(t, 1, stats.Hits)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-12)
	assert.InDelta(t, 0.7, stats.AvgConfidence, 1e-12)

	require.Contains(t, stats.BySource, "markov")
	assert.Equal(t, 2, stats.BySource["markov"].TotalCalls)
	assert.Equal(t, 1, stats.BySource["markov"].CorrectCalls)
	assert.InDelta(t, 0.8, stats.BySource["markov"].AvgConfidence, 1e-12)
	assert.Equal(t, 0, stats.BySource["rsi"].CorrectCalls)

	records, err := s.GetForecasts(ctx, ForecastFilter{Resolution: models.ForecastHit})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "f-hit", records[0].ID)
	assert.Equal(t, int64(3), records[0].TargetIndex)
	assert.Equal(t, models.High, records[0].Actual)
	require.Len(t, records[0].Reasons, 1)
	assert.Equal(t, models.ReasonStreakBreak, records[0].Reasons[0].Code)
	require.Len(t, records[0].SubVotes, 2)

	all, err := s.GetForecasts(ctx, ForecastFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "f-miss", all[0].ID)
}

func TestBacktestPersistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.SaveBacktest(ctx, &models.BacktestReport{})
	require.Error(t, err)

	report := &models.BacktestReport{
		ID: "bt-1", Lookback: 50, SampleSize: 2, Correct: 1, Accuracy: 0.5,
		InitialBankroll: 1000, FinalBankroll: 990, ROI: -0.01, CreatedAt: time.Now().UTC(),
		Steps: []models.BacktestStep{
			{Index: 10, Predicted: models.High, Actual: models.High, Confidence: 0.7, BetSize: 10, BankrollAfter: 1009.5},
			{Index: 11, Predicted: models.High, Actual: models.Low, Confidence: 0.6, BetSize: 19.5, BankrollAfter: 990},
		},
	}
	require.NoError(t, s.SaveBacktest(ctx, report))

	reports, err := s.GetBacktests(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "bt-1", reports[0].ID)
	assert.Equal(t, report.Steps, reports[0].Steps)
	assert.InDelta(t, -0.01, reports[0].ROI, 1e-12)
}

func TestLastSync(t *testing.T) {
	s := newTestStore(t)

	assert.True(t, s.GetLastSync(SyncTypeRounds).IsZero())

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetLastSync(SyncTypeRounds, ts))
	assert.True(t, ts.Equal(s.GetLastSync(SyncTypeRounds)))
}

func TestClosedStoreReportsDatabaseError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.GetRounds(context.Background(), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrDatabaseError)
	assert.Contains(t, err.Error(), "failed to query rounds")

	_, err = s.LatestIndex(context.Background())
	assert.ErrorIs(t, err, errs.ErrDatabaseError)
}
