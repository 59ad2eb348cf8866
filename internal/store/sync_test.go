package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hilo-forecaster/internal/models"
)

type stubSource struct {
	history models.History
	err     error
	calls   int
}

func (s *stubSource) Fetch(ctx context.Context) (models.History, error) {
	s.calls++
	return s.history, s.err
}

func TestSyncStoresRoundsAndResolves(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	src := &stubSource{history: models.HistoryFromPattern("HLHL")}
	sm := NewSyncManager(st, src, SyncConfig{}, zerolog.Nop())

	var got *SyncResult
	sm.SetSyncCompleteCallback(func(r *SyncResult) { got = r })

	require.NoError(t, st.SaveForecast(ctx, &models.Forecast{ID: "x", Predicted: models.Low, Confidence: 0.6, BasedOnIndex: 2, CreatedAt: time.Now().UTC()}))

	res, err := sm.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 4, res.New)
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, int64(3), res.Latest)
	assert.Same(t, res, got)
	assert.True(t, sm.GetDataFreshness().IsFresh)

	// A second pass sees nothing new.
	res, err = sm.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.New)
}

func TestHistoryWithFallback(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	src := &stubSource{err: errors.New("upstream down")}
	sm := NewSyncManager(st, src, SyncConfig{}, zerolog.Nop())

	_, _, err := sm.HistoryWithFallback(ctx, 10)
	require.Error(t, err)

	_, err = st.SaveRounds(ctx, models.HistoryFromPattern("HHL"))
	require.NoError(t, err)

	h, stale, err := sm.HistoryWithFallback(ctx, 10)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Len(t, h, 3)

	src.err = nil
	src.history = models.HistoryFromPattern("HHLLL")
	h, stale, err = sm.HistoryWithFallback(ctx, 4)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Len(t, h, 4)
	assert.Equal(t, int64(4), h.LastIndex())
}

func TestFormatFreshness(t *testing.T) {
	assert.Equal(t, "Never synced", FormatFreshness(&DataFreshness{}))
	assert.Equal(t, "Updated just now", FormatFreshness(&DataFreshness{LastUpdated: time.Now(), IsFresh: true, Age: time.Second}))
	assert.Equal(t, "Stale data - Updated 2 hours ago", FormatFreshness(&DataFreshness{LastUpdated: time.Now(), Age: 2 * time.Hour}))
}

func TestBackgroundSyncStops(t *testing.T) {
	st := newTestStore(t)
	src := &stubSource{history: models.HistoryFromPattern("H")}
	sm := NewSyncManager(st, src, SyncConfig{AutoSyncInterval: time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sm.Start(ctx)
	require.Eventually(t, func() bool {
		idx, err := st.LatestIndex(context.Background())
		return err == nil && idx == 0
	}, time.Second, 5*time.Millisecond)
	sm.Stop()
}
