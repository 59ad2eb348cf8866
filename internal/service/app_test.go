package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hilo-forecaster/internal/cache"
	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/health"
	"hilo-forecaster/internal/store"
)

func writeFeedFile(t *testing.T, n int) string {
	t.Helper()
	h := randomHistory(9, n)
	rows := make([]map[string]any, len(h))
	for i, r := range h {
		rows[i] = map[string]any{"session": r.Index + 1000, "total": r.Total}
	}
	body, err := json.Marshal(map[string]any{"data": rows})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rounds.json")
	require.NoError(t, os.WriteFile(path, body, 0o644))
	return path
}

func TestBootstrapFileFeedSyncsIntoStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Feed.Source = "file"
	cfg.Feed.File = writeFeedFile(t, 40)

	app, err := Bootstrap(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Sync)
	assert.IsType(t, &cache.MemoryCache{}, app.Cache)

	h, err := app.History(ctx)
	require.NoError(t, err)
	require.Len(t, h, 40)
	assert.Equal(t, int64(1039), h.LastIndex())

	result, err := app.SyncRounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, result.Fetched)
	assert.Zero(t, result.New)

	fc, err := app.Forecaster.ForecastNext(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, int64(1039), fc.BasedOnIndex)

	families, err := app.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestBootstrapStoreSourceReadsStoredRounds(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Cache.Backend = "none"

	app, err := Bootstrap(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Sync)
	assert.IsType(t, cache.Noop{}, app.Cache)

	_, err = app.Store.SaveRounds(ctx, randomHistory(4, 20))
	require.NoError(t, err)

	h, err := app.History(ctx)
	require.NoError(t, err)
	assert.Len(t, h, 20)

	_, err = app.SyncRounds(ctx)
	assert.ErrorIs(t, err, errs.ErrConfigInvalid)
}

func TestBootstrapFallsBackToStoredRounds(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Feed.Source = "file"
	cfg.Feed.File = filepath.Join(t.TempDir(), "missing.json")

	app, err := Bootstrap(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer app.Close()

	_, err = app.History(ctx)
	assert.ErrorIs(t, err, errs.ErrUpstreamFetch)

	_, err = app.Store.SaveRounds(ctx, randomHistory(4, 15))
	require.NoError(t, err)

	h, err := app.History(ctx)
	require.NoError(t, err)
	assert.Len(t, h, 15)
}

func TestBootstrapStoreSourceNeedsStore(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Enabled = false

	_, err := Bootstrap(context.Background(), cfg, zerolog.Nop())
	assert.ErrorIs(t, err, errs.ErrConfigInvalid)
}

func TestBootstrapWithoutStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Store.Enabled = false
	cfg.Feed.Source = "file"
	cfg.Feed.File = writeFeedFile(t, 10)

	app, err := Bootstrap(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Sync)
	h, err := app.History(ctx)
	require.NoError(t, err)
	assert.Len(t, h, 10)

	_, err = app.Forecaster.Stats(ctx, store.DateRange{})
	assert.ErrorIs(t, err, errs.ErrDataNotFound)
}

func TestBootstrapHealthChecks(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Feed.Source = "file"
	cfg.Feed.File = writeFeedFile(t, 12)

	app, err := Bootstrap(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer app.Close()

	before := app.Health.Run(ctx)
	names := make([]string, len(before.Components))
	for i, c := range before.Components {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"cache", "rounds", "store"}, names)
	assert.Equal(t, health.StatusDegraded, before.Status, "never synced")

	_, err = app.SyncRounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, app.Health.Run(ctx).Status)
}
