package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/predictors"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0644))
}

func TestLoadCreatesTemplateAndUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, TemplatePath(dir))
	assert.Equal(t, "full", cfg.Engine.Profile)
	assert.Equal(t, 12, cfg.Engine.MinHistory)
	assert.Equal(t, MetaLifetimeRequest, cfg.Engine.MetaLifetime)
	assert.InDelta(t, 1.2, cfg.Weights[predictors.NameMarkov], 1e-12)
	assert.Equal(t, []float64{0.15, 0.30, 0.45, 0.60}, cfg.Risk.Cuts)
	assert.Equal(t, filepath.Join(dir, "forecaster.db"), cfg.Store.Path)

	// The written template must load cleanly on the next run.
	again, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Engine.Profile, again.Engine.Profile)
	assert.Equal(t, cfg.Engine.Seed, again.Engine.Seed)
	assert.Equal(t, cfg.Engine.LearningRate, again.Engine.LearningRate)
	assert.Equal(t, cfg.Backtest, again.Backtest)
}

func TestLoadReadsFileValues(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[engine]
profile = "basic"
disabled = ["streak_break"]
meta_lifetime = "process"

[weights]
markov = 2.5

[cache]
backend = "none"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "basic", cfg.Engine.Profile)
	assert.True(t, cfg.IsProcessMeta())
	assert.Equal(t, []string{predictors.NameFrequency, predictors.NameMarkov}, cfg.PredictorSettings().ActiveNames())

	ec := cfg.EnsembleSettings()
	assert.InDelta(t, 2.5, ec.Weights[predictors.NameMarkov], 1e-12)
	assert.InDelta(t, 1.0, ec.Weights[predictors.NameFrequency], 1e-12)
	assert.Equal(t, "none", cfg.Cache.Backend)
}

func TestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[engine]\nprofile = \"full\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HILO_BACKTEST_LOOKBACK=77\n"), 0644))
	t.Setenv("HILO_ENGINE_PROFILE", "standard")
	t.Setenv("LOG_LEVEL", "debug")
	t.Cleanup(func() { os.Unsetenv("HILO_BACKTEST_LOOKBACK") })

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "standard", cfg.Engine.Profile)
	assert.Equal(t, 77, cfg.Backtest.Lookback)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"profile", func(c *Config) { c.Engine.Profile = "turbo" }},
		{"predictor", func(c *Config) { c.Engine.Disabled = []string{"crystal_ball"} }},
		{"lifetime", func(c *Config) { c.Engine.MetaLifetime = "forever" }},
		{"min history", func(c *Config) { c.Engine.MinHistory = 0 }},
		{"weight", func(c *Config) { c.Weights["markov"] = -1 }},
		{"bankroll", func(c *Config) { c.Backtest.InitialBankroll = 0 }},
		{"cuts", func(c *Config) { c.Risk.Cuts = []float64{0.1, 0.1, 0.2, 0.3} }},
		{"feed url", func(c *Config) { c.Feed.Source = "http"; c.Feed.URL = "" }},
		{"feed source", func(c *Config) { c.Feed.Source = "carrier_pigeon" }},
		{"cache", func(c *Config) { c.Cache.Backend = "memcached" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrConfigInvalid)
		})
	}
}

func TestSettingsConversions(t *testing.T) {
	cfg := Default()

	bc := cfg.BacktestSettings()
	assert.Equal(t, 1000.0, bc.InitialBankroll)
	assert.Equal(t, 0.95, bc.Kelly.Payout)

	rc := cfg.RiskSettings()
	assert.Equal(t, [4]float64{0.15, 0.30, 0.45, 0.60}, rc.Cuts)

	mc := cfg.MetaSettings()
	assert.Equal(t, 15, mc.WarmUpOffset)

	lc := cfg.LogSettings()
	assert.Equal(t, "info", lc.Level)
	assert.NotEmpty(t, lc.FilePath)
}
