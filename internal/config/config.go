// Package config provides configuration management for the forecaster.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"hilo-forecaster/internal/backtest"
	"hilo-forecaster/internal/ensemble"
	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/logging"
	"hilo-forecaster/internal/meta"
	"hilo-forecaster/internal/predictors"
	"hilo-forecaster/internal/risk"
)

// EnvPrefix prefixes every environment override, e.g. HILO_ENGINE_PROFILE.
const EnvPrefix = "HILO"

// Meta-learner lifetimes.
const (
	MetaLifetimeRequest = "request"
	MetaLifetimeProcess = "process"
)

// Config holds all application configuration.
type Config struct {
	Engine   EngineConfig       `mapstructure:"engine"`
	Weights  map[string]float64 `mapstructure:"weights"`
	Backtest BacktestConfig     `mapstructure:"backtest"`
	Risk     RiskConfig         `mapstructure:"risk"`
	Feed     FeedConfig         `mapstructure:"feed"`
	Store    StoreConfig        `mapstructure:"store"`
	Cache    CacheConfig        `mapstructure:"cache"`
	Server   ServerConfig       `mapstructure:"server"`
	Log      LogConfig          `mapstructure:"log"`
}

// EngineConfig holds predictor, fuser and meta-learner settings.
type EngineConfig struct {
	Profile        string   `mapstructure:"profile"` // basic, standard, full
	Enabled        []string `mapstructure:"enabled"`
	Disabled       []string `mapstructure:"disabled"`
	MaxMarkovOrder int      `mapstructure:"max_markov_order"`
	MinHistory     int      `mapstructure:"min_history"`
	Workers        int      `mapstructure:"workers"`
	BreakThreshold float64  `mapstructure:"break_threshold"`
	BridgeWindow   int      `mapstructure:"bridge_window"`
	RSIPeriod      int      `mapstructure:"rsi_period"`
	UseMeta        bool     `mapstructure:"use_meta"`
	MetaLifetime   string   `mapstructure:"meta_lifetime"` // request, process
	Seed           int64    `mapstructure:"seed"`
	LearningRate   float64  `mapstructure:"learning_rate"`
	L2             float64  `mapstructure:"l2"`
	WarmUpOffset   int      `mapstructure:"warmup_offset"`
}

// BacktestConfig holds walk-forward and bet sizing settings.
type BacktestConfig struct {
	Lookback        int     `mapstructure:"lookback"`
	InitialBankroll float64 `mapstructure:"initial_bankroll"`
	MinSamples      int     `mapstructure:"min_samples"`
	Payout          float64 `mapstructure:"payout"`
	MaxFraction     float64 `mapstructure:"max_fraction"`
	MinBet          float64 `mapstructure:"min_bet"`
}

// RiskConfig holds the risk classifier weights and cut points.
type RiskConfig struct {
	SwitchWeight   float64   `mapstructure:"switch_weight"`
	StreakWeight   float64   `mapstructure:"streak_weight"`
	EntropyWeight  float64   `mapstructure:"entropy_weight"`
	VarianceWeight float64   `mapstructure:"variance_weight"`
	Cuts           []float64 `mapstructure:"cuts"`
}

// FeedConfig holds upstream history feed settings.
type FeedConfig struct {
	Source          string        `mapstructure:"source"` // http, file, store
	URL             string        `mapstructure:"url"`
	File            string        `mapstructure:"file"`
	Token           string        `mapstructure:"token"`
	Limit           int           `mapstructure:"limit"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"` // requests per second
	Burst           int           `mapstructure:"burst"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CacheConfig holds forecast cache settings.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // none, memory, redis
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Lang         string        `mapstructure:"lang"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/hilo-forecaster"
	}
	return filepath.Join(home, ".config", "hilo-forecaster")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing config.toml is
// replaced by a commented template and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env values become environment variables; already-set ones win.
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Wrap(err, "loading .env")
	}

	cfg := &Config{}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, errs.Wrap(err, "loading config.toml")
	}

	applyEnvOverrides(cfg)

	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(configDir, "forecaster.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errs.Wrap(err, "validating config")
	}

	return cfg, nil
}

// Default returns the configuration used when no file or environment is present.
func Default() *Config {
	cfg := &Config{}
	v := newViper()
	_ = v.Unmarshal(cfg)
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := newViper()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper) {
	pc := predictors.DefaultConfig()
	mc := meta.DefaultConfig()
	bc := backtest.DefaultConfig()
	rc := risk.DefaultConfig()

	v.SetDefault("engine.profile", string(pc.Profile))
	v.SetDefault("engine.enabled", []string{})
	v.SetDefault("engine.disabled", []string{})
	v.SetDefault("engine.max_markov_order", 0)
	v.SetDefault("engine.min_history", ensemble.DefaultMinHistory)
	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.break_threshold", pc.BreakThreshold)
	v.SetDefault("engine.bridge_window", pc.BridgeWindow)
	v.SetDefault("engine.rsi_period", pc.RSIPeriod)
	v.SetDefault("engine.use_meta", true)
	v.SetDefault("engine.meta_lifetime", MetaLifetimeRequest)
	v.SetDefault("engine.seed", 42)
	v.SetDefault("engine.learning_rate", mc.LearningRate)
	v.SetDefault("engine.l2", mc.L2)
	v.SetDefault("engine.warmup_offset", mc.WarmUpOffset)

	for name, w := range ensemble.DefaultWeights() {
		v.SetDefault("weights."+name, w)
	}

	v.SetDefault("backtest.lookback", 200)
	v.SetDefault("backtest.initial_bankroll", bc.InitialBankroll)
	v.SetDefault("backtest.min_samples", bc.MinSamples)
	v.SetDefault("backtest.payout", bc.Kelly.Payout)
	v.SetDefault("backtest.max_fraction", bc.Kelly.MaxFraction)
	v.SetDefault("backtest.min_bet", bc.Kelly.MinBet)

	v.SetDefault("risk.switch_weight", rc.SwitchWeight)
	v.SetDefault("risk.streak_weight", rc.StreakWeight)
	v.SetDefault("risk.entropy_weight", rc.EntropyWeight)
	v.SetDefault("risk.variance_weight", rc.VarianceWeight)
	v.SetDefault("risk.cuts", rc.Cuts[:])

	v.SetDefault("feed.source", "store")
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.file", "")
	v.SetDefault("feed.token", "")
	v.SetDefault("feed.limit", 500)
	v.SetDefault("feed.timeout", 10*time.Second)
	v.SetDefault("feed.rate_limit", 2.0)
	v.SetDefault("feed.burst", 1)
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("feed.breaker_failures", 5)
	v.SetDefault("feed.breaker_timeout", 30*time.Second)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.lang", "en")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", false)
	v.SetDefault("log.file_path", logging.DefaultLogConfig().FilePath)
}

func applyEnvOverrides(cfg *Config) {
	// Conventional names used by deployment tooling.
	if v := os.Getenv("REDIS_URL"); v != "" && cfg.Cache.Backend == "redis" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := predictors.ParseProfile(c.Engine.Profile); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrConfigInvalid, err)
	}
	if err := c.PredictorSettings().Validate(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrConfigInvalid, err)
	}
	if c.Engine.MinHistory < 1 {
		return fmt.Errorf("%w: engine.min_history must be positive", errs.ErrConfigInvalid)
	}
	if c.Engine.MetaLifetime != MetaLifetimeRequest && c.Engine.MetaLifetime != MetaLifetimeProcess {
		return fmt.Errorf("%w: engine.meta_lifetime must be 'request' or 'process', got %q", errs.ErrConfigInvalid, c.Engine.MetaLifetime)
	}
	if c.Engine.LearningRate <= 0 || c.Engine.L2 < 0 {
		return fmt.Errorf("%w: engine.learning_rate must be positive and engine.l2 non-negative", errs.ErrConfigInvalid)
	}
	for name, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("%w: weights.%s must be non-negative", errs.ErrConfigInvalid, name)
		}
	}

	if c.Backtest.Lookback < 0 {
		return fmt.Errorf("%w: backtest.lookback must be non-negative", errs.ErrConfigInvalid)
	}
	if c.Backtest.InitialBankroll <= 0 {
		return fmt.Errorf("%w: backtest.initial_bankroll must be positive", errs.ErrConfigInvalid)
	}
	if c.Backtest.Payout <= 0 {
		return fmt.Errorf("%w: backtest.payout must be positive", errs.ErrConfigInvalid)
	}
	if c.Backtest.MaxFraction < 0 || c.Backtest.MaxFraction > 1 {
		return fmt.Errorf("%w: backtest.max_fraction must be between 0 and 1", errs.ErrConfigInvalid)
	}

	if len(c.Risk.Cuts) != 4 {
		return fmt.Errorf("%w: risk.cuts needs exactly 4 cut points", errs.ErrConfigInvalid)
	}
	for i := 1; i < len(c.Risk.Cuts); i++ {
		if c.Risk.Cuts[i] <= c.Risk.Cuts[i-1] {
			return fmt.Errorf("%w: risk.cuts must be strictly increasing", errs.ErrConfigInvalid)
		}
	}

	switch c.Feed.Source {
	case "http":
		if c.Feed.URL == "" {
			return fmt.Errorf("%w: feed.url is required for the http source", errs.ErrConfigInvalid)
		}
	case "file":
		if c.Feed.File == "" {
			return fmt.Errorf("%w: feed.file is required for the file source", errs.ErrConfigInvalid)
		}
	case "store":
	default:
		return fmt.Errorf("%w: invalid feed.source %q (must be http, file or store)", errs.ErrConfigInvalid, c.Feed.Source)
	}
	if c.Feed.RateLimit <= 0 {
		return fmt.Errorf("%w: feed.rate_limit must be positive", errs.ErrConfigInvalid)
	}

	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("%w: invalid cache.backend %q", errs.ErrConfigInvalid, c.Cache.Backend)
	}

	return nil
}

// PredictorSettings converts the engine section to a catalogue configuration.
func (c *Config) PredictorSettings() predictors.Config {
	pc := predictors.DefaultConfig()
	pc.Profile = predictors.Profile(strings.ToLower(c.Engine.Profile))
	pc.Enabled = c.Engine.Enabled
	pc.Disabled = c.Engine.Disabled
	pc.MaxMarkovOrder = c.Engine.MaxMarkovOrder
	pc.BreakThreshold = c.Engine.BreakThreshold
	pc.BridgeWindow = c.Engine.BridgeWindow
	pc.RSIPeriod = c.Engine.RSIPeriod
	return pc
}

// EnsembleSettings converts the engine and weights sections to a fuser configuration.
func (c *Config) EnsembleSettings() ensemble.Config {
	weights := ensemble.DefaultWeights()
	for name, w := range c.Weights {
		weights[name] = w
	}
	return ensemble.Config{
		MinHistory: c.Engine.MinHistory,
		Weights:    weights,
		UseMeta:    c.Engine.UseMeta,
	}
}

// MetaSettings converts the engine section to meta-learner hyperparameters.
func (c *Config) MetaSettings() meta.Config {
	mc := meta.DefaultConfig()
	mc.LearningRate = c.Engine.LearningRate
	mc.L2 = c.Engine.L2
	mc.WarmUpOffset = c.Engine.WarmUpOffset
	return mc
}

// BacktestSettings converts the backtest section.
func (c *Config) BacktestSettings() backtest.Config {
	return backtest.Config{
		InitialBankroll: c.Backtest.InitialBankroll,
		MinSamples:      c.Backtest.MinSamples,
		Kelly: backtest.KellySizer{
			Payout:      c.Backtest.Payout,
			MaxFraction: c.Backtest.MaxFraction,
			MinBet:      c.Backtest.MinBet,
		},
	}
}

// RiskSettings converts the risk section.
func (c *Config) RiskSettings() risk.Config {
	rc := risk.Config{
		SwitchWeight:   c.Risk.SwitchWeight,
		StreakWeight:   c.Risk.StreakWeight,
		EntropyWeight:  c.Risk.EntropyWeight,
		VarianceWeight: c.Risk.VarianceWeight,
	}
	copy(rc.Cuts[:], c.Risk.Cuts)
	return rc
}

// LogSettings converts the log section for the logging package.
func (c *Config) LogSettings() logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = c.Log.Level
	lc.File = c.Log.File
	if c.Log.FilePath != "" {
		lc.FilePath = c.Log.FilePath
	}
	return lc
}

// IsProcessMeta returns true if one meta-learner is shared by the whole process.
func (c *Config) IsProcessMeta() bool {
	return c.Engine.MetaLifetime == MetaLifetimeProcess
}
