package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Hi/Lo Forecaster Configuration
# Every key can be overridden with an environment variable such as
# HILO_ENGINE_PROFILE or HILO_FEED_URL.

[engine]
# Predictor profile: "basic", "standard" or "full"
profile = "full"
# Predictors to switch off by name, e.g. ["rsi", "ar_total"]
disabled = []
# Markov order ceiling (0 = profile default)
max_markov_order = 0
# Rounds required before the ensemble leaves its fallback
min_history = 12
# Parallel predictor workers (0 = one per predictor)
workers = 0
# Streak break probability at which the streak filter calls a break
break_threshold = 0.65
# Trailing window scanned for bridge motifs
bridge_window = 12
rsi_period = 14
# Online logistic meta-learner
use_meta = true
# "request" builds a fresh learner per forecast, "process" shares one
meta_lifetime = "request"
seed = 42
learning_rate = 0.05
l2 = 0.001
warmup_offset = 15

[weights]
frequency = 1.0
markov = 1.2
motif_repeat = 1.1
streak_break = 1.0
ar_total = 0.5
ma_cross = 0.5
rsi = 0.5
bridge = 1.0
meta = 1.3

[backtest]
# Default number of walk-forward steps
lookback = 200
initial_bankroll = 1000.0
min_samples = 10
# Net payout per unit staked on a win
payout = 0.95
# Kelly fraction cap
max_fraction = 0.05
min_bet = 1.0

[risk]
switch_weight = 0.25
streak_weight = 0.2
entropy_weight = 0.25
variance_weight = 0.15
# Upper bounds of VERY_LOW, LOW, MEDIUM and HIGH
cuts = [0.15, 0.30, 0.45, 0.60]

[feed]
# History source: "http", "file" or "store"
source = "store"
url = ""
file = ""
# Bearer token for the upstream feed (prefer HILO_FEED_TOKEN)
token = ""
# Rounds requested per fetch
limit = 500
timeout = "10s"
# Requests per second towards the upstream feed
rate_limit = 2.0
burst = 1
max_retries = 3
# Consecutive failures before the circuit opens
breaker_failures = 5
breaker_timeout = "30s"

[store]
enabled = true
# SQLite database path (empty = forecaster.db next to this file)
path = ""

[cache]
# Forecast cache: "none", "memory" or "redis"
backend = "memory"
ttl = "5m"
redis_addr = "localhost:6379"
redis_password = ""
redis_db = 0

[server]
addr = ":8080"
read_timeout = "15s"
write_timeout = "60s"
# Default rationale language: "en" or "vi"
lang = "en"

[log]
# debug, info, warn, error
level = "info"
file = false
file_path = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

// TemplatePath returns where Load writes the template for configDir.
func TemplatePath(configDir string) string {
	return filepath.Join(configDir, "config.toml")
}
