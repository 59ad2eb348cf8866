// Package meta provides the online logistic-regression meta-learner that turns the
// sub-predictor votes and sequence features into P(High).
package meta

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	"hilo-forecaster/internal/models"
)

// Name is the vote source used by the meta-learner.
const Name = "meta"

// Config holds the learner's hyperparameters.
type Config struct {
	LearningRate float64
	L2           float64
	WarmUpOffset int
	InitScale    float64
}

// DefaultConfig returns the default hyperparameters.
func DefaultConfig() Config {
	return Config{
		LearningRate: 0.05,
		L2:           1e-3,
		WarmUpOffset: 15,
		InitScale:    0.01,
	}
}

// OnlineLogistic is an L2-regularized logistic model trained one example at a time.
// It is safe for concurrent use, so one instance may be shared across requests.
type OnlineLogistic struct {
	mu      sync.Mutex
	cfg     Config
	rng     *rand.Rand
	weights map[string]float64
	bias    float64
	warmed  bool
	updates int
}

// NewOnlineLogistic creates a learner whose initial weights for featureNames are drawn
// from N(0, InitScale²) using rng. A nil rng uses a fixed seed.
func NewOnlineLogistic(cfg Config, rng *rand.Rand, featureNames []string) *OnlineLogistic {
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = DefaultConfig().LearningRate
	}
	if cfg.L2 < 0 {
		cfg.L2 = 0
	}
	if cfg.WarmUpOffset <= 0 {
		cfg.WarmUpOffset = DefaultConfig().WarmUpOffset
	}
	if cfg.InitScale <= 0 {
		cfg.InitScale = DefaultConfig().InitScale
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(42))
	}
	m := &OnlineLogistic{
		cfg:     cfg,
		rng:     rng,
		weights: make(map[string]float64, len(featureNames)),
	}
	names := append([]string(nil), featureNames...)
	sort.Strings(names)
	for _, name := range names {
		m.weights[name] = m.rng.NormFloat64() * cfg.InitScale
	}
	return m
}

// sigmoid returns 1/(1+e^-x) with simple clamping for numerical stability.
func sigmoid(x float64) float64 {
	if x > 20 {
		x = 20
	}
	if x < -20 {
		x = -20
	}
	return 1 / (1 + math.Exp(-x))
}

func (m *OnlineLogistic) predictLocked(f Features) float64 {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	// Fixed summation order keeps results bit-identical across runs.
	sort.Strings(names)
	z := m.bias
	for _, name := range names {
		z += m.weights[name] * f[name]
	}
	return sigmoid(z)
}

// PredictProbability returns P(High | f). Features without a weight contribute nothing.
func (m *OnlineLogistic) PredictProbability(f Features) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictLocked(f)
}

// Update performs one SGD step on the log loss for the realized label.
func (m *OnlineLogistic) Update(f Features, label models.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateLocked(f, label)
}

func (m *OnlineLogistic) updateLocked(f Features, label models.Outcome) {
	y := 0.0
	if label == models.High {
		y = 1
	}
	grad := m.predictLocked(f) - y

	// New features get their initial weight in sorted order so draws stay reproducible.
	var fresh []string
	for name := range f {
		if _, ok := m.weights[name]; !ok {
			fresh = append(fresh, name)
		}
	}
	sort.Strings(fresh)
	for _, name := range fresh {
		m.weights[name] = m.rng.NormFloat64() * m.cfg.InitScale
	}

	lr := m.cfg.LearningRate
	for name, w := range m.weights {
		g := grad*f[name] + m.cfg.L2*w
		m.weights[name] = w - lr*g
	}
	m.bias -= lr * grad
	m.updates++
}

// WarmUp replays h once, training on the features of each prefix [0..t] against the
// outcome at t+1. It does nothing when the learner is already warm or h has no more than
// minimum rounds.
func (m *OnlineLogistic) WarmUp(ctx context.Context, h models.History, extract FeatureFunc, minimum int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.warmed || len(h) <= minimum {
		return nil
	}
	start := max(m.cfg.WarmUpOffset, minimum)
	for t := start; t < len(h)-1; t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := extract(ctx, h.Prefix(t))
		if err != nil {
			return err
		}
		m.updateLocked(f, h[t+1].Outcome)
	}
	m.warmed = true
	return nil
}

// Warmed reports whether WarmUp has completed.
func (m *OnlineLogistic) Warmed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warmed
}

// Vote turns the probability for f into a vote.
func (m *OnlineLogistic) Vote(f Features) models.Vote {
	p := m.PredictProbability(f)
	predicted := models.Low
	conf := 1 - p
	if p >= 0.5 {
		predicted = models.High
		conf = p
	}
	return models.Vote{
		Source:     Name,
		Predicted:  predicted,
		Confidence: math.Min(0.99, conf),
		Reasons:    []models.Reason{models.NewReason(models.ReasonMetaProbability, p)},
	}
}

// Snapshot returns a copy of the current parameters.
func (m *OnlineLogistic) Snapshot() models.MetaState {
	m.mu.Lock()
	defer m.mu.Unlock()
	weights := make(map[string]float64, len(m.weights))
	for k, v := range m.weights {
		weights[k] = v
	}
	return models.MetaState{
		Weights: weights,
		Bias:    m.bias,
		Warmed:  m.warmed,
		Updates: m.updates,
	}
}

// Factory creates a fresh learner. It lets callers decide whether a learner lives for
// one request or for the whole process.
type Factory func() *OnlineLogistic

// NewFactory returns a Factory that seeds each learner deterministically from seed.
func NewFactory(cfg Config, seed int64, featureNames []string) Factory {
	return func() *OnlineLogistic {
		return NewOnlineLogistic(cfg, rand.New(rand.NewSource(seed)), featureNames)
	}
}
