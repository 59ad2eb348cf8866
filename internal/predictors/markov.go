package predictors

import (
	"math"

	"hilo-forecaster/internal/analysis/stats"
	"hilo-forecaster/internal/models"
)

// DefaultMaxMarkovOrder is the longest context the chain considers.
const DefaultMaxMarkovOrder = 4

// minContextSupport is how many times a context must have been seen before its order is trusted.
const minContextSupport = 3

// TransitionStat holds the observed followers of one context.
type TransitionStat struct {
	Order   int
	Context string
	High    int
	Low     int
}

// Support is the number of times the context was followed by a known symbol.
func (t TransitionStat) Support() int {
	return t.High + t.Low
}

// PHigh is the maximum-likelihood P(High | context), 0.5 without support.
func (t TransitionStat) PHigh() float64 {
	if t.Support() == 0 {
		return 0.5
	}
	return float64(t.High) / float64(t.Support())
}

// Smoothed is the Laplace-smoothed P(High | context).
func (t TransitionStat) Smoothed() float64 {
	return float64(t.High+1) / float64(t.Support()+2)
}

// transitionTable maps a context key of any order to its follower counts.
type transitionTable map[string]*TransitionStat

func buildTransitions(encoded string, maxOrder int) transitionTable {
	table := make(transitionTable)
	for k := 1; k <= maxOrder; k++ {
		for i := k; i < len(encoded); i++ {
			key := encoded[i-k : i]
			st, ok := table[key]
			if !ok {
				st = &TransitionStat{Order: k, Context: key}
				table[key] = st
			}
			if encoded[i] == 'H' {
				st.High++
			} else {
				st.Low++
			}
		}
	}
	return table
}

// MarkovChain predicts from the longest well-supported context of order 1..MaxOrder.
// Counts are rebuilt from the visible history on every call.
type MarkovChain struct {
	BasePredictor
	maxOrder int
}

// NewMarkovChain creates a Markov predictor with the given order ceiling.
func NewMarkovChain(maxOrder int) *MarkovChain {
	if maxOrder <= 0 {
		maxOrder = DefaultMaxMarkovOrder
	}
	return &MarkovChain{
		BasePredictor: NewBasePredictor(NameMarkov, 2),
		maxOrder:      maxOrder,
	}
}

// MaxOrder returns the order ceiling.
func (m *MarkovChain) MaxOrder() int {
	return m.maxOrder
}

// Transition returns the statistics for the current context of the given order.
func Transition(h models.History, order int) TransitionStat {
	encoded := stats.Encode(h.Outcomes())
	if order <= 0 || len(encoded) <= order {
		return TransitionStat{Order: order}
	}
	ctx := encoded[len(encoded)-order:]
	st := TransitionStat{Order: order, Context: ctx}
	for i := order; i < len(encoded); i++ {
		if encoded[i-order:i] != ctx {
			continue
		}
		if encoded[i] == 'H' {
			st.High++
		} else {
			st.Low++
		}
	}
	return st
}

// Predict implements Predictor.
func (m *MarkovChain) Predict(h models.History) models.Vote {
	if m.Insufficient(h) {
		return m.Fallback(h)
	}

	encoded := stats.Encode(h.Outcomes())
	table := buildTransitions(encoded, m.maxOrder)

	for k := m.maxOrder; k >= 1; k-- {
		if len(encoded) <= k {
			continue
		}
		st, ok := table[encoded[len(encoded)-k:]]
		if !ok || st.Support() < minContextSupport {
			continue
		}
		p := st.Smoothed()
		predicted, pMax := pickByProbability(p, h.LastOutcome())
		return m.CreateVote(predicted, math.Min(0.98, 0.3+0.7*pMax),
			models.NewReason(models.ReasonMarkovTransition, k, st.Context, p, st.Support()))
	}

	p := stats.FrequencyHigh(h.Outcomes())
	predicted, pMax := pickByProbability(p, h.LastOutcome())
	return m.CreateVote(predicted, math.Min(0.98, 0.3+0.7*pMax),
		models.NewReason(models.ReasonMarkovBaseRate, p))
}

// pickByProbability returns the likelier symbol and its probability; an exact tie
// goes to the opposite of last.
func pickByProbability(pHigh float64, last models.Outcome) (models.Outcome, float64) {
	switch {
	case pHigh > 0.5:
		return models.High, pHigh
	case pHigh < 0.5:
		return models.Low, 1 - pHigh
	default:
		return last.Opposite(), 0.5
	}
}
