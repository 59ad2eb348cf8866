package predictors

import (
	"math"

	"hilo-forecaster/internal/analysis/stats"
	"hilo-forecaster/internal/models"
)

// DefaultBridgeWindow is the number of trailing rounds inspected for bridges.
const DefaultBridgeWindow = 12

const longStreakRun = 5

// Bridge is a named run-length rhythm such as 1-1 (alternation) or 2-1.
type Bridge struct {
	Name  string
	Cycle []int
}

// Bridges is the catalogue of cyclic bridges in match priority order.
// long_streak is handled separately because it has no cycle.
var Bridges = []Bridge{
	{Name: "alternation", Cycle: []int{1}},
	{Name: "one_two", Cycle: []int{1, 2}},
	{Name: "two_one", Cycle: []int{2, 1}},
	{Name: "two_two", Cycle: []int{2}},
	{Name: "three_one", Cycle: []int{3, 1}},
	{Name: "three_two", Cycle: []int{3, 2}},
	{Name: "three_three", Cycle: []int{3}},
}

// minCount is the number of matching runs needed to call a bridge.
func (b Bridge) minCount() int {
	return max(3, 2*len(b.Cycle))
}

// match returns how many trailing runs fit the cycle and the expected length of the
// current run, trying every phase. The current run and the oldest run in the window may
// be cut short; every other run must match exactly.
func (b Bridge) match(runs []int) (count, expected int) {
	n := len(runs)
	for phase := range b.Cycle {
		c := 0
		for i := n - 1; i >= 0; i-- {
			pos := ((phase-(n-1-i))%len(b.Cycle) + len(b.Cycle)) % len(b.Cycle)
			want := b.Cycle[pos]
			partial := i == n-1 || i == 0
			if runs[i] == want || (partial && runs[i] < want) {
				c++
				continue
			}
			break
		}
		if c > count {
			count = c
			expected = b.Cycle[phase]
		}
	}
	return count, expected
}

// DetectDominantMotif finds the bridge with the most matching runs in the trailing window.
// When nothing qualifies the result has an empty MotifName and a neutral vote.
func DetectDominantMotif(h models.History, window int) models.MotifDetection {
	if window <= 0 {
		window = DefaultBridgeWindow
	}
	last := h.LastOutcome()
	none := models.MotifDetection{
		Predicted:  last.Opposite(),
		Confidence: 0.5,
		Reasons:    []models.Reason{models.NewReason(models.ReasonNoBridge, window)},
	}
	if len(h) < 2 {
		return none
	}

	tail := stats.Tail(h.Outcomes(), window)
	runs := stats.RunLengths(tail)
	current := runs[len(runs)-1]

	if current >= longStreakRun {
		return models.MotifDetection{
			MotifName:  "long_streak",
			Predicted:  last,
			Confidence: math.Min(0.9, 0.55+0.07*float64(current)),
			Count:      current,
			Reasons:    []models.Reason{models.NewReason(models.ReasonBridge, "long_streak", current, last)},
		}
	}

	var best Bridge
	var bestCount, bestExpected int
	for _, b := range Bridges {
		count, expected := b.match(runs)
		if count < b.minCount() || count <= bestCount {
			continue
		}
		best, bestCount, bestExpected = b, count, expected
	}
	if bestCount == 0 {
		return none
	}

	predicted := last.Opposite()
	if current < bestExpected {
		predicted = last
	}
	return models.MotifDetection{
		MotifName:  best.Name,
		Predicted:  predicted,
		Confidence: math.Min(0.9, 0.55+0.07*float64(bestCount)),
		Count:      bestCount,
		Reasons:    []models.Reason{models.NewReason(models.ReasonBridge, best.Name, bestCount, predicted)},
	}
}

// BridgeMotifDetector votes with the dominant bridge of the trailing window.
type BridgeMotifDetector struct {
	BasePredictor
	window int
}

// NewBridgeMotifDetector creates the bridge predictor.
func NewBridgeMotifDetector(window int) *BridgeMotifDetector {
	if window <= 0 {
		window = DefaultBridgeWindow
	}
	return &BridgeMotifDetector{
		BasePredictor: NewBasePredictor(NameBridge, 6),
		window:        window,
	}
}

// Predict implements Predictor.
func (b *BridgeMotifDetector) Predict(h models.History) models.Vote {
	if b.Insufficient(h) {
		return b.Fallback(h)
	}
	d := DetectDominantMotif(h, b.window)
	return b.CreateVote(d.Predicted, d.Confidence, d.Reasons...)
}
