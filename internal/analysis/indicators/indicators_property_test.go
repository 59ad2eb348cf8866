package indicators

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// totalSeriesGen generates dice-total series of at most maxLen values in [3, 18].
func totalSeriesGen(maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, gen.IntRange(3, 18)).Map(func(ts []int) []float64 {
		out := make([]float64, len(ts))
		for i, t := range ts {
			out[i] = float64(t)
		}
		return out
	})
}

func TestProperty_RSIWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("RSI values are within [0, 100]", prop.ForAll(
		func(values []float64) bool {
			rsi := NewRSI(14)
			out, err := rsi.Calculate(values)
			if err != nil {
				// Insufficient data is acceptable
				return len(values) < rsi.Period()+1
			}

			for i, v := range out {
				if i < rsi.Period() {
					continue
				}
				if v < 0 || v > 100 {
					return false
				}
			}
			return true
		},
		totalSeriesGen(80),
	))

	properties.TestingRun(t)
}

func TestProperty_MovingAveragesWithinRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("SMA and EMA stay inside the total range", prop.ForAll(
		func(values []float64, period int) bool {
			for _, ind := range []Indicator{NewSMA(period), NewEMA(period)} {
				out, err := ind.Calculate(values)
				if err != nil {
					continue
				}
				for i := ind.Period() - 1; i < len(out); i++ {
					if out[i] < 3-1e-9 || out[i] > 18+1e-9 {
						return false
					}
				}
			}
			return true
		},
		totalSeriesGen(60),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func TestRSIKnownValues(t *testing.T) {
	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = float64(3 + i%16)
	}
	rsi := NewRSI(14)

	flat := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10}
	out, err := rsi.Calculate(flat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Last(out, -1); got != 50 {
		t.Errorf("flat series RSI = %v, want 50", got)
	}

	up := []float64{3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18}
	out, err = rsi.Calculate(up)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Last(out, -1); got != 100 {
		t.Errorf("monotonic rise RSI = %v, want 100", got)
	}

	if _, err := rsi.Calculate(rising[:10]); err != ErrInsufficientData {
		t.Errorf("short series error = %v, want ErrInsufficientData", err)
	}
	if _, err := NewSMA(0).Calculate(rising); err != ErrInvalidPeriod {
		t.Errorf("zero period error = %v, want ErrInvalidPeriod", err)
	}
}
