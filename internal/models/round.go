package models

// Round is one observed event.
type Round struct {
	Index   int64   `json:"index" validate:"gte=0"`
	Dice    []int   `json:"dice,omitempty" validate:"omitempty,len=3,dive,min=1,max=6"`
	Total   int     `json:"total" validate:"min=3,max=18"`
	Outcome Outcome `json:"outcome" validate:"required,oneof=HIGH LOW"`
}

// HasDice reports whether the dice breakdown is present.
func (r Round) HasDice() bool {
	return len(r.Dice) == 3
}

// History is an ordered sequence of rounds, strictly increasing by index.
type History []Round

// Len returns the number of rounds.
func (h History) Len() int {
	return len(h)
}

// Outcomes extracts the outcome sequence.
func (h History) Outcomes() []Outcome {
	out := make([]Outcome, len(h))
	for i, r := range h {
		out[i] = r.Outcome
	}
	return out
}

// Totals extracts the totals as floats.
func (h History) Totals() []float64 {
	out := make([]float64, len(h))
	for i, r := range h {
		out[i] = float64(r.Total)
	}
	return out
}

// Prefix returns rounds [0..cutoff] inclusive. The returned slice shares storage and
// must be treated as read-only.
func (h History) Prefix(cutoff int) History {
	if cutoff < 0 {
		return History{}
	}
	if cutoff >= len(h) {
		return h
	}
	return h[: cutoff+1 : cutoff+1]
}

// Tail returns the last n rounds.
func (h History) Tail(n int) History {
	if n >= len(h) {
		return h
	}
	if n <= 0 {
		return History{}
	}
	return h[len(h)-n:]
}

// Last returns the most recent round and whether one exists.
func (h History) Last() (Round, bool) {
	if len(h) == 0 {
		return Round{}, false
	}
	return h[len(h)-1], true
}

// LastOutcome returns the most recent outcome, or High when the history is empty.
func (h History) LastOutcome() Outcome {
	if r, ok := h.Last(); ok {
		return r.Outcome
	}
	return High
}

// LastIndex returns the index of the most recent round, or -1 when empty.
func (h History) LastIndex() int64 {
	if r, ok := h.Last(); ok {
		return r.Index
	}
	return -1
}

// HasDice reports whether every round in the trailing n carries dice.
func (h History) HasDice(n int) bool {
	tail := h.Tail(n)
	if len(tail) == 0 {
		return false
	}
	for _, r := range tail {
		if !r.HasDice() {
			return false
		}
	}
	return true
}

// HistoryFromPattern builds a history from an "H"/"L" string, giving High rounds a
// total of 13 and Low rounds a total of 8. Other characters are skipped.
func HistoryFromPattern(pattern string) History {
	h := make(History, 0, len(pattern))
	for i := 0; i < len(pattern); i++ {
		var total int
		switch pattern[i] {
		case 'H', 'h':
			total = 13
		case 'L', 'l':
			total = 8
		default:
			continue
		}
		h = append(h, Round{
			Index:   int64(len(h)),
			Total:   total,
			Outcome: OutcomeFromTotal(total),
		})
	}
	return h
}
