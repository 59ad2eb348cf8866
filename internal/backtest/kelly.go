package backtest

import "hilo-forecaster/internal/analysis/stats"

// KellySizer sizes bets with a capped Kelly fraction.
type KellySizer struct {
	// Payout is the net amount won per unit staked.
	Payout float64
	// MaxFraction caps the share of bankroll staked on one round.
	MaxFraction float64
	// MinBet is staked whenever the Kelly fraction is not positive.
	MinBet float64
}

// DefaultKelly returns the default sizer.
func DefaultKelly() KellySizer {
	return KellySizer{Payout: 0.95, MaxFraction: 0.05, MinBet: 1}
}

// Fraction returns the raw Kelly fraction (b·p − (1−p))/b for win probability p.
func (k KellySizer) Fraction(p float64) float64 {
	if k.Payout <= 0 {
		return 0
	}
	return (k.Payout*p - (1 - p)) / k.Payout
}

// Breakeven is the win probability at which the Kelly fraction is zero.
func (k KellySizer) Breakeven() float64 {
	return 1 / (1 + k.Payout)
}

// BetSize returns the stake for win probability p. A non-positive fraction stakes
// MinBet; the stake never exceeds the bankroll.
func (k KellySizer) BetSize(p, bankroll float64) float64 {
	if bankroll <= 0 {
		return 0
	}
	f := k.Fraction(p)
	bet := k.MinBet
	if f > 0 {
		bet = max(stats.Clamp(f, 0, k.MaxFraction)*bankroll, k.MinBet)
	}
	return min(bet, bankroll)
}
