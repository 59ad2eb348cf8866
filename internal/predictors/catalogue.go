package predictors

import (
	"fmt"
	"slices"
	"strings"
)

// Profile selects which predictors take part and how deep the Markov chain looks.
type Profile string

const (
	ProfileBasic    Profile = "basic"
	ProfileStandard Profile = "standard"
	ProfileFull     Profile = "full"
)

var profileMembers = map[Profile][]string{
	ProfileBasic:    {NameFrequency, NameMarkov, NameStreakBreak},
	ProfileStandard: {NameFrequency, NameMarkov, NameMotifRepeat, NameStreakBreak, NameARTotal, NameMACross, NameRSI},
	ProfileFull:     AllNames,
}

var profileMarkovOrder = map[Profile]int{
	ProfileBasic:    2,
	ProfileStandard: 3,
	ProfileFull:     4,
}

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := profileMembers[p]; !ok {
		return "", fmt.Errorf("unknown profile %q (want basic, standard or full)", s)
	}
	return p, nil
}

// Members returns the predictor names of the profile in catalogue order.
func (p Profile) Members() []string {
	return profileMembers[p]
}

// MarkovOrder returns the Markov order ceiling of the profile.
func (p Profile) MarkovOrder() int {
	if o, ok := profileMarkovOrder[p]; ok {
		return o
	}
	return DefaultMaxMarkovOrder
}

// Config holds catalogue configuration.
type Config struct {
	Profile Profile
	// Enabled, when non-empty, replaces the profile membership.
	Enabled  []string
	Disabled []string
	// MaxMarkovOrder overrides the profile's order ceiling when > 0.
	MaxMarkovOrder int
	BreakThreshold float64
	BridgeWindow   int
	RSIPeriod      int
	ARCoefficients []float64
}

// DefaultConfig returns the full profile with default constants.
func DefaultConfig() Config {
	return Config{
		Profile:        ProfileFull,
		BreakThreshold: DefaultBreakThreshold,
		BridgeWindow:   DefaultBridgeWindow,
		RSIPeriod:      14,
		ARCoefficients: DefaultARCoefficients,
	}
}

// ActiveNames resolves the predictor names selected by cfg, in catalogue order.
func (cfg Config) ActiveNames() []string {
	members := cfg.Enabled
	if len(members) == 0 {
		members = cfg.Profile.Members()
	}
	var names []string
	for _, name := range AllNames {
		if slices.Contains(members, name) && !slices.Contains(cfg.Disabled, name) {
			names = append(names, name)
		}
	}
	return names
}

// Validate checks names and ranges.
func (cfg Config) Validate() error {
	if _, ok := profileMembers[cfg.Profile]; !ok && len(cfg.Enabled) == 0 {
		return fmt.Errorf("unknown profile %q", cfg.Profile)
	}
	for _, name := range append(slices.Clone(cfg.Enabled), cfg.Disabled...) {
		if !slices.Contains(AllNames, name) {
			return fmt.Errorf("unknown predictor %q", name)
		}
	}
	if cfg.MaxMarkovOrder < 0 || cfg.MaxMarkovOrder > 8 {
		return fmt.Errorf("markov order must be between 0 and 8, got %d", cfg.MaxMarkovOrder)
	}
	return nil
}

// NewPredictor builds a single predictor by name.
func NewPredictor(name string, cfg Config) (Predictor, error) {
	switch name {
	case NameFrequency:
		return NewFrequencyRules(), nil
	case NameMarkov:
		order := cfg.MaxMarkovOrder
		if order <= 0 {
			order = cfg.Profile.MarkovOrder()
		}
		return NewMarkovChain(order), nil
	case NameMotifRepeat:
		return NewRecentMotifRepeat(), nil
	case NameStreakBreak:
		return NewStreakBreakFilter(cfg.BreakThreshold), nil
	case NameARTotal:
		return NewAutoregressiveTotal(cfg.ARCoefficients), nil
	case NameMACross:
		return NewMovingAverageCrossover(), nil
	case NameRSI:
		return NewRSIOscillator(cfg.RSIPeriod), nil
	case NameBridge:
		return NewBridgeMotifDetector(cfg.BridgeWindow), nil
	}
	return nil, fmt.Errorf("unknown predictor %q", name)
}

// NewCatalogue builds the predictors selected by cfg in catalogue order.
func NewCatalogue(cfg Config) ([]Predictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	names := cfg.ActiveNames()
	out := make([]Predictor, 0, len(names))
	for _, name := range names {
		p, err := NewPredictor(name, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
