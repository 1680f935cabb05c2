package domain

import "fmt"

// Weights is the (w_due, w_need, w_yield) priority-formula weight triple
// shared by the memory model (§4.1 step 5) and the session generator
// (§4.4.2).
type Weights struct {
	WDue   float64
	WNeed  float64
	WYield float64
}

// DefaultWeights are the spec.md §4.1 defaults.
func DefaultWeights() Weights {
	return Weights{WDue: 1.0, WNeed: 2.0, WYield: 1.5}
}

// HighYieldWeights substitutes w_yield=10.0, the "high-yield" mode.
func HighYieldWeights() Weights {
	w := DefaultWeights()
	w.WYield = 10.0
	return w
}

// SessionMixConfig is the set of per-category budget fractions, summing to
// 1.0 (§4.4.3, §6.6).
type SessionMixConfig struct {
	FracNew             float64
	FracDue             float64
	FracReallyStruggling float64
	FracStruggling      float64
	FracAlmostThere     float64
	FracAlmostMastered  float64
}

// Validate checks the fractions sum to 1.0 within a small epsilon.
func (m SessionMixConfig) Validate() error {
	sum := m.FracNew + m.FracDue + m.FracReallyStruggling +
		m.FracStruggling + m.FracAlmostThere + m.FracAlmostMastered
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("%w: fractions sum to %.4f", ErrInvalidSessionMix, sum)
	}
	return nil
}

// Frac returns the configured fraction for a category. CategoryMastered
// always returns 0 — it is never a fill target.
func (m SessionMixConfig) Frac(cat Category) float64 {
	switch cat {
	case CategoryNew:
		return m.FracNew
	case CategoryDue:
		return m.FracDue
	case CategoryReallyStruggling:
		return m.FracReallyStruggling
	case CategoryStruggling:
		return m.FracStruggling
	case CategoryAlmostThere:
		return m.FracAlmostThere
	case CategoryAlmostMastered:
		return m.FracAlmostMastered
	default:
		return 0
	}
}

// DefaultSessionMixConfig is the "Balanced" profile's mix.
func DefaultSessionMixConfig() SessionMixConfig {
	return SessionMixConfig{
		FracNew:              0.20,
		FracDue:               0.40,
		FracReallyStruggling:  0.15,
		FracStruggling:        0.10,
		FracAlmostThere:       0.10,
		FracAlmostMastered:    0.05,
	}
}

// IntroductionConfig configures the §4.5 clamp stages.
type IntroductionConfig struct {
	ClusterExpansionBatchSize int
	ClusterStabilityThreshold float64
	ClusterGateHysteresis     float64
	MaxWorkingSet             int
	IntroMinPerDay            int
}

// DefaultIntroductionConfig are the "Balanced" profile's introduction knobs.
func DefaultIntroductionConfig() IntroductionConfig {
	return IntroductionConfig{
		ClusterExpansionBatchSize: 5,
		ClusterStabilityThreshold: 0.5,
		ClusterGateHysteresis:     0.05,
		MaxWorkingSet:             200,
		IntroMinPerDay:            1,
	}
}

// UserProfile bundles the weight vector, prerequisite threshold, session
// mix, and introduction knobs used by C7/C8 for one user (§4.7).
type UserProfile struct {
	Name             string
	Weights          Weights
	PrereqThreshold  float64
	SessionMix       SessionMixConfig
	Introduction     IntroductionConfig
}

// Validate bounds-checks a profile at construction time (§4.7).
func (p UserProfile) Validate() error {
	if p.PrereqThreshold < 0 || p.PrereqThreshold > 1 {
		return fmt.Errorf("%w: prereq_threshold=%.3f out of [0,1]", ErrInvalidProfile, p.PrereqThreshold)
	}
	if err := p.SessionMix.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if p.Introduction.MaxWorkingSet < 0 || p.Introduction.ClusterExpansionBatchSize < 0 {
		return fmt.Errorf("%w: negative introduction bound", ErrInvalidProfile)
	}
	return nil
}

// DefaultUserProfile returns the "Balanced" named profile.
func DefaultUserProfile() UserProfile {
	return UserProfile{
		Name:            "Balanced",
		Weights:         DefaultWeights(),
		PrereqThreshold: 0.2,
		SessionMix:      DefaultSessionMixConfig(),
		Introduction:    DefaultIntroductionConfig(),
	}
}

// NamedProfiles returns the small set of named profiles blended with the
// safe default before use (§4.7).
func NamedProfiles() map[string]UserProfile {
	balanced := DefaultUserProfile()

	highYield := balanced
	highYield.Name = "HighYield"
	highYield.Weights = HighYieldWeights()

	fastIntro := balanced
	fastIntro.Name = "FastIntro"
	fastIntro.Introduction.ClusterExpansionBatchSize = 10
	fastIntro.Introduction.ClusterGateHysteresis = 0.03
	fastIntro.SessionMix = SessionMixConfig{
		FracNew:              0.35,
		FracDue:               0.30,
		FracReallyStruggling:  0.10,
		FracStruggling:        0.10,
		FracAlmostThere:       0.10,
		FracAlmostMastered:    0.05,
	}

	consolidate := balanced
	consolidate.Name = "Consolidate"
	consolidate.Introduction.ClusterExpansionBatchSize = 2
	consolidate.SessionMix = SessionMixConfig{
		FracNew:              0.05,
		FracDue:               0.45,
		FracReallyStruggling:  0.25,
		FracStruggling:        0.15,
		FracAlmostThere:       0.07,
		FracAlmostMastered:    0.03,
	}

	return map[string]UserProfile{
		balanced.Name:    balanced,
		highYield.Name:   highYield,
		fastIntro.Name:   fastIntro,
		consolidate.Name: consolidate,
	}
}
