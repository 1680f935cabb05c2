// Package bandit implements C9: Thompson sampling over a Beta-Bernoulli arm
// per (user, goal-group, profile), selecting which named UserProfile governs
// a session (spec.md §4.9).
//
// The nearest teacher example (internal/app/mlscheduler.go) selects among
// arms with UCB1 and a Welford-style running-mean/variance tracker. This
// package deliberately diverges to Thompson sampling — the algorithm the
// spec names — while keeping the teacher's shape: an injectable clock-free,
// stateless selector operating over arms the caller loads and persists.
package bandit

import (
	"context"
	"fmt"
	"math"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/metrics"
	"github.com/iqrahapp/iqrah-core/internal/ports"
)

// ArmStore is the narrow read/write surface this package needs for bandit
// arms (§6.2).
type ArmStore interface {
	GetBanditArms(ctx context.Context, userID, goalGroup string) ([]domain.BanditArm, error)
	UpdateBanditArm(ctx context.Context, arm domain.BanditArm) error
}

// Selector is C9.
type Selector struct {
	Arms ArmStore
}

// New constructs a Selector.
func New(arms ArmStore) *Selector {
	return &Selector{Arms: arms}
}

// SelectProfile draws one Thompson sample per candidate profile's arm —
// creating a fresh Beta(1,1) (uniform) prior for any profile with no stored
// arm yet — and returns the profile whose sample is largest (§4.9 "Arm
// selection"). Ties are broken by the fixed iteration order of profiles,
// which callers should pass in a stable (e.g. name-sorted) order for
// determinism.
func (s *Selector) SelectProfile(ctx context.Context, userID, goalGroup string, profiles []domain.UserProfile, rng ports.RNG) (domain.UserProfile, error) {
	if len(profiles) == 0 {
		return domain.UserProfile{}, fmt.Errorf("%w: no candidate profiles", domain.ErrInvalidProfile)
	}
	stored, err := s.Arms.GetBanditArms(ctx, userID, goalGroup)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("%w: get_bandit_arms: %v", domain.ErrStoreFailure, err)
	}
	byProfile := make(map[string]domain.BanditArm, len(stored))
	for _, a := range stored {
		byProfile[a.ProfileName] = a
	}

	best := profiles[0]
	bestSample := -1.0
	for _, p := range profiles {
		arm, ok := byProfile[p.Name]
		if !ok {
			arm = domain.BanditArm{UserID: userID, GoalGroup: goalGroup, ProfileName: p.Name, Successes: 0, Failures: 0}
		}
		sample := sampleBeta(rng, 1+float64(arm.Successes), 1+float64(arm.Failures))
		if sample > bestSample {
			bestSample = sample
			best = p
		}
	}

	metrics.ArmSelected.WithLabelValues(best.Name).Inc()
	return best, nil
}

// RecordOutcome feeds a session's reward back into the selected arm,
// incrementing the pseudo-counts fractionally: reward adds to successes and
// (1-reward) adds to failures (§4.9 "Reward feedback"), rather than the
// binary win/loss update a pure Bernoulli bandit would use — sessions rarely
// resolve to a clean win or loss.
func (s *Selector) RecordOutcome(ctx context.Context, userID, goalGroup, profileName string, reward float64) error {
	reward = clamp01(reward)
	stored, err := s.Arms.GetBanditArms(ctx, userID, goalGroup)
	if err != nil {
		return fmt.Errorf("%w: get_bandit_arms: %v", domain.ErrStoreFailure, err)
	}
	arm := domain.BanditArm{UserID: userID, GoalGroup: goalGroup, ProfileName: profileName}
	for _, a := range stored {
		if a.ProfileName == profileName {
			arm = a
			break
		}
	}
	arm.Successes += float32(reward)
	arm.Failures += float32(1 - reward)

	metrics.BanditReward.WithLabelValues(profileName).Observe(reward)
	if err := s.Arms.UpdateBanditArm(ctx, arm); err != nil {
		return fmt.Errorf("%w: update_bandit_arm: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

// Reward computes the §4.9 session-outcome reward in [0,1] from the grades
// recorded during a session: the fraction of reviews graded Good or Easy.
func Reward(grades []domain.Grade) float64 {
	if len(grades) == 0 {
		return 0
	}
	good := 0
	for _, g := range grades {
		if g == domain.Good || g == domain.Easy {
			good++
		}
	}
	return float64(good) / float64(len(grades))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// sampleBeta draws one Beta(alpha, beta) sample via two independent Gamma
// draws (X/(X+Y)), the standard construction — Go's stdlib and the example
// pack carry no Beta-distribution sampler, so this is built directly on
// math primitives rather than pulling in a statistics dependency for one
// call site.
func sampleBeta(rng ports.RNG, alpha, beta float64) float64 {
	x := sampleGamma(rng, alpha)
	y := sampleGamma(rng, beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws one Gamma(shape, 1) sample via Marsaglia & Tsang's
// method. For shape < 1 it uses the standard boost identity
// Gamma(a) = Gamma(a+1) * U^(1/a).
func sampleGamma(rng ports.RNG, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = sampleNormal(rng)
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// sampleNormal draws one standard-normal sample via the Box-Muller
// transform, using only the Float64() primitive ports.RNG guarantees.
func sampleNormal(rng ports.RNG) float64 {
	u1 := rng.Float64()
	if u1 < 1e-12 {
		u1 = 1e-12
	}
	u2 := rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}
